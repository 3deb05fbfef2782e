// otc-sign builds and signs a sample CreateOrder instruction, prints the
// signed envelope ready to POST to /api/v1/instructions, and verifies it the
// way the node will. Pass a private key via PRIVATE_KEY to sign with an
// existing account; otherwise a fresh key is generated.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"

	ledgercrypto "github.com/yeonho-jung/otcledger/pkg/crypto"
	"github.com/yeonho-jung/otcledger/pkg/ledger/tx"
)

func main() {
	var signer *ledgercrypto.Signer
	var err error

	if hexKey := os.Getenv("PRIVATE_KEY"); hexKey != "" {
		signer, err = ledgercrypto.FromPrivateKeyHex(hexKey)
	} else {
		fmt.Println("Generating new keypair...")
		signer, err = ledgercrypto.GenerateKey()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Address: %s\n", signer.Address().Hex())
	if os.Getenv("PRIVATE_KEY") == "" {
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	}
	fmt.Println()

	payload := tx.CreateOrderPayload{
		Market:       "BTC-PERP",
		Class:        0, // Perp
		Side:         1, // Ask: creator sells
		Price:        50000,
		Size:         200,
		Counterparty: common.HexToAddress(os.Getenv("COUNTERPARTY")),
		Expires:      1_900_000_000,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		fmt.Printf("Error marshaling payload: %v\n", err)
		os.Exit(1)
	}

	signed := &tx.Signed{
		Type:    tx.TypeCreateOrder,
		Sender:  signer.Address(),
		Nonce:   1,
		Payload: payloadJSON,
	}

	fmt.Println("Order Terms:")
	fmt.Printf("  Market: %s\n", payload.Market)
	fmt.Printf("  Side: Ask\n")
	fmt.Printf("  Price: %d\n", payload.Price)
	fmt.Printf("  Size: %d\n", payload.Size)
	fmt.Printf("  Counterparty: %s\n", payload.Counterparty.Hex())
	fmt.Printf("  Expires: %d\n\n", payload.Expires)

	verifier := tx.NewVerifier(ledgercrypto.DefaultDomain())
	if err := tx.SignWith(verifier, signer, signed); err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Signature: 0x%x\n\n", []byte(signed.Signature))

	envelope, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling envelope: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Signed Instruction (POST to /api/v1/instructions):")
	fmt.Println(string(envelope))
	fmt.Println()

	fmt.Println("Verifying signature...")
	if err := verifier.Verify(signed); err != nil {
		fmt.Printf("Verification FAILED: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Signature valid.")

	// Also print the wallet-facing typed data for eth_signTypedData_v4.
	eip712 := ledgercrypto.NewEIP712Signer(ledgercrypto.DefaultDomain())
	typed, err := eip712.OrderToJSON(tx.OrderTerms(signed, &payload))
	if err == nil {
		fmt.Println("\nEIP-712 Typed Data (for wallet signing):")
		fmt.Println(typed)
	}
}
