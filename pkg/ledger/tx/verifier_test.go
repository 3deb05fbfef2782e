package tx

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	ledgercrypto "github.com/yeonho-jung/otcledger/pkg/crypto"
	"github.com/yeonho-jung/otcledger/pkg/ledger/lerr"
)

func newSignedDeposit(t *testing.T, signer *ledgercrypto.Signer, nonce uint64, amount int64) *Signed {
	t.Helper()
	payload, err := json.Marshal(DepositPayload{Amount: amount})
	if err != nil {
		t.Fatal(err)
	}
	return &Signed{
		Type:    TypeDeposit,
		Sender:  signer.Address(),
		Nonce:   nonce,
		Payload: payload,
	}
}

func TestVerifyEnvelopeSignature(t *testing.T) {
	signer, err := ledgercrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	v := NewVerifier(ledgercrypto.DefaultDomain())

	s := newSignedDeposit(t, signer, 1, 1000)
	if err := SignWith(v, signer, s); err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if err := v.Verify(s); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	signer, err := ledgercrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	v := NewVerifier(ledgercrypto.DefaultDomain())

	s := newSignedDeposit(t, signer, 1, 1000)
	if err := SignWith(v, signer, s); err != nil {
		t.Fatal(err)
	}

	// Bump the amount after signing: recovery yields a different address.
	s.Payload, _ = json.Marshal(DepositPayload{Amount: 2000})
	if err := v.Verify(s); !lerr.Is(err, lerr.InvalidSigner) {
		t.Errorf("err = %v, want InvalidSigner", err)
	}
}

func TestVerifyRejectsWrongSender(t *testing.T) {
	signer, err := ledgercrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	other, err := ledgercrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	v := NewVerifier(ledgercrypto.DefaultDomain())

	// Envelope claims `other` as sender but is signed by `signer`.
	s := newSignedDeposit(t, signer, 1, 1000)
	s.Sender = other.Address()
	if err := SignWith(v, signer, s); err != nil {
		t.Fatal(err)
	}
	// SigningBytes covers Sender, so recovery cannot match other.
	if err := v.Verify(s); !lerr.Is(err, lerr.InvalidSigner) {
		t.Errorf("err = %v, want InvalidSigner", err)
	}
}

func TestVerifyCreateOrderEIP712(t *testing.T) {
	signer, err := ledgercrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	v := NewVerifier(ledgercrypto.DefaultDomain())

	counterparty := common.HexToAddress("0xBB00000000000000000000000000000000000000")
	payload, err := json.Marshal(CreateOrderPayload{
		Market:       "BTC-PERP",
		Class:        0,
		Side:         1,
		Price:        50000,
		Size:         200,
		Counterparty: counterparty,
		Expires:      2_000_000_000,
	})
	if err != nil {
		t.Fatal(err)
	}
	s := &Signed{
		Type:    TypeCreateOrder,
		Sender:  signer.Address(),
		Nonce:   7,
		Payload: payload,
	}
	if err := SignWith(v, signer, s); err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if err := v.Verify(s); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	// The nonce is part of the signed terms; changing it breaks the digest.
	s.Nonce = 8
	if err := v.Verify(s); !lerr.Is(err, lerr.InvalidSigner) {
		t.Errorf("err = %v, want InvalidSigner", err)
	}
}

func TestVerifyRejectsUnknownTypeAndBadSig(t *testing.T) {
	signer, err := ledgercrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	v := NewVerifier(ledgercrypto.DefaultDomain())

	s := newSignedDeposit(t, signer, 1, 1000)
	s.Type = "mint_money"
	if err := v.Verify(s); !lerr.Is(err, lerr.InvalidParam) {
		t.Errorf("unknown type: err = %v, want InvalidParam", err)
	}

	s = newSignedDeposit(t, signer, 1, 1000)
	s.Signature = []byte{1, 2, 3}
	if err := v.Verify(s); !lerr.Is(err, lerr.InvalidSigner) {
		t.Errorf("short signature: err = %v, want InvalidSigner", err)
	}
}

func TestSigningBytesDeterministic(t *testing.T) {
	signer, err := ledgercrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	s := newSignedDeposit(t, signer, 1, 1000)

	b1, err := s.SigningBytes()
	if err != nil {
		t.Fatal(err)
	}
	b2, err := s.SigningBytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(b1) != string(b2) {
		t.Error("signing bytes are not deterministic")
	}
}
