package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain is the typed-data domain separator. It pins signatures to one
// deployment so an instruction signed for a test chain cannot replay on
// another.
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address // zero for off-chain signing
}

// OtcOrderEIP712 is the negotiated OTC terms a creator signs in their wallet.
// The signature is the authorization the desk checks before occupying a slot.
type OtcOrderEIP712 struct {
	Market       string         // market symbol (e.g. "BTC-PERP")
	Class        uint8          // 0 = Perp, 1 = Spot
	Side         uint8          // 0 = Bid, 1 = Ask (creator's side)
	Price        *big.Int       // scaled integer
	Size         *big.Int       // base units
	Counterparty common.Address // only account allowed to take
	Expires      *big.Int       // logical seconds
	Nonce        *big.Int       // creator's instruction nonce
	Owner        common.Address // creator / book owner
}

// EIP712Signer hashes and verifies OTC order terms under a fixed domain.
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

// DefaultDomain is the local-dev domain.
func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:    "OtcLedger",
		Version: "1",
		ChainID: big.NewInt(1337),
	}
}

var otcOrderTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"OtcOrder": []apitypes.Type{
		{Name: "market", Type: "string"},
		{Name: "class", Type: "uint8"},
		{Name: "side", Type: "uint8"},
		{Name: "price", Type: "uint256"},
		{Name: "size", Type: "uint256"},
		{Name: "counterparty", Type: "address"},
		{Name: "expires", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "owner", Type: "address"},
	},
}

// HashOrder returns the EIP-712 digest of the order terms:
// keccak256("\x19\x01" || domainSeparator || hashStruct(order)).
func (e *EIP712Signer) HashOrder(order *OtcOrderEIP712) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types:       otcOrderTypes,
		PrimaryType: "OtcOrder",
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"market":       order.Market,
			"class":        fmt.Sprintf("%d", order.Class),
			"side":         fmt.Sprintf("%d", order.Side),
			"price":        order.Price.String(),
			"size":         order.Size.String(),
			"counterparty": order.Counterparty.Hex(),
			"expires":      order.Expires.String(),
			"nonce":        order.Nonce.String(),
			"owner":        order.Owner.Hex(),
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash domain: %w", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("hash message: %w", err)
	}

	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	digest := crypto.Keccak256Hash(rawData)
	return digest.Bytes(), nil
}

// SignOrder signs the order terms with the given key.
func (e *EIP712Signer) SignOrder(signer *Signer, order *OtcOrderEIP712) ([]byte, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return nil, err
	}
	return signer.Sign(hash)
}

// RecoverOrderSigner returns the address that signed the order terms.
func (e *EIP712Signer) RecoverOrderSigner(order *OtcOrderEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, signature)
}

// VerifyOrderSignature reports whether signature over the terms was made by
// order.Owner.
func (e *EIP712Signer) VerifyOrderSignature(order *OtcOrderEIP712, signature []byte) (bool, error) {
	recovered, err := e.RecoverOrderSigner(order, signature)
	if err != nil {
		return false, err
	}
	return recovered == order.Owner, nil
}

// OrderToJSON renders the terms in the eth_signTypedData_v4 wire format so a
// wallet can present and sign them.
func (e *EIP712Signer) OrderToJSON(order *OtcOrderEIP712) (string, error) {
	typedData := map[string]interface{}{
		"types": map[string]interface{}{
			"EIP712Domain": []map[string]string{
				{"name": "name", "type": "string"},
				{"name": "version", "type": "string"},
				{"name": "chainId", "type": "uint256"},
				{"name": "verifyingContract", "type": "address"},
			},
			"OtcOrder": []map[string]string{
				{"name": "market", "type": "string"},
				{"name": "class", "type": "uint8"},
				{"name": "side", "type": "uint8"},
				{"name": "price", "type": "uint256"},
				{"name": "size", "type": "uint256"},
				{"name": "counterparty", "type": "address"},
				{"name": "expires", "type": "uint256"},
				{"name": "nonce", "type": "uint256"},
				{"name": "owner", "type": "address"},
			},
		},
		"primaryType": "OtcOrder",
		"domain": map[string]interface{}{
			"name":              e.domain.Name,
			"version":           e.domain.Version,
			"chainId":           e.domain.ChainID.String(),
			"verifyingContract": e.domain.VerifyingContract.Hex(),
		},
		"message": map[string]interface{}{
			"market":       order.Market,
			"class":        order.Class,
			"side":         order.Side,
			"price":        order.Price.String(),
			"size":         order.Size.String(),
			"counterparty": order.Counterparty.Hex(),
			"expires":      order.Expires.String(),
			"nonce":        order.Nonce.String(),
			"owner":        order.Owner.Hex(),
		},
	}

	jsonBytes, err := json.MarshalIndent(typedData, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal typed data: %w", err)
	}
	return string(jsonBytes), nil
}
