package tx

import (
	"math/big"

	ledgercrypto "github.com/yeonho-jung/otcledger/pkg/crypto"
	"github.com/yeonho-jung/otcledger/pkg/ledger/lerr"
)

// Verifier checks instruction signatures. CreateOrder payloads verify as
// EIP-712 typed data; everything else verifies as a keccak digest over the
// canonical envelope bytes. Either way the recovered address must be the
// envelope's Sender.
type Verifier struct {
	eip712 *ledgercrypto.EIP712Signer
}

func NewVerifier(domain ledgercrypto.EIP712Domain) *Verifier {
	return &Verifier{eip712: ledgercrypto.NewEIP712Signer(domain)}
}

// Verify authenticates a signed instruction. Fails InvalidParam on an unknown
// type or malformed payload, InvalidSigner on any signature mismatch.
func (v *Verifier) Verify(s *Signed) error {
	if err := lerr.Check(ValidType(s.Type), lerr.InvalidParam); err != nil {
		return err
	}
	if err := lerr.Check(len(s.Signature) == 65, lerr.InvalidSigner); err != nil {
		return err
	}

	if s.Type == TypeCreateOrder {
		return v.verifyCreateOrder(s)
	}

	msg, err := s.SigningBytes()
	if err != nil {
		return err
	}
	recovered, err := ledgercrypto.RecoverAddress(ledgercrypto.HashMessage(msg), s.Signature)
	if err != nil {
		return lerr.Throw(lerr.InvalidSigner)
	}
	return lerr.Check(recovered == s.Sender, lerr.InvalidSigner)
}

func (v *Verifier) verifyCreateOrder(s *Signed) error {
	var p CreateOrderPayload
	if err := s.DecodePayload(&p); err != nil {
		return err
	}
	terms := OrderTerms(s, &p)
	recovered, err := v.eip712.RecoverOrderSigner(terms, s.Signature)
	if err != nil {
		return lerr.Throw(lerr.InvalidSigner)
	}
	return lerr.Check(recovered == s.Sender, lerr.InvalidSigner)
}

// OrderTerms builds the EIP-712 struct a creator signs from the envelope and
// its decoded payload. Exposed so signing clients hash exactly what the
// verifier hashes.
func OrderTerms(s *Signed, p *CreateOrderPayload) *ledgercrypto.OtcOrderEIP712 {
	return &ledgercrypto.OtcOrderEIP712{
		Market:       p.Market,
		Class:        p.Class,
		Side:         p.Side,
		Price:        big.NewInt(p.Price),
		Size:         big.NewInt(p.Size),
		Counterparty: p.Counterparty,
		Expires:      big.NewInt(p.Expires),
		Nonce:        new(big.Int).SetUint64(s.Nonce),
		Owner:        s.Sender,
	}
}

// SignWith fills the envelope signature using the given key: EIP-712 for
// CreateOrder, canonical-envelope keccak for everything else. Used by the
// signing CLI and tests.
func SignWith(v *Verifier, signer *ledgercrypto.Signer, s *Signed) error {
	if s.Type == TypeCreateOrder {
		var p CreateOrderPayload
		if err := s.DecodePayload(&p); err != nil {
			return err
		}
		sig, err := v.eip712.SignOrder(signer, OrderTerms(s, &p))
		if err != nil {
			return err
		}
		s.Signature = sig
		return nil
	}

	msg, err := s.SigningBytes()
	if err != nil {
		return err
	}
	sig, err := signer.SignMessage(msg)
	if err != nil {
		return err
	}
	s.Signature = sig
	return nil
}
