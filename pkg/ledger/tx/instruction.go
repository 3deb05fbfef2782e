// Package tx defines the signed instruction surface of the ledger: the wire
// envelope, the per-operation payloads, and signature verification. Decoding
// and authorization live here; execution lives in exec.
package tx

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/yeonho-jung/otcledger/pkg/ledger/lerr"
)

// Type tags one instruction kind on the wire.
type Type string

const (
	TypeDeposit       Type = "deposit"
	TypeWithdraw      Type = "withdraw"
	TypeInitOrderBook Type = "init_order_book"
	TypeCreateOrder   Type = "create_order"
	TypeCancelOrder   Type = "cancel_order"
	TypeDeleteOrder   Type = "delete_order"
	TypeTakeOrder     Type = "take_order"
)

// Signed is the wire envelope around one instruction. Nonce must be strictly
// greater than the sender's current account nonce; the processor consumes it
// on every signature-valid instruction, whether or not execution then
// succeeds.
type Signed struct {
	Type      Type            `json:"type"`
	Sender    common.Address  `json:"sender"`
	Nonce     uint64          `json:"nonce"`
	Payload   json.RawMessage `json:"payload"`
	Signature hexutil.Bytes   `json:"signature"`
}

// DepositPayload credits quote collateral to the sender.
type DepositPayload struct {
	Amount int64 `json:"amount"`
}

// WithdrawPayload debits quote collateral from the sender, gated by a
// post-withdrawal health check at the initial-margin tier.
type WithdrawPayload struct {
	Amount int64 `json:"amount"`
}

// InitOrderBookPayload creates the sender's order book at its derived
// address. No fields: the book is fully determined by the sender.
type InitOrderBookPayload struct{}

// CreateOrderPayload carries the negotiated OTC terms. This payload is signed
// as EIP-712 typed data rather than as a raw envelope hash so a counterparty
// wallet can display the terms before signing.
type CreateOrderPayload struct {
	Market       string         `json:"market"`
	Class        uint8          `json:"class"` // 0 = Perp, 1 = Spot
	Side         uint8          `json:"side"`  // 0 = Bid, 1 = Ask
	Price        int64          `json:"price"`
	Size         int64          `json:"size"`
	Counterparty common.Address `json:"counterparty"`
	Expires      int64          `json:"expires"`
}

// CancelOrderPayload cancels one of the sender's own slots.
type CancelOrderPayload struct {
	Class     uint8 `json:"class"`
	SlotIndex int   `json:"slot_index"`
}

// DeleteOrderPayload frees one of the sender's own Cancelled slots.
type DeleteOrderPayload struct {
	Class     uint8 `json:"class"`
	SlotIndex int   `json:"slot_index"`
}

// TakeOrderPayload fills a slot on another creator's book. The sender must be
// the slot's designated counterparty.
type TakeOrderPayload struct {
	Creator   common.Address `json:"creator"`
	Class     uint8          `json:"class"`
	SlotIndex int            `json:"slot_index"`
}

// DecodePayload unmarshals the envelope payload into dst, mapping malformed
// JSON to InvalidParam.
func (s *Signed) DecodePayload(dst interface{}) error {
	if err := json.Unmarshal(s.Payload, dst); err != nil {
		return lerr.Throw(lerr.InvalidParam)
	}
	return nil
}

// signingEnvelope is the canonical byte layout hashed for non-EIP-712
// instructions. Field order is fixed by the struct; encoding/json emits
// struct fields in declaration order, so the bytes are deterministic.
type signingEnvelope struct {
	Type    Type            `json:"type"`
	Sender  common.Address  `json:"sender"`
	Nonce   uint64          `json:"nonce"`
	Payload json.RawMessage `json:"payload"`
}

// SigningBytes returns the canonical bytes whose keccak digest is signed for
// every instruction type except CreateOrder.
func (s *Signed) SigningBytes() ([]byte, error) {
	payload := s.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	b, err := json.Marshal(signingEnvelope{
		Type:    s.Type,
		Sender:  s.Sender,
		Nonce:   s.Nonce,
		Payload: payload,
	})
	if err != nil {
		return nil, lerr.Throw(lerr.InvalidParam)
	}
	return b, nil
}

// ValidType reports whether t is a known instruction type.
func ValidType(t Type) bool {
	switch t {
	case TypeDeposit, TypeWithdraw, TypeInitOrderBook,
		TypeCreateOrder, TypeCancelOrder, TypeDeleteOrder, TypeTakeOrder:
		return true
	}
	return false
}
