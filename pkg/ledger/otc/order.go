// Package otc implements the OTC desk: fixed-capacity order slot books owned
// by a creator, and the settlement engine that fills a slot against its
// designated counterparty under two-sided margin checks.
package otc

import (
	"github.com/ethereum/go-ethereum/common"
)

// Status is the lifecycle tag of one order slot.
//
//	Uninitialized → Active → Cancelled → Uninitialized (via delete)
//	                       ↘ Filled (terminal, slot stays occupied)
type Status uint8

const (
	Uninitialized Status = iota
	Active
	Cancelled
	Filled
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Active:
		return "Active"
	case Cancelled:
		return "Cancelled"
	case Filled:
		return "Filled"
	default:
		return "Unknown"
	}
}

// Side is the creator's side of the negotiated trade.
type Side uint8

const (
	Bid Side = iota // creator buys
	Ask             // creator sells
)

func (s Side) String() string {
	if s == Bid {
		return "Bid"
	}
	return "Ask"
}

// Order is one slot in a Book. The zero value is an Uninitialized slot;
// delete resets a slot back to the zero value so it can be reused. Slot
// indices are stable order identifiers for the order's whole life — slots are
// never compacted.
type Order struct {
	Status Status
	Side   Side

	Market string // market symbol, resolved against the registry at take time
	Price  int64  // scaled integer, market.PriceScale units
	Size   int64  // base units, always positive; Side carries the direction

	// Counterparty is the only account allowed to take this order.
	Counterparty common.Address

	Expires       int64 // logical seconds; unfillable at or past this time
	CreatedAt     int64
	LastChangedAt int64 // stamps cancel; the delete dwell is measured from here
}

// IsActive reports whether the slot can still be taken or cancelled.
func (o *Order) IsActive() bool {
	return o.Status == Active
}

// Clear resets the slot to Uninitialized, dropping every field.
func (o *Order) Clear() {
	*o = Order{}
}
