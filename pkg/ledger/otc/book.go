package otc

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yeonho-jung/otcledger/pkg/ledger/lerr"
	"github.com/yeonho-jung/otcledger/pkg/ledger/market"
)

// SlotCapacity is the fixed number of order slots per class. Books are
// fixed-size records; they never grow.
const SlotCapacity = 16

// programTag seeds the deterministic book address so it can never collide
// with a plain account address.
var programTag = []byte("otcledger/order-book/v1")

// Book is one creator's OTC order store: a fixed arena of perp slots and a
// fixed arena of spot slots, each with an explicit occupancy counter. The
// length counts Active + Cancelled + Filled slots; delete is the only
// operation that decrements it.
type Book struct {
	Creator common.Address
	Address common.Address // derived, see DeriveAddress
	Bump    uint8

	PerpOrders [SlotCapacity]Order
	SpotOrders [SlotCapacity]Order
	PerpLen    uint8
	SpotLen    uint8
}

// DeriveAddress computes the deterministic book address for a creator:
// keccak256(programTag || creator || bump)[12:], taking the highest bump in
// 255..0 whose derived address has a non-zero last byte. The chosen bump is
// stored on the book so anyone can re-check the derivation without searching.
func DeriveAddress(creator common.Address) (common.Address, uint8) {
	for bump := 255; bump >= 0; bump-- {
		h := crypto.Keccak256(programTag, creator.Bytes(), []byte{uint8(bump)})
		addr := common.BytesToAddress(h[12:])
		if addr[19] != 0 {
			return addr, uint8(bump)
		}
	}
	// 256 hashes all ending in a zero byte does not happen.
	h := crypto.Keccak256(programTag, creator.Bytes(), []byte{0})
	return common.BytesToAddress(h[12:]), 0
}

// NewBook creates an empty book for a creator: both lengths zero, every slot
// Uninitialized.
func NewBook(creator common.Address) *Book {
	addr, bump := DeriveAddress(creator)
	return &Book{
		Creator: creator,
		Address: addr,
		Bump:    bump,
	}
}

// orders returns the slot arena for a class.
func (b *Book) orders(class market.Class) *[SlotCapacity]Order {
	if class == market.Perp {
		return &b.PerpOrders
	}
	return &b.SpotOrders
}

// lenOf returns a pointer to the occupancy counter for a class.
func (b *Book) lenOf(class market.Class) *uint8 {
	if class == market.Perp {
		return &b.PerpLen
	}
	return &b.SpotLen
}

// Len returns the occupancy counter for a class.
func (b *Book) Len(class market.Class) uint8 {
	return *b.lenOf(class)
}

// Slot returns the order at idx, failing InvalidOrderId when idx is out of
// range.
func (b *Book) Slot(class market.Class, idx int) (*Order, error) {
	if err := lerr.Check(idx >= 0 && idx < SlotCapacity, lerr.InvalidOrderId); err != nil {
		return nil, err
	}
	return &b.orders(class)[idx], nil
}

// Create occupies the first Uninitialized slot in the class arena and returns
// its index. The index is the order's identifier for cancel/delete/take and
// stays valid until the slot is deleted.
func (b *Book) Create(class market.Class, symbol string, side Side, price, size int64, counterparty common.Address, expires, now int64) (int, error) {
	if err := lerr.Check(price > 0, lerr.InvalidParam); err != nil {
		return 0, err
	}
	if err := lerr.Check(size > 0, lerr.InvalidParam); err != nil {
		return 0, err
	}
	if err := lerr.Check(expires > now, lerr.InvalidParam); err != nil {
		return 0, err
	}
	// Settlement moves value between two independently-owned accounts; a
	// creator naming themselves as counterparty could take their own order
	// and mint a one-sided position.
	if err := lerr.Check(counterparty != b.Creator, lerr.InvalidParam); err != nil {
		return 0, err
	}

	arena := b.orders(class)
	for i := range arena {
		if arena[i].Status != Uninitialized {
			continue
		}
		arena[i] = Order{
			Status:        Active,
			Side:          side,
			Market:        symbol,
			Price:         price,
			Size:          size,
			Counterparty:  counterparty,
			Expires:       expires,
			CreatedAt:     now,
			LastChangedAt: now,
		}
		*b.lenOf(class)++
		return i, nil
	}
	return 0, lerr.Throw(lerr.OutOfSpace)
}

// Cancel moves an Active slot to Cancelled. Only the book's creator may
// cancel. The slot stays occupied; a racing take now fails deterministically
// on the status check.
func (b *Book) Cancel(class market.Class, idx int, caller common.Address, now int64) error {
	if err := lerr.Check(caller == b.Creator, lerr.InvalidAccount); err != nil {
		return err
	}
	ord, err := b.Slot(class, idx)
	if err != nil {
		return err
	}
	if err := lerr.Check(ord.Status == Active, lerr.InvalidAccountState); err != nil {
		return err
	}
	ord.Status = Cancelled
	ord.LastChangedAt = now
	return nil
}

// Delete frees a Cancelled slot after the dwell interval has elapsed,
// returning it to Uninitialized and decrementing the occupancy counter. The
// dwell requirement keeps cancel+delete from acting as an atomic pair that
// could race a stale slot reference onto a freshly reused index.
func (b *Book) Delete(class market.Class, idx int, caller common.Address, now, dwell int64) error {
	if err := lerr.Check(caller == b.Creator, lerr.InvalidAccount); err != nil {
		return err
	}
	ord, err := b.Slot(class, idx)
	if err != nil {
		return err
	}
	if err := lerr.Check(ord.Status == Cancelled, lerr.InvalidAccountState); err != nil {
		return err
	}
	if err := lerr.Check(now-ord.LastChangedAt >= dwell, lerr.InvalidAccountState); err != nil {
		return err
	}
	ord.Clear()
	*b.lenOf(class)--
	return nil
}

// Clone returns a deep copy of the book. Arrays copy by value, so this is a
// plain dereference.
func (b *Book) Clone() *Book {
	c := *b
	return &c
}
