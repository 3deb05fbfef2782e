package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yeonho-jung/otcledger/pkg/ledger/market"
	"github.com/yeonho-jung/otcledger/pkg/ledger/otc"
)

// Books persist as fixed-width binary records so slot i sits at a computable
// offset and can be read without decoding the whole book.
//
//	header:  creator(20) address(20) bump(1) perpLen(1) spotLen(1)
//	slot:    status(1) side(1) symLen(1) symbol(31) price(8) size(8)
//	         counterparty(20) expires(8) createdAt(8) lastChangedAt(8)
//
// Perp slots come first, then spot slots. All integers big-endian.
const (
	HeaderSize = 43
	SlotSize   = 94
	BookSize   = HeaderSize + 2*otc.SlotCapacity*SlotSize

	maxSymbolLen = 31
)

// SlotOffset returns the byte offset of slot idx for a class.
func SlotOffset(class market.Class, idx int) int {
	off := HeaderSize + idx*SlotSize
	if class == market.Spot {
		off += otc.SlotCapacity * SlotSize
	}
	return off
}

// EncodeBook serializes a book into its fixed-width layout.
func EncodeBook(b *otc.Book) ([]byte, error) {
	buf := make([]byte, BookSize)
	copy(buf[0:20], b.Creator.Bytes())
	copy(buf[20:40], b.Address.Bytes())
	buf[40] = b.Bump
	buf[41] = b.PerpLen
	buf[42] = b.SpotLen

	for i := 0; i < otc.SlotCapacity; i++ {
		if err := encodeSlot(buf[SlotOffset(market.Perp, i):], &b.PerpOrders[i]); err != nil {
			return nil, err
		}
		if err := encodeSlot(buf[SlotOffset(market.Spot, i):], &b.SpotOrders[i]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// DecodeBook deserializes a fixed-width book record.
func DecodeBook(data []byte) (*otc.Book, error) {
	if len(data) != BookSize {
		return nil, fmt.Errorf("book record is %d bytes, want %d", len(data), BookSize)
	}

	b := &otc.Book{
		Creator: common.BytesToAddress(data[0:20]),
		Address: common.BytesToAddress(data[20:40]),
		Bump:    data[40],
		PerpLen: data[41],
		SpotLen: data[42],
	}
	for i := 0; i < otc.SlotCapacity; i++ {
		decodeSlot(data[SlotOffset(market.Perp, i):], &b.PerpOrders[i])
		decodeSlot(data[SlotOffset(market.Spot, i):], &b.SpotOrders[i])
	}
	return b, nil
}

// DecodeSlot reads a single slot out of an encoded book record without
// touching the rest of the layout.
func DecodeSlot(data []byte, class market.Class, idx int) (*otc.Order, error) {
	if len(data) != BookSize {
		return nil, fmt.Errorf("book record is %d bytes, want %d", len(data), BookSize)
	}
	if idx < 0 || idx >= otc.SlotCapacity {
		return nil, fmt.Errorf("slot index %d out of range", idx)
	}
	var ord otc.Order
	decodeSlot(data[SlotOffset(class, idx):], &ord)
	return &ord, nil
}

func encodeSlot(buf []byte, ord *otc.Order) error {
	if len(ord.Market) > maxSymbolLen {
		return fmt.Errorf("market symbol %q exceeds %d bytes", ord.Market, maxSymbolLen)
	}
	buf[0] = byte(ord.Status)
	buf[1] = byte(ord.Side)
	buf[2] = byte(len(ord.Market))
	copy(buf[3:3+maxSymbolLen], ord.Market)
	binary.BigEndian.PutUint64(buf[34:42], uint64(ord.Price))
	binary.BigEndian.PutUint64(buf[42:50], uint64(ord.Size))
	copy(buf[50:70], ord.Counterparty.Bytes())
	binary.BigEndian.PutUint64(buf[70:78], uint64(ord.Expires))
	binary.BigEndian.PutUint64(buf[78:86], uint64(ord.CreatedAt))
	binary.BigEndian.PutUint64(buf[86:94], uint64(ord.LastChangedAt))
	return nil
}

func decodeSlot(buf []byte, ord *otc.Order) {
	symLen := int(buf[2])
	if symLen > maxSymbolLen {
		symLen = maxSymbolLen
	}
	ord.Status = otc.Status(buf[0])
	ord.Side = otc.Side(buf[1])
	ord.Market = string(buf[3 : 3+symLen])
	ord.Price = int64(binary.BigEndian.Uint64(buf[34:42]))
	ord.Size = int64(binary.BigEndian.Uint64(buf[42:50]))
	ord.Counterparty = common.BytesToAddress(buf[50:70])
	ord.Expires = int64(binary.BigEndian.Uint64(buf[70:78]))
	ord.CreatedAt = int64(binary.BigEndian.Uint64(buf[78:86]))
	ord.LastChangedAt = int64(binary.BigEndian.Uint64(buf[86:94]))
}
