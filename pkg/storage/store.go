// Package storage persists ledger state in Pebble. Accounts and fills are
// JSON records; order books use the fixed-width codec. All writes for one
// instruction go through a single Batch so the durable effect is all or
// nothing.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yeonho-jung/otcledger/pkg/ledger/account"
	"github.com/yeonho-jung/otcledger/pkg/ledger/otc"
)

type Store struct {
	db *pebble.DB
}

func NewStore(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// LoadAccount returns the stored account, or nil when it does not exist.
func (s *Store) LoadAccount(addr common.Address) (*account.MarginAccount, error) {
	data, closer, err := s.db.Get(accountKey(addr))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	defer closer.Close()

	var acc account.MarginAccount
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	if acc.TokenBalances == nil {
		acc.TokenBalances = make(map[string]int64)
	}
	if acc.Positions == nil {
		acc.Positions = make(map[string]*account.Position)
	}
	return &acc, nil
}

// LoadBook returns the stored order book, or nil when it does not exist.
func (s *Store) LoadBook(addr common.Address) (*otc.Book, error) {
	data, closer, err := s.db.Get(bookKey(addr))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	defer closer.Close()
	return DecodeBook(data)
}

// LoadRecentFills returns up to limit fills for a market, newest first.
func (s *Store) LoadRecentFills(market string, limit int) ([]*otc.Fill, error) {
	prefix := fillPrefix(market)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("fill iterator: %w", err)
	}
	defer iter.Close()

	var fills []*otc.Fill
	for iter.Last(); iter.Valid() && len(fills) < limit; iter.Prev() {
		var fill otc.Fill
		if err := json.Unmarshal(iter.Value(), &fill); err != nil {
			continue
		}
		fills = append(fills, &fill)
	}
	return fills, nil
}

// LastSeq returns the sequence number of the last committed instruction, or
// zero when nothing has been applied.
func (s *Store) LastSeq() (uint64, error) {
	data, closer, err := s.db.Get(seqKey())
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get seq: %w", err)
	}
	defer closer.Close()
	return binary.BigEndian.Uint64(data), nil
}

// ForEachAccount walks all stored accounts in key order.
func (s *Store) ForEachAccount(fn func(acc *account.MarginAccount) error) error {
	return s.forEachPrefix([]byte(prefixAccount), func(val []byte) error {
		var acc account.MarginAccount
		if err := json.Unmarshal(val, &acc); err != nil {
			return fmt.Errorf("unmarshal account: %w", err)
		}
		return fn(&acc)
	})
}

// ForEachBook walks all stored order books in key order.
func (s *Store) ForEachBook(fn func(b *otc.Book) error) error {
	return s.forEachPrefix([]byte(prefixBook), func(val []byte) error {
		b, err := DecodeBook(val)
		if err != nil {
			return err
		}
		return fn(b)
	})
}

func (s *Store) forEachPrefix(prefix []byte, fn func(val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// Batch buffers every write of one instruction. Nothing reaches the database
// until Commit; dropping the batch discards all staged writes.
type Batch struct {
	b *pebble.Batch
}

func (s *Store) NewBatch() *Batch {
	return &Batch{b: s.db.NewBatch()}
}

func (b *Batch) PutAccount(acc *account.MarginAccount) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	return b.b.Set(accountKey(acc.Owner), data, nil)
}

func (b *Batch) PutBook(book *otc.Book) error {
	data, err := EncodeBook(book)
	if err != nil {
		return err
	}
	return b.b.Set(bookKey(book.Address), data, nil)
}

func (b *Batch) PutFill(fill *otc.Fill) error {
	data, err := json.Marshal(fill)
	if err != nil {
		return fmt.Errorf("marshal fill: %w", err)
	}
	return b.b.Set(fillKey(fill.Market, fill.Time, fill.ID), data, nil)
}

func (b *Batch) PutSeq(seq uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return b.b.Set(seqKey(), buf[:], nil)
}

// Commit flushes the staged writes durably.
func (b *Batch) Commit() error {
	return b.b.Commit(pebble.Sync)
}

// Close discards the batch without committing.
func (b *Batch) Close() error {
	return b.b.Close()
}
