package storage

import (
	"fmt"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/yeonho-jung/otcledger/pkg/ledger/account"
	"github.com/yeonho-jung/otcledger/pkg/ledger/otc"
)

// newTestStore opens a store on a unique temporary path so parallel tests
// never fight over the Pebble lock.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := fmt.Sprintf("./tmp_test_store_%s.db", t.Name())
	os.RemoveAll(path)
	t.Cleanup(func() { os.RemoveAll(path) })

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAccountRoundTrip(t *testing.T) {
	s := newTestStore(t)

	missing, err := s.LoadAccount(creator)
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Fatal("missing account should load as nil")
	}

	acc := account.NewMarginAccount(creator)
	acc.Nonce = 3
	acc.QuoteBalance = 100000
	acc.TokenBalances["BTC"] = -200
	acc.Positions["BTC-PERP"] = &account.Position{Symbol: "BTC-PERP", Size: 100, EntryPrice: 50000}

	b := s.NewBatch()
	if err := b.PutAccount(acc); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadAccount(creator)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("stored account not found")
	}
	if got.Nonce != 3 || got.QuoteBalance != 100000 {
		t.Errorf("account = %+v", got)
	}
	if got.TokenBalances["BTC"] != -200 {
		t.Errorf("token balance = %d, want -200", got.TokenBalances["BTC"])
	}
	if pos := got.Positions["BTC-PERP"]; pos == nil || pos.Size != 100 || pos.EntryPrice != 50000 {
		t.Errorf("position = %+v", got.Positions["BTC-PERP"])
	}
}

func TestBookRoundTrip(t *testing.T) {
	s := newTestStore(t)
	book := populatedBook(t)

	b := s.NewBatch()
	if err := b.PutBook(book); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadBook(book.Address)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("stored book not found")
	}
	if got.Creator != book.Creator || got.PerpLen != 1 || got.SpotLen != 1 {
		t.Errorf("book = %+v", got)
	}
	if got.PerpOrders[0] != book.PerpOrders[0] {
		t.Errorf("perp slot 0 = %+v", got.PerpOrders[0])
	}
}

func TestUncommittedBatchIsInvisible(t *testing.T) {
	s := newTestStore(t)

	acc := account.NewMarginAccount(creator)
	acc.QuoteBalance = 500

	b := s.NewBatch()
	if err := b.PutAccount(acc); err != nil {
		t.Fatal(err)
	}
	if err := b.PutSeq(1); err != nil {
		t.Fatal(err)
	}
	// Drop the batch instead of committing it.
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadAccount(creator)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("discarded batch leaked an account write")
	}
	seq, err := s.LastSeq()
	if err != nil {
		t.Fatal(err)
	}
	if seq != 0 {
		t.Errorf("seq = %d, want 0", seq)
	}
}

func TestLoadRecentFillsNewestFirst(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	for i := 0; i < 5; i++ {
		fill := &otc.Fill{
			ID:     uuid.NewString(),
			Market: "BTC-PERP",
			Class:  "Perp",
			Side:   "Ask",
			Price:  50000,
			Size:   int64(i + 1),
			Time:   1000 + int64(i),
		}
		if err := b.PutFill(fill); err != nil {
			t.Fatal(err)
		}
	}
	// A fill in another market must not bleed into the query.
	if err := b.PutFill(&otc.Fill{ID: uuid.NewString(), Market: "ETH-PERP", Time: 2000}); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	fills, err := s.LoadRecentFills("BTC-PERP", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 3 {
		t.Fatalf("len = %d, want 3", len(fills))
	}
	// Newest first: sizes 5, 4, 3.
	for i, want := range []int64{5, 4, 3} {
		if fills[i].Size != want {
			t.Errorf("fills[%d].Size = %d, want %d", i, fills[i].Size, want)
		}
	}
}

func TestLastSeqPersists(t *testing.T) {
	s := newTestStore(t)

	seq, err := s.LastSeq()
	if err != nil {
		t.Fatal(err)
	}
	if seq != 0 {
		t.Errorf("fresh store seq = %d, want 0", seq)
	}

	b := s.NewBatch()
	if err := b.PutSeq(42); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	seq, err = s.LastSeq()
	if err != nil {
		t.Fatal(err)
	}
	if seq != 42 {
		t.Errorf("seq = %d, want 42", seq)
	}
}

func TestForEachAccountKeyOrder(t *testing.T) {
	s := newTestStore(t)

	// Digit-only addresses so the checksummed key casing cannot reorder them.
	b := s.NewBatch()
	for _, addr := range []string{
		"0x3300000000000000000000000000000000000000",
		"0x1100000000000000000000000000000000000000",
		"0x2200000000000000000000000000000000000000",
	} {
		acc := account.NewMarginAccount(common.HexToAddress(addr))
		if err := b.PutAccount(acc); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	var seen []byte
	err := s.ForEachAccount(func(acc *account.MarginAccount) error {
		seen = append(seen, acc.Owner[0])
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 || seen[0] != 0x11 || seen[1] != 0x22 || seen[2] != 0x33 {
		t.Errorf("walk order = %x, want 11 22 33", seen)
	}
}
