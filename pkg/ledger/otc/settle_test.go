package otc

import (
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yeonho-jung/otcledger/pkg/ledger/account"
	"github.com/yeonho-jung/otcledger/pkg/ledger/lerr"
	"github.com/yeonho-jung/otcledger/pkg/ledger/market"
	"github.com/yeonho-jung/otcledger/pkg/ledger/oracle"
)

var feeSink = common.HexToAddress("0xFEE0000000000000000000000000000000000000")

// testEngine wires a registry with one perp and one spot market (scale 1,
// 10% init / 5% maint margin), an oracle with both prices at 1, and an engine
// with no spot fee unless feeBps is set.
func testEngine(t *testing.T, now int64, feeBps int64) (*Engine, *oracle.Cache) {
	t.Helper()
	return testEngineWithCollector(t, now, feeBps, feeSink)
}

func testEngineWithCollector(t *testing.T, now, feeBps int64, collector common.Address) (*Engine, *oracle.Cache) {
	t.Helper()

	registry := market.NewRegistry()
	perp, err := market.NewPerpWithDefaults("BTC-PERP", "BTC", "USDC")
	if err != nil {
		t.Fatal(err)
	}
	spot, err := market.NewSpotWithDefaults("BTC-USDC", "BTC", "USDC")
	if err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(perp); err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(spot); err != nil {
		t.Fatal(err)
	}

	orc := oracle.NewCache(3600)
	if err := orc.SetPrice("BTC-PERP", 1, now); err != nil {
		t.Fatal(err)
	}
	if err := orc.SetPrice("BTC-USDC", 1, now); err != nil {
		t.Fatal(err)
	}

	eval := account.NewEvaluator(registry, orc)
	return NewEngine(registry, eval, feeBps, collector), orc
}

func funded(owner common.Address, quote int64) *account.MarginAccount {
	acc := account.NewMarginAccount(owner)
	acc.QuoteBalance = quote
	return acc
}

// TestTakeAskMovesPositions is the core exactly-once settlement flow: an Ask
// of size 200 at price 1 moves the creator to -200 and the taker to +200, and
// a second take against the filled slot fails without touching positions.
func TestTakeAskMovesPositions(t *testing.T) {
	now := int64(1000)
	engine, _ := testEngine(t, now, 0)

	b := NewBook(alice)
	idx, err := b.Create(market.Perp, "BTC-PERP", Ask, 1, 200, bob, now+3600, now)
	if err != nil {
		t.Fatal(err)
	}

	creator := funded(alice, 4000)
	taker := funded(bob, 6000)

	res, err := engine.Take(b, market.Perp, idx, creator, taker, nil, now)
	if err != nil {
		t.Fatalf("take failed: %v", err)
	}

	// Creator sold 200, taker bought 200.
	if got := res.Creator.PositionSize("BTC-PERP"); got != -200 {
		t.Errorf("creator position = %d, want -200", got)
	}
	if got := res.Taker.PositionSize("BTC-PERP"); got != 200 {
		t.Errorf("taker position = %d, want 200", got)
	}
	// Engine works on clones; the originals are the caller's to discard.
	if creator.PositionSize("BTC-PERP") != 0 || taker.PositionSize("BTC-PERP") != 0 {
		t.Error("engine mutated the input accounts")
	}
	// Filled slot stays occupied: len unchanged.
	if b.PerpOrders[idx].Status != Filled {
		t.Errorf("status = %v, want Filled", b.PerpOrders[idx].Status)
	}
	if b.PerpLen != 1 {
		t.Errorf("len = %d, want 1", b.PerpLen)
	}
	if res.Fill == nil || res.Fill.Size != 200 || res.Fill.Price != 1 {
		t.Errorf("fill record wrong: %+v", res.Fill)
	}

	// Second take fails on the status check and changes nothing.
	_, err = engine.Take(b, market.Perp, idx, res.Creator, res.Taker, nil, now)
	if !lerr.Is(err, lerr.InvalidAccountState) {
		t.Errorf("second take: err = %v, want InvalidAccountState", err)
	}
	if res.Creator.PositionSize("BTC-PERP") != -200 || res.Taker.PositionSize("BTC-PERP") != 200 {
		t.Error("positions changed on failed second take")
	}
}

// TestTakeSideSymmetry verifies a Bid moves the creator +S / taker -S with
// the same magnitudes as an Ask moves them -S / +S.
func TestTakeSideSymmetry(t *testing.T) {
	now := int64(1000)

	for _, c := range []struct {
		side                 Side
		creatorPos, takerPos int64
	}{
		{Ask, -200, 200},
		{Bid, 200, -200},
	} {
		engine, _ := testEngine(t, now, 0)
		b := NewBook(alice)
		idx, err := b.Create(market.Perp, "BTC-PERP", c.side, 1, 200, bob, now+3600, now)
		if err != nil {
			t.Fatal(err)
		}

		res, err := engine.Take(b, market.Perp, idx, funded(alice, 4000), funded(bob, 6000), nil, now)
		if err != nil {
			t.Fatalf("%v take failed: %v", c.side, err)
		}
		if got := res.Creator.PositionSize("BTC-PERP"); got != c.creatorPos {
			t.Errorf("%v: creator position = %d, want %d", c.side, got, c.creatorPos)
		}
		if got := res.Taker.PositionSize("BTC-PERP"); got != c.takerPos {
			t.Errorf("%v: taker position = %d, want %d", c.side, got, c.takerPos)
		}
	}
}

// TestTakeSelfTradeRejected: Create refuses slots naming their own creator as
// counterparty, but Take must hold the line on its own for records that
// predate the rule — settling both legs onto one account would net a
// one-sided position.
func TestTakeSelfTradeRejected(t *testing.T) {
	now := int64(1000)
	engine, _ := testEngine(t, now, 0)

	b := NewBook(alice)
	b.PerpOrders[0] = Order{
		Status:        Active,
		Side:          Ask,
		Market:        "BTC-PERP",
		Price:         1,
		Size:          200,
		Counterparty:  alice,
		Expires:       now + 3600,
		CreatedAt:     now,
		LastChangedAt: now,
	}
	b.PerpLen = 1

	creator := funded(alice, 4000)
	taker := funded(alice, 4000)
	_, err := engine.Take(b, market.Perp, 0, creator, taker, nil, now)
	if !lerr.Is(err, lerr.InvalidAccount) {
		t.Errorf("err = %v, want InvalidAccount", err)
	}
	if creator.PositionSize("BTC-PERP") != 0 || taker.PositionSize("BTC-PERP") != 0 {
		t.Error("positions changed on rejected self-trade")
	}
	if b.PerpOrders[0].Status != Active {
		t.Errorf("status = %v, want Active", b.PerpOrders[0].Status)
	}
}

func TestTakeInvalidCounterparty(t *testing.T) {
	now := int64(1000)
	engine, _ := testEngine(t, now, 0)

	b := NewBook(alice)
	idx, err := b.Create(market.Perp, "BTC-PERP", Ask, 1, 200, bob, now+3600, now)
	if err != nil {
		t.Fatal(err)
	}

	// carol is not the designated counterparty.
	carol := common.HexToAddress("0xCC00000000000000000000000000000000000000")
	_, err = engine.Take(b, market.Perp, idx, funded(alice, 4000), funded(carol, 6000), nil, now)
	if !lerr.Is(err, lerr.InvalidAccount) {
		t.Errorf("err = %v, want InvalidAccount", err)
	}
	if b.PerpOrders[idx].Status != Active {
		t.Error("slot changed on rejected take")
	}
}

// TestTakeInsufficientHealth: both parties deposit zero, so the post-trade
// margin requirement (200 × mark 1 × 10% = 20) sinks both below zero.
func TestTakeInsufficientHealth(t *testing.T) {
	now := int64(1000)
	engine, _ := testEngine(t, now, 0)

	b := NewBook(alice)
	idx, err := b.Create(market.Perp, "BTC-PERP", Ask, 1, 200, bob, now+3600, now)
	if err != nil {
		t.Fatal(err)
	}

	creator := funded(alice, 0)
	taker := funded(bob, 0)
	_, err = engine.Take(b, market.Perp, idx, creator, taker, nil, now)
	if !lerr.Is(err, lerr.InsufficientHealth) {
		t.Errorf("err = %v, want InsufficientHealth", err)
	}
	// Evaluate-then-commit: nothing stuck.
	if creator.PositionSize("BTC-PERP") != 0 || taker.PositionSize("BTC-PERP") != 0 {
		t.Error("positions changed on insolvent take")
	}
	if b.PerpOrders[idx].Status != Active {
		t.Errorf("status = %v, want Active", b.PerpOrders[idx].Status)
	}
}

func TestTakeExpired(t *testing.T) {
	now := int64(1000)
	engine, _ := testEngine(t, now, 0)

	b := NewBook(alice)
	idx, err := b.Create(market.Perp, "BTC-PERP", Ask, 1, 200, bob, now+100, now)
	if err != nil {
		t.Fatal(err)
	}

	// Expiry is checked before solvency: fully funded parties still fail.
	for _, at := range []int64{now + 100, now + 101} {
		_, err := engine.Take(b, market.Perp, idx, funded(alice, 4000), funded(bob, 6000), nil, at)
		if !lerr.Is(err, lerr.OrderExpired) {
			t.Errorf("take at %d: err = %v, want OrderExpired", at, err)
		}
	}
	// Strictly before expiry still settles.
	if _, err := engine.Take(b, market.Perp, idx, funded(alice, 4000), funded(bob, 6000), nil, now+99); err != nil {
		t.Errorf("take before expiry failed: %v", err)
	}
}

func TestTakeIndexOutOfRange(t *testing.T) {
	now := int64(1000)
	engine, _ := testEngine(t, now, 0)
	b := NewBook(alice)

	for _, idx := range []int{-1, SlotCapacity, 1337} {
		_, err := engine.Take(b, market.Perp, idx, funded(alice, 1), funded(bob, 1), nil, now)
		if !lerr.Is(err, lerr.InvalidOrderId) {
			t.Errorf("idx %d: err = %v, want InvalidOrderId", idx, err)
		}
	}
}

// TestTakeSpotLegs: Ask of 200 base at price 1, 1% taker fee.
//
//	notional = 1 × 200 / 1 = 200, fee = 200 × 100 / 10000 = 2
//	creator: base -200, quote 1000 + 200       = 1200
//	taker:   base +200, quote 1000 - 200 - 2   = 798
//	fee collector: quote +2
func TestTakeSpotLegs(t *testing.T) {
	now := int64(1000)
	engine, _ := testEngine(t, now, 100)

	b := NewBook(alice)
	idx, err := b.Create(market.Spot, "BTC-USDC", Ask, 1, 200, bob, now+3600, now)
	if err != nil {
		t.Fatal(err)
	}

	res, err := engine.Take(b, market.Spot, idx, funded(alice, 1000), funded(bob, 1000), funded(feeSink, 0), now)
	if err != nil {
		t.Fatalf("spot take failed: %v", err)
	}

	if got := res.Creator.TokenBalance("BTC"); got != -200 {
		t.Errorf("creator base = %d, want -200", got)
	}
	if got := res.Creator.QuoteBalance; got != 1200 {
		t.Errorf("creator quote = %d, want 1200", got)
	}
	if got := res.Taker.TokenBalance("BTC"); got != 200 {
		t.Errorf("taker base = %d, want 200", got)
	}
	if got := res.Taker.QuoteBalance; got != 798 {
		t.Errorf("taker quote = %d, want 798", got)
	}
	if res.FeeCollector == nil || res.FeeCollector.QuoteBalance != 2 {
		t.Errorf("fee collector wrong: %+v", res.FeeCollector)
	}
	if res.Fill.Fee != 2 {
		t.Errorf("fill fee = %d, want 2", res.Fill.Fee)
	}
	if b.SpotOrders[idx].Status != Filled {
		t.Errorf("status = %v, want Filled", b.SpotOrders[idx].Status)
	}
	if b.SpotLen != 1 {
		t.Errorf("spot len = %d, want 1", b.SpotLen)
	}
}

// TestTakeSpotFeeCollectorAliasesParty: when the fee collector is one of the
// parties, the fee credit lands on that party's clone and res.FeeCollector
// stays nil — a second copy of the same address would overwrite the
// settlement legs at persist time. Same terms as TestTakeSpotLegs (notional
// 200, fee 2):
//
//	taker as collector:   bob pays and pockets the fee, 1000 - 200 - 2 + 2 = 800
//	creator as collector: alice nets the fee,           1000 + 200 + 2     = 1202
func TestTakeSpotFeeCollectorAliasesParty(t *testing.T) {
	now := int64(1000)

	for _, c := range []struct {
		name                     string
		collector                common.Address
		creatorQuote, takerQuote int64
	}{
		{"taker collects", bob, 1200, 800},
		{"creator collects", alice, 1202, 798},
	} {
		engine, _ := testEngineWithCollector(t, now, 100, c.collector)
		b := NewBook(alice)
		idx, err := b.Create(market.Spot, "BTC-USDC", Ask, 1, 200, bob, now+3600, now)
		if err != nil {
			t.Fatal(err)
		}

		// The caller hands the engine a separately loaded copy of the
		// collector's account, exactly as the instruction processor does.
		res, err := engine.Take(b, market.Spot, idx, funded(alice, 1000), funded(bob, 1000), funded(c.collector, 0), now)
		if err != nil {
			t.Fatalf("%s: take failed: %v", c.name, err)
		}
		if res.FeeCollector != nil {
			t.Errorf("%s: separate collector copy materialized: %+v", c.name, res.FeeCollector)
		}
		if got := res.Creator.QuoteBalance; got != c.creatorQuote {
			t.Errorf("%s: creator quote = %d, want %d", c.name, got, c.creatorQuote)
		}
		if got := res.Taker.QuoteBalance; got != c.takerQuote {
			t.Errorf("%s: taker quote = %d, want %d", c.name, got, c.takerQuote)
		}
		if res.Fill.Fee != 2 {
			t.Errorf("%s: fill fee = %d, want 2", c.name, res.Fill.Fee)
		}
	}
}

// TestTakeMathOverflow: a size at int64 max makes the margin-requirement
// arithmetic overflow once the 128-bit quotient leaves int64 range, and the
// whole take aborts with MathError.
func TestTakeMathOverflow(t *testing.T) {
	now := int64(1000)
	engine, orc := testEngine(t, now, 0)
	if err := orc.SetPrice("BTC-PERP", 2, now); err != nil {
		t.Fatal(err)
	}

	b := NewBook(alice)
	idx, err := b.Create(market.Perp, "BTC-PERP", Ask, 1, math.MaxInt64, bob, now+3600, now)
	if err != nil {
		t.Fatal(err)
	}

	creator := funded(alice, math.MaxInt64)
	taker := funded(bob, math.MaxInt64)
	_, err = engine.Take(b, market.Perp, idx, creator, taker, nil, now)
	if !lerr.Is(err, lerr.MathError) {
		t.Errorf("err = %v, want MathError", err)
	}
	if creator.PositionSize("BTC-PERP") != 0 || taker.PositionSize("BTC-PERP") != 0 {
		t.Error("positions changed on overflowing take")
	}
	if b.PerpOrders[idx].Status != Active {
		t.Error("slot changed on overflowing take")
	}
}

// TestTakeCancelledSlot: the soft-cancelled window makes a racing take fail
// deterministically on the status check.
func TestTakeCancelledSlot(t *testing.T) {
	now := int64(1000)
	engine, _ := testEngine(t, now, 0)

	b := NewBook(alice)
	idx, err := b.Create(market.Perp, "BTC-PERP", Ask, 1, 200, bob, now+3600, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Cancel(market.Perp, idx, alice, now); err != nil {
		t.Fatal(err)
	}

	_, err = engine.Take(b, market.Perp, idx, funded(alice, 4000), funded(bob, 6000), nil, now)
	if !lerr.Is(err, lerr.InvalidAccountState) {
		t.Errorf("err = %v, want InvalidAccountState", err)
	}
}
