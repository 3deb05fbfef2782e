package account

import (
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yeonho-jung/otcledger/pkg/ledger/lerr"
)

var (
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
)

func TestDepositWithdraw(t *testing.T) {
	acc := NewMarginAccount(alice)

	if err := acc.Deposit(100000); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if acc.QuoteBalance != 100000 {
		t.Errorf("balance = %d, want 100000", acc.QuoteBalance)
	}

	if err := acc.Deposit(-100); !lerr.Is(err, lerr.InvalidParam) {
		t.Errorf("negative deposit: err = %v, want InvalidParam", err)
	}
	if err := acc.Deposit(0); !lerr.Is(err, lerr.InvalidParam) {
		t.Errorf("zero deposit: err = %v, want InvalidParam", err)
	}

	if err := acc.Withdraw(40000); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if acc.QuoteBalance != 60000 {
		t.Errorf("balance = %d, want 60000", acc.QuoteBalance)
	}
	if err := acc.Withdraw(60001); !lerr.Is(err, lerr.InsufficientFunds) {
		t.Errorf("overdraw: err = %v, want InsufficientFunds", err)
	}
}

func TestDepositOverflow(t *testing.T) {
	acc := NewMarginAccount(alice)
	acc.QuoteBalance = math.MaxInt64

	if err := acc.Deposit(1); !lerr.Is(err, lerr.MathError) {
		t.Errorf("err = %v, want MathError", err)
	}
	if acc.QuoteBalance != math.MaxInt64 {
		t.Error("balance changed on failed deposit")
	}
}

func TestCloneIsDeep(t *testing.T) {
	acc := NewMarginAccount(alice)
	acc.QuoteBalance = 500
	acc.TokenBalances["BTC"] = 7
	acc.Positions["BTC-PERP"] = &Position{Symbol: "BTC-PERP", Size: 100, EntryPrice: 50000}

	c := acc.Clone()
	c.QuoteBalance = 0
	c.TokenBalances["BTC"] = -1
	c.Positions["BTC-PERP"].Size = -100

	if acc.QuoteBalance != 500 {
		t.Error("clone shares quote balance")
	}
	if acc.TokenBalances["BTC"] != 7 {
		t.Error("clone shares token map")
	}
	if acc.Positions["BTC-PERP"].Size != 100 {
		t.Error("clone shares position pointers")
	}
}

func TestApplyPerpDeltaOpenAndClose(t *testing.T) {
	acc := NewMarginAccount(alice)

	// Open long 100 @ 50000.
	if err := acc.ApplyPerpDelta("BTC-PERP", 100, 50000, 1); err != nil {
		t.Fatal(err)
	}
	pos := acc.GetPosition("BTC-PERP")
	if pos.Size != 100 || pos.EntryPrice != 50000 {
		t.Fatalf("position = %+v", pos)
	}

	// Full close at 51000: realized pnl = (51000-50000) × 100 / 1 = 100000.
	if err := acc.ApplyPerpDelta("BTC-PERP", -100, 51000, 1); err != nil {
		t.Fatal(err)
	}
	pos = acc.GetPosition("BTC-PERP")
	if pos.Size != 0 || pos.EntryPrice != 0 {
		t.Errorf("position after close = %+v", pos)
	}
	if acc.QuoteBalance != 100000 {
		t.Errorf("realized pnl = %d, want 100000", acc.QuoteBalance)
	}
}

func TestApplyPerpDeltaAveragesEntry(t *testing.T) {
	acc := NewMarginAccount(alice)

	// 100 @ 50000 then 100 @ 52000: entry = (50000×100 + 52000×100) / 200 = 51000.
	if err := acc.ApplyPerpDelta("BTC-PERP", 100, 50000, 1); err != nil {
		t.Fatal(err)
	}
	if err := acc.ApplyPerpDelta("BTC-PERP", 100, 52000, 1); err != nil {
		t.Fatal(err)
	}
	pos := acc.GetPosition("BTC-PERP")
	if pos.Size != 200 || pos.EntryPrice != 51000 {
		t.Errorf("position = %+v, want size 200 entry 51000", pos)
	}
}

func TestApplyPerpDeltaCrossThroughFlat(t *testing.T) {
	acc := NewMarginAccount(alice)

	// Long 100 @ 50000, then sell 150 @ 51000: realize (51000-50000)×100 =
	// 100000 on the closed leg, reopen short 50 @ 51000.
	if err := acc.ApplyPerpDelta("BTC-PERP", 100, 50000, 1); err != nil {
		t.Fatal(err)
	}
	if err := acc.ApplyPerpDelta("BTC-PERP", -150, 51000, 1); err != nil {
		t.Fatal(err)
	}
	pos := acc.GetPosition("BTC-PERP")
	if pos.Size != -50 || pos.EntryPrice != 51000 {
		t.Errorf("position = %+v, want size -50 entry 51000", pos)
	}
	if acc.QuoteBalance != 100000 {
		t.Errorf("realized pnl = %d, want 100000", acc.QuoteBalance)
	}
}

func TestApplyTokenDeltaAllowsBorrow(t *testing.T) {
	acc := NewMarginAccount(alice)

	if err := acc.ApplyTokenDelta("BTC", -200); err != nil {
		t.Fatal(err)
	}
	if acc.TokenBalance("BTC") != -200 {
		t.Errorf("balance = %d, want -200", acc.TokenBalance("BTC"))
	}
}
