package account

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/yeonho-jung/otcledger/pkg/ledger/fpmath"
	"github.com/yeonho-jung/otcledger/pkg/ledger/lerr"
)

// Position is an open perpetual position within a margin account.
type Position struct {
	Symbol string // market symbol (e.g. "BTC-PERP")

	// Size in base units; positive = long, negative = short.
	Size int64

	// Volume-weighted average entry price.
	// Updated on each fill: newEntry = (oldEntry × oldSize + fillPrice × fillSize) / newSize
	EntryPrice int64
}

// MarginAccount is one cross-margined account. All instruments share the
// single quote balance as collateral. The settlement engine is one of several
// writers, so nothing here assumes exclusive ownership across transactions.
type MarginAccount struct {
	Owner common.Address
	Nonce uint64 // replay protection for signed instructions

	// QuoteBalance is free collateral in quote units (may go negative only
	// transiently inside an instruction; health gating decides if it sticks).
	QuoteBalance int64

	// TokenBalances tracks spot assets by base symbol. Negative = borrowed.
	TokenBalances map[string]int64

	// Positions maps perp market symbol → open position.
	Positions map[string]*Position
}

func NewMarginAccount(owner common.Address) *MarginAccount {
	return &MarginAccount{
		Owner:         owner,
		TokenBalances: make(map[string]int64),
		Positions:     make(map[string]*Position),
	}
}

// Clone returns a deep copy. Settlement mutates clones, health-checks them,
// and only then persists — the original is never touched on a failed take.
func (a *MarginAccount) Clone() *MarginAccount {
	c := &MarginAccount{
		Owner:         a.Owner,
		Nonce:         a.Nonce,
		QuoteBalance:  a.QuoteBalance,
		TokenBalances: make(map[string]int64, len(a.TokenBalances)),
		Positions:     make(map[string]*Position, len(a.Positions)),
	}
	for sym, bal := range a.TokenBalances {
		c.TokenBalances[sym] = bal
	}
	for sym, pos := range a.Positions {
		p := *pos
		c.Positions[sym] = &p
	}
	return c
}

// GetPosition returns the position for a symbol, or nil if flat.
func (a *MarginAccount) GetPosition(symbol string) *Position {
	return a.Positions[symbol]
}

// PositionSize returns the signed size for a symbol (0 when flat).
func (a *MarginAccount) PositionSize(symbol string) int64 {
	if pos := a.Positions[symbol]; pos != nil {
		return pos.Size
	}
	return 0
}

// TokenBalance returns the spot balance for an asset (0 when absent).
func (a *MarginAccount) TokenBalance(asset string) int64 {
	return a.TokenBalances[asset]
}

// Deposit credits quote collateral.
func (a *MarginAccount) Deposit(amount int64) error {
	if err := lerr.Check(amount > 0, lerr.InvalidParam); err != nil {
		return err
	}
	bal, ok := fpmath.Add(a.QuoteBalance, amount)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return err
	}
	a.QuoteBalance = bal
	return nil
}

// Withdraw debits quote collateral. The caller is responsible for the
// post-withdrawal health check; this only guards the raw balance.
func (a *MarginAccount) Withdraw(amount int64) error {
	if err := lerr.Check(amount > 0, lerr.InvalidParam); err != nil {
		return err
	}
	if err := lerr.Check(a.QuoteBalance >= amount, lerr.InsufficientFunds); err != nil {
		return err
	}
	a.QuoteBalance -= amount
	return nil
}

// ApplyQuoteDelta adjusts the quote balance by a signed amount.
func (a *MarginAccount) ApplyQuoteDelta(delta int64) error {
	bal, ok := fpmath.Add(a.QuoteBalance, delta)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return err
	}
	a.QuoteBalance = bal
	return nil
}

// ApplyTokenDelta adjusts a spot asset balance by a signed amount. Balances
// may go negative: a negative balance is a borrow, priced into health.
func (a *MarginAccount) ApplyTokenDelta(asset string, delta int64) error {
	bal, ok := fpmath.Add(a.TokenBalances[asset], delta)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return err
	}
	a.TokenBalances[asset] = bal
	return nil
}

// ApplyPerpDelta moves a perp position by sizeDelta at the given fill price,
// with priceScale from the market. Adding risk updates the VWAP entry;
// reducing realizes PnL into the quote balance; crossing through flat re-opens
// at the fill price.
func (a *MarginAccount) ApplyPerpDelta(symbol string, sizeDelta, price, priceScale int64) error {
	if sizeDelta == 0 {
		return nil
	}

	pos := a.Positions[symbol]
	if pos == nil {
		pos = &Position{Symbol: symbol}
		a.Positions[symbol] = pos
	}

	oldSize := pos.Size
	newSize, ok := fpmath.Add(oldSize, sizeDelta)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return err
	}

	sameDirection := oldSize == 0 || (oldSize > 0) == (newSize > 0)

	switch {
	case newSize == 0:
		// Full close: realize (price - entry) × oldSize / scale.
		pnl, ok := fpmath.MulDiv(price-pos.EntryPrice, oldSize, priceScale)
		if err := lerr.Check(ok, lerr.MathError); err != nil {
			return err
		}
		if err := a.ApplyQuoteDelta(pnl); err != nil {
			return err
		}
		pos.Size = 0
		pos.EntryPrice = 0

	case sameDirection && newSize != 0:
		if oldSize == 0 {
			pos.EntryPrice = price
			pos.Size = newSize
			break
		}
		// Same direction: weighted-average entry over absolute sizes.
		absOld, ok1 := fpmath.Abs(oldSize)
		absDelta, ok2 := fpmath.Abs(sizeDelta)
		absNew, ok3 := fpmath.Abs(newSize)
		if err := lerr.Check(ok1 && ok2 && ok3, lerr.MathError); err != nil {
			return err
		}
		oldLeg, ok1 := fpmath.Mul(pos.EntryPrice, absOld)
		newLeg, ok2 := fpmath.Mul(price, absDelta)
		sum, ok3 := fpmath.Add(oldLeg, newLeg)
		if err := lerr.Check(ok1 && ok2 && ok3, lerr.MathError); err != nil {
			return err
		}
		pos.EntryPrice = sum / absNew
		pos.Size = newSize

	default:
		// Crossed through flat: realize the closed leg, re-open the rest at
		// the fill price.
		pnl, ok := fpmath.MulDiv(price-pos.EntryPrice, oldSize, priceScale)
		if err := lerr.Check(ok, lerr.MathError); err != nil {
			return err
		}
		if err := a.ApplyQuoteDelta(pnl); err != nil {
			return err
		}
		pos.Size = newSize
		pos.EntryPrice = price
	}

	return nil
}
