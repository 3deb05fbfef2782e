package account

import (
	"github.com/yeonho-jung/otcledger/pkg/ledger/fpmath"
	"github.com/yeonho-jung/otcledger/pkg/ledger/lerr"
	"github.com/yeonho-jung/otcledger/pkg/ledger/market"
	"github.com/yeonho-jung/otcledger/pkg/ledger/oracle"
)

// Tier selects the margin weights used for a health evaluation. TierInit
// gates new risk (settlement, withdrawals); TierMaint gates liquidation.
type Tier int8

const (
	TierInit Tier = iota
	TierMaint
)

func (t Tier) String() string {
	if t == TierInit {
		return "Init"
	}
	return "Maint"
}

// HealthEvaluator is what settlement needs from a risk model: a signed
// collateral figure for a proposed account state. Negative means the state
// must not be committed.
type HealthEvaluator interface {
	Health(acc *MarginAccount, tier Tier, now int64) (int64, error)
}

// Evaluator prices an account against the market registry and oracle cache.
//
//	health = quote balance
//	       + Σ spot token values   (borrows weighted up by tier bps)
//	       + Σ perp unrealized PnL
//	       - Σ perp margin requirement (|size| × mark × tierBps / 10000)
type Evaluator struct {
	registry *market.Registry
	oracle   *oracle.Cache
}

func NewEvaluator(registry *market.Registry, orc *oracle.Cache) *Evaluator {
	return &Evaluator{registry: registry, oracle: orc}
}

// Health computes the account's collateral value at the given tier. Only
// markets with actual exposure need an oracle price; a flat account never
// touches the oracle.
func (e *Evaluator) Health(acc *MarginAccount, tier Tier, now int64) (int64, error) {
	health := acc.QuoteBalance

	for _, m := range e.registry.List() {
		var contrib int64
		var err error

		switch m.Class {
		case market.Spot:
			contrib, err = e.spotContribution(acc, m, tier, now)
		case market.Perp:
			contrib, err = e.perpContribution(acc, m, tier, now)
		}
		if err != nil {
			return 0, err
		}

		next, ok := fpmath.Add(health, contrib)
		if err := lerr.Check(ok, lerr.MathError); err != nil {
			return 0, err
		}
		health = next
	}

	return health, nil
}

func (e *Evaluator) spotContribution(acc *MarginAccount, m *market.Market, tier Tier, now int64) (int64, error) {
	bal := acc.TokenBalances[m.BaseAsset]
	if bal == 0 {
		return 0, nil
	}

	mark, err := e.oracle.Price(m.Symbol, now)
	if err != nil {
		return 0, err
	}

	value, ok := fpmath.MulDiv(bal, mark, m.PriceScale)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return 0, err
	}
	if bal > 0 {
		return value, nil
	}

	// A borrow counts at more than face value: the haircut is the tier's
	// margin requirement on the borrowed notional.
	haircut, ok := fpmath.MulDiv(value, m.MarginBps(tier == TierInit), 10000)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return 0, err
	}
	return fpmathAddChecked(value, haircut)
}

func (e *Evaluator) perpContribution(acc *MarginAccount, m *market.Market, tier Tier, now int64) (int64, error) {
	pos := acc.Positions[m.Symbol]
	if pos == nil || pos.Size == 0 {
		return 0, nil
	}

	mark, err := e.oracle.Price(m.Symbol, now)
	if err != nil {
		return 0, err
	}

	// Unrealized PnL: (mark - entry) × size / scale.
	upnl, ok := fpmath.MulDiv(mark-pos.EntryPrice, pos.Size, m.PriceScale)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return 0, err
	}

	absSize, ok := fpmath.Abs(pos.Size)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return 0, err
	}
	notional, ok := fpmath.MulDiv(absSize, mark, m.PriceScale)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return 0, err
	}
	required, ok := fpmath.MulDiv(notional, m.MarginBps(tier == TierInit), 10000)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return 0, err
	}

	return fpmathAddChecked(upnl, -required)
}

func fpmathAddChecked(a, b int64) (int64, error) {
	sum, ok := fpmath.Add(a, b)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return 0, err
	}
	return sum, nil
}
