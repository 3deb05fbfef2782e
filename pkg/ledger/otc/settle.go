package otc

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/yeonho-jung/otcledger/pkg/ledger/account"
	"github.com/yeonho-jung/otcledger/pkg/ledger/fpmath"
	"github.com/yeonho-jung/otcledger/pkg/ledger/lerr"
	"github.com/yeonho-jung/otcledger/pkg/ledger/market"
)

// Fill is the audit record of one settled OTC order.
type Fill struct {
	ID        string         `json:"id"`
	Market    string         `json:"market"`
	Class     string         `json:"class"`
	Side      string         `json:"side"` // creator's side
	Price     int64          `json:"price"`
	Size      int64          `json:"size"`
	Fee       int64          `json:"fee"` // quote units, paid by the taker (spot only)
	Creator   common.Address `json:"creator"`
	Taker     common.Address `json:"taker"`
	Book      common.Address `json:"book"`
	SlotIndex int            `json:"slot_index"`
	Time      int64          `json:"time"`
}

// Result carries the proposed post-trade state out of a successful Take. The
// caller persists all of it in one transaction or none of it; the engine
// itself never writes through to the originals except the slot transition,
// which happens last, after every check has passed.
type Result struct {
	Creator *account.MarginAccount
	Taker   *account.MarginAccount
	// FeeCollector is non-nil only when a spot fee was charged.
	FeeCollector *account.MarginAccount
	Fill         *Fill
}

// Engine settles OTC orders. It owns no state of its own: markets, risk and
// fee policy are injected.
type Engine struct {
	registry *market.Registry
	eval     account.HealthEvaluator

	spotFeeBps   int64
	feeCollector common.Address
}

func NewEngine(registry *market.Registry, eval account.HealthEvaluator, spotFeeBps int64, feeCollector common.Address) *Engine {
	return &Engine{
		registry:     registry,
		eval:         eval,
		spotFeeBps:   spotFeeBps,
		feeCollector: feeCollector,
	}
}

// Take fills an Active slot against its designated counterparty. All-or-
// nothing: deltas are applied to clones, both parties are health-checked at
// the initial-margin tier on the proposed state, and only then is the slot
// marked Filled. The occupancy counter is untouched — a Filled slot stays
// occupied as the on-ledger record of the trade.
//
// feeAcct is the fee collector's account; it may be nil when no spot fee is
// configured.
func (e *Engine) Take(book *Book, class market.Class, idx int, creator, taker, feeAcct *account.MarginAccount, now int64) (*Result, error) {
	ord, err := book.Slot(class, idx)
	if err != nil {
		return nil, err
	}
	if err := lerr.Check(ord.Status == Active, lerr.InvalidAccountState); err != nil {
		return nil, err
	}
	if err := lerr.Check(taker.Owner == ord.Counterparty, lerr.InvalidAccount); err != nil {
		return nil, err
	}
	// Create refuses self-matching slots, but a record could predate that
	// rule; both legs on one account would conjure a position from nothing.
	if err := lerr.Check(creator.Owner != taker.Owner, lerr.InvalidAccount); err != nil {
		return nil, err
	}
	if err := lerr.Check(now < ord.Expires, lerr.OrderExpired); err != nil {
		return nil, err
	}

	m, err := e.registry.Get(ord.Market)
	if err != nil {
		return nil, lerr.Throw(lerr.InvalidMarket)
	}
	if err := lerr.Check(m.Class == class, lerr.InvalidMarket); err != nil {
		return nil, err
	}
	if err := lerr.Check(m.Status == market.Active, lerr.InvalidMarket); err != nil {
		return nil, err
	}

	// Creator sells on an Ask, buys on a Bid; the taker takes the exact
	// negation. No partial fills: full recorded size at the recorded price.
	creatorDelta := ord.Size
	if ord.Side == Ask {
		var ok bool
		creatorDelta, ok = fpmath.Neg(ord.Size)
		if err := lerr.Check(ok, lerr.MathError); err != nil {
			return nil, err
		}
	}
	takerDelta, ok := fpmath.Neg(creatorDelta)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return nil, err
	}

	res := &Result{
		Creator: creator.Clone(),
		Taker:   taker.Clone(),
	}

	var fee int64
	switch class {
	case market.Perp:
		if err := res.Creator.ApplyPerpDelta(m.Symbol, creatorDelta, ord.Price, m.PriceScale); err != nil {
			return nil, err
		}
		if err := res.Taker.ApplyPerpDelta(m.Symbol, takerDelta, ord.Price, m.PriceScale); err != nil {
			return nil, err
		}

	case market.Spot:
		fee, err = e.applySpotLegs(res, m, ord, creatorDelta, takerDelta, feeAcct)
		if err != nil {
			return nil, err
		}
	}

	// Evaluate-then-commit: both parties must be solvent at the init tier on
	// the proposed state. Never commit-then-revert.
	creatorHealth, err := e.eval.Health(res.Creator, account.TierInit, now)
	if err != nil {
		return nil, err
	}
	if err := lerr.Check(creatorHealth >= 0, lerr.InsufficientHealth); err != nil {
		return nil, err
	}
	takerHealth, err := e.eval.Health(res.Taker, account.TierInit, now)
	if err != nil {
		return nil, err
	}
	if err := lerr.Check(takerHealth >= 0, lerr.InsufficientHealth); err != nil {
		return nil, err
	}

	ord.Status = Filled
	ord.LastChangedAt = now

	res.Fill = &Fill{
		ID:        uuid.NewString(),
		Market:    ord.Market,
		Class:     class.String(),
		Side:      ord.Side.String(),
		Price:     ord.Price,
		Size:      ord.Size,
		Fee:       fee,
		Creator:   creator.Owner,
		Taker:     taker.Owner,
		Book:      book.Address,
		SlotIndex: idx,
		Time:      now,
	}
	return res, nil
}

// applySpotLegs moves size base units against price×size/scale quote units
// between the cloned parties, charging the taker the configured fee in quote
// units. Rounding truncates toward zero on both notional and fee.
func (e *Engine) applySpotLegs(res *Result, m *market.Market, ord *Order, creatorDelta, takerDelta int64, feeAcct *account.MarginAccount) (int64, error) {
	notional, ok := fpmath.MulDiv(ord.Price, ord.Size, m.PriceScale)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return 0, err
	}

	// Quote moves opposite the base: the seller of base receives quote.
	creatorQuote := notional
	takerQuote, ok := fpmath.Neg(notional)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return 0, err
	}
	if ord.Side == Bid {
		creatorQuote, takerQuote = takerQuote, creatorQuote
	}

	if err := res.Creator.ApplyTokenDelta(m.BaseAsset, creatorDelta); err != nil {
		return 0, err
	}
	if err := res.Taker.ApplyTokenDelta(m.BaseAsset, takerDelta); err != nil {
		return 0, err
	}
	if err := res.Creator.ApplyQuoteDelta(creatorQuote); err != nil {
		return 0, err
	}
	if err := res.Taker.ApplyQuoteDelta(takerQuote); err != nil {
		return 0, err
	}

	if e.spotFeeBps == 0 {
		return 0, nil
	}
	if err := lerr.Check(feeAcct != nil, lerr.InvalidAccount); err != nil {
		return 0, err
	}

	fee, ok := fpmath.MulDiv(notional, e.spotFeeBps, 10000)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return 0, err
	}
	if fee == 0 {
		return 0, nil
	}

	negFee, ok := fpmath.Neg(fee)
	if err := lerr.Check(ok, lerr.MathError); err != nil {
		return 0, err
	}
	if err := res.Taker.ApplyQuoteDelta(negFee); err != nil {
		return 0, err
	}

	// Each address is materialized at most once per settlement. A collector
	// that is also a party takes the credit on that party's clone; a second
	// copy of the same account would overwrite the settlement legs when both
	// are persisted.
	switch feeAcct.Owner {
	case res.Taker.Owner:
		if err := res.Taker.ApplyQuoteDelta(fee); err != nil {
			return 0, err
		}
	case res.Creator.Owner:
		if err := res.Creator.ApplyQuoteDelta(fee); err != nil {
			return 0, err
		}
	default:
		res.FeeCollector = feeAcct.Clone()
		if err := res.FeeCollector.ApplyQuoteDelta(fee); err != nil {
			return 0, err
		}
	}
	return fee, nil
}
