package market

import "fmt"

// Class distinguishes the two instrument families the OTC desk settles.
type Class int8

const (
	Perp Class = iota // perpetual future, position transfer
	Spot              // token-vs-quote balance transfer
)

func (c Class) String() string {
	switch c {
	case Perp:
		return "Perp"
	case Spot:
		return "Spot"
	default:
		return "Unknown"
	}
}

// Status defines the trading status of a market
type Status int8

const (
	Active Status = iota // settlement enabled
	Paused               // settlement halted (emergency)
	Delisted
)

func (s Status) String() string {
	switch s {
	case Active:
		return "Active"
	case Paused:
		return "Paused"
	case Delisted:
		return "Delisted"
	default:
		return "Unknown"
	}
}

// Market defines one settleable instrument and its risk weights.
type Market struct {
	// Identity
	Symbol     string // "BTC-PERP", "ETH-USDC"
	BaseAsset  string // "BTC"
	QuoteAsset string // "USDC"
	Class      Class
	Status     Status

	// PriceScale: a price quotes this many base units per quote unit.
	// Quote notional = price × size / PriceScale. All amounts are scaled
	// integers; no floats anywhere in settlement.
	PriceScale int64

	// Margin requirements in basis points of mark notional.
	// Init gates new risk (order settlement), Maint gates liquidation.
	InitialMarginBps     int64
	MaintenanceMarginBps int64
}

// New creates a market with validation.
func New(symbol, baseAsset, quoteAsset string, class Class, priceScale, initBps, maintBps int64) (*Market, error) {
	m := &Market{
		Symbol:               symbol,
		BaseAsset:            baseAsset,
		QuoteAsset:           quoteAsset,
		Class:                class,
		Status:               Active,
		PriceScale:           priceScale,
		InitialMarginBps:     initBps,
		MaintenanceMarginBps: maintBps,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewPerpWithDefaults creates a perp market with 10x init / 20x maint weights.
func NewPerpWithDefaults(symbol, baseAsset, quoteAsset string) (*Market, error) {
	return New(symbol, baseAsset, quoteAsset, Perp, 1, 1000, 500)
}

// NewSpotWithDefaults creates a spot market; the margin weights apply only to
// borrowed (negative) token balances.
func NewSpotWithDefaults(symbol, baseAsset, quoteAsset string) (*Market, error) {
	return New(symbol, baseAsset, quoteAsset, Spot, 1, 1000, 500)
}

// Validate checks market parameter sanity
func (m *Market) Validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if m.BaseAsset == "" || m.QuoteAsset == "" {
		return fmt.Errorf("base and quote assets must be specified")
	}
	if m.PriceScale <= 0 {
		return fmt.Errorf("price scale must be positive")
	}
	if m.InitialMarginBps <= 0 {
		return fmt.Errorf("initial margin must be positive")
	}
	if m.MaintenanceMarginBps <= 0 {
		return fmt.Errorf("maintenance margin must be positive")
	}
	if m.MaintenanceMarginBps > m.InitialMarginBps {
		return fmt.Errorf("maintenance margin cannot exceed initial margin")
	}
	return nil
}

// MarginBps returns the margin requirement for the given health tier.
func (m *Market) MarginBps(init bool) int64 {
	if init {
		return m.InitialMarginBps
	}
	return m.MaintenanceMarginBps
}
