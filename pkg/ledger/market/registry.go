package market

import (
	"fmt"
	"sync"
)

// Registry manages the set of settleable markets in a thread-safe manner.
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*Market // symbol -> market
}

func NewRegistry() *Registry {
	return &Registry{
		markets: make(map[string]*Market),
	}
}

// Register adds a new market to the registry
// Returns error if market with same symbol already exists
func (r *Registry) Register(m *Market) error {
	if m == nil {
		return fmt.Errorf("cannot register nil market")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.markets[m.Symbol]; exists {
		return fmt.Errorf("market %s already registered", m.Symbol)
	}

	r.markets[m.Symbol] = m
	return nil
}

// Get retrieves a market by symbol
// Returns error if market not found
func (r *Registry) Get(symbol string) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.markets[symbol]
	if !exists {
		return nil, fmt.Errorf("market %s not found", symbol)
	}

	return m, nil
}

// List returns all registered markets
// Returns a copy of the slice to avoid concurrent modification
func (r *Registry) List() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	markets := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		markets = append(markets, m)
	}

	return markets
}

// Exists checks if a market is registered
func (r *Registry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.markets[symbol]
	return exists
}

// Count returns the total number of registered markets
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}

// SetStatus changes the settlement status of a market.
func (r *Registry) SetStatus(symbol string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, exists := r.markets[symbol]
	if !exists {
		return fmt.Errorf("market %s not found", symbol)
	}

	if m.Status == Delisted {
		return fmt.Errorf("cannot change status of delisted market %s", symbol)
	}

	m.Status = status
	return nil
}
