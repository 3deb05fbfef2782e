// Package oracle caches the mark prices settlement reads. Prices arrive from
// an external feed (the keeper); settlement only ever reads the cache and
// refuses entries older than the configured validity window.
package oracle

import (
	"sync"

	"github.com/yeonho-jung/otcledger/pkg/ledger/lerr"
)

type entry struct {
	price     int64
	updatedAt int64 // logical seconds
}

// Cache is a thread-safe symbol → mark price map with staleness enforcement.
type Cache struct {
	mu          sync.RWMutex
	prices      map[string]entry
	validWindow int64 // seconds a price stays usable
}

func NewCache(validWindowSec int64) *Cache {
	return &Cache{
		prices:      make(map[string]entry),
		validWindow: validWindowSec,
	}
}

// SetPrice records a new mark price at the given logical time.
func (c *Cache) SetPrice(symbol string, price, now int64) error {
	if err := lerr.Check(price > 0, lerr.InvalidOraclePrice); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Never let a late-arriving update rewind the cache.
	if cur, ok := c.prices[symbol]; ok && now < cur.updatedAt {
		return nil
	}
	c.prices[symbol] = entry{price: price, updatedAt: now}
	return nil
}

// Price returns the cached mark price, failing InvalidOraclePrice when the
// symbol has no price or the cached one is older than the validity window.
func (c *Cache) Price(symbol string, now int64) (int64, error) {
	c.mu.RLock()
	e, ok := c.prices[symbol]
	c.mu.RUnlock()

	if err := lerr.Check(ok, lerr.InvalidOraclePrice); err != nil {
		return 0, err
	}
	if err := lerr.Check(now-e.updatedAt <= c.validWindow, lerr.InvalidOraclePrice); err != nil {
		return 0, err
	}
	return e.price, nil
}

// Symbols returns every symbol with a cached price.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.prices))
	for sym := range c.prices {
		out = append(out, sym)
	}
	return out
}
