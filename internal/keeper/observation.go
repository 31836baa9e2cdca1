package keeper

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const (
	sourceStatic = "static"
	sourcePyth   = "pyth"
	sourceWS     = "ws"
)

// Observation is the latest off-chain input for one context record. Each
// variant reads only the fields it syncs.
type Observation struct {
	PriceE6 uint64 `json:"price_e6,omitempty"`

	CurrentVolBps uint64 `json:"current_vol_bps,omitempty"`
	VolMarkE6     uint64 `json:"vol_mark_e6,omitempty"`
	VolRegime     uint8  `json:"vol_regime,omitempty"`
	Vol7dAvgBps   uint64 `json:"vol_7d_avg_bps,omitempty"`
	Vol30dAvgBps  uint64 `json:"vol_30d_avg_bps,omitempty"`

	NominalRateBps int32  `json:"nominal_rate_bps,omitempty"`
	InflationBps   int32  `json:"inflation_bps,omitempty"`
	MacroRegime    *uint8 `json:"macro_regime,omitempty"`

	ProbabilityE6 uint64 `json:"probability_e6,omitempty"`

	SignalSeverity  uint64 `json:"signal_severity,omitempty"`
	SignalSpreadBps uint64 `json:"signal_spread_bps,omitempty"`
}

func parseObservation(raw json.RawMessage) (Observation, error) {
	var obs Observation
	if len(raw) == 0 {
		return obs, nil
	}
	if err := json.Unmarshal(raw, &obs); err != nil {
		return Observation{}, fmt.Errorf("decode observation: %w", err)
	}
	return obs, nil
}

type feedEntry struct {
	obs       Observation
	updatedAt time.Time
}

// feedCache holds the newest observation per source and feed.
type feedCache struct {
	mu      sync.RWMutex
	entries map[string]feedEntry
}

func newFeedCache() *feedCache {
	return &feedCache{entries: make(map[string]feedEntry)}
}

func feedKey(source, feed string) string {
	return source + ":" + feed
}

func (c *feedCache) set(source, feed string, obs Observation, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[feedKey(source, feed)] = feedEntry{obs: obs, updatedAt: at}
}

// setPrice updates only the price of a feed, keeping any other fields.
func (c *feedCache) setPrice(source, feed string, priceE6 uint64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := feedKey(source, feed)
	entry := c.entries[key]
	entry.obs.PriceE6 = priceE6
	entry.updatedAt = at
	c.entries[key] = entry
}

func (c *feedCache) get(source, feed string) (Observation, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[feedKey(source, feed)]
	return entry.obs, entry.updatedAt, ok
}
