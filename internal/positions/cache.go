package positions

import (
	"sync"
	"time"

	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/logging"
)

// PositionUpdateData is the process-wide view of one open position. Venue
// fields (size, side, entry, leverage) are owned by the WebSocket push path;
// strategy fields (StrategyStopLoss, PT1Taken, SecureProfitSLApplied) are
// owned by the exit evaluators and never touched by the push path.
type PositionUpdateData struct {
	Symbol        string  `json:"symbol"`
	Side          exchange.Side `json:"side"`
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entry_price"`
	Leverage      int     `json:"leverage"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Exchange      string  `json:"exchange"`
	StrategyName  string  `json:"strategy_name,omitempty"`

	StrategyStopLoss      float64 `json:"strategy_stop_loss"`
	PT1Taken              bool    `json:"pt1_taken"`
	SecureProfitSLApplied bool    `json:"secure_profit_sl_applied"`

	OpenedAt  time.Time `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cache is the shared position map. Both mutation paths serialize through a
// per-symbol lock so a WS push and a strategy update on the same symbol
// never interleave; readers get copies, never live pointers.
type Cache struct {
	mu        sync.RWMutex
	positions map[string]*PositionUpdateData
	locks     map[string]*sync.Mutex

	store  *RedisStore // optional persistence, nil when disabled
	logger *logging.Logger

	onClosed func(PositionUpdateData)
}

// NewCache creates a position cache. store may be nil.
func NewCache(store *RedisStore) *Cache {
	return &Cache{
		positions: make(map[string]*PositionUpdateData),
		locks:     make(map[string]*sync.Mutex),
		store:     store,
		logger:    logging.Default().WithComponent("positions"),
	}
}

// SetClosedCallback registers a hook fired when a WS push reports a position
// fully closed on the venue side
func (c *Cache) SetClosedCallback(cb func(PositionUpdateData)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClosed = cb
}

// symbolLock returns the per-symbol writer lock, creating it on first use
func (c *Cache) symbolLock(symbol string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		c.locks[symbol] = l
	}
	return l
}

// ApplyWSUpdate applies a batch of private stream pushes. Size, side, entry
// and leverage come from the venue; strategy fields already present are
// preserved. A zero-size event removes the position.
func (c *Cache) ApplyWSUpdate(events []exchange.PositionEvent) {
	for _, ev := range events {
		lock := c.symbolLock(ev.Symbol)
		lock.Lock()

		if ev.Closed {
			c.mu.Lock()
			prev, existed := c.positions[ev.Symbol]
			delete(c.positions, ev.Symbol)
			onClosed := c.onClosed
			c.mu.Unlock()

			if c.store != nil {
				c.store.Delete(ev.Symbol)
			}
			lock.Unlock()

			if existed {
				c.logger.Info("Position closed on venue", "symbol", ev.Symbol)
				if onClosed != nil {
					onClosed(*prev)
				}
			}
			continue
		}

		c.mu.Lock()
		pos, ok := c.positions[ev.Symbol]
		if !ok {
			pos = &PositionUpdateData{
				Symbol:   ev.Symbol,
				OpenedAt: time.Now(),
			}
			c.positions[ev.Symbol] = pos
		}
		pos.Side = ev.Side
		pos.Size = ev.Size
		pos.EntryPrice = ev.EntryPrice
		pos.Leverage = ev.Leverage
		pos.UnrealizedPnL = ev.UnrealizedPnL
		pos.UpdatedAt = time.Now()
		if pos.StrategyStopLoss == 0 && ev.StopLoss > 0 {
			pos.StrategyStopLoss = ev.StopLoss
		}
		snapshot := *pos
		c.mu.Unlock()

		if c.store != nil {
			c.store.Save(&snapshot)
		}
		lock.Unlock()
	}
}

// UpdateStrategyPositionInfo mutates the strategy-owned fields. PT1Taken and
// SecureProfitSLApplied are latches: once set they are never cleared here.
// Returns false when no position exists for the symbol.
func (c *Cache) UpdateStrategyPositionInfo(symbol string, stopLoss float64, pt1Taken, secureProfitApplied bool) bool {
	lock := c.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	pos, ok := c.positions[symbol]
	if !ok {
		c.mu.Unlock()
		return false
	}
	if stopLoss > 0 {
		pos.StrategyStopLoss = stopLoss
	}
	if pt1Taken {
		pos.PT1Taken = true
	}
	if secureProfitApplied {
		pos.SecureProfitSLApplied = true
	}
	pos.UpdatedAt = time.Now()
	snapshot := *pos
	c.mu.Unlock()

	if c.store != nil {
		c.store.Save(&snapshot)
	}
	return true
}

// Track registers a freshly opened position from the order path, before the
// first WS push lands
func (c *Cache) Track(pos PositionUpdateData) {
	lock := c.symbolLock(pos.Symbol)
	lock.Lock()
	defer lock.Unlock()

	pos.OpenedAt = time.Now()
	pos.UpdatedAt = pos.OpenedAt

	c.mu.Lock()
	c.positions[pos.Symbol] = &pos
	snapshot := pos
	c.mu.Unlock()

	if c.store != nil {
		c.store.Save(&snapshot)
	}
}

// Remove drops a position from the cache, e.g. after a strategy-driven full
// exit confirmed by the order manager
func (c *Cache) Remove(symbol string) {
	lock := c.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	delete(c.positions, symbol)
	c.mu.Unlock()

	if c.store != nil {
		c.store.Delete(symbol)
	}
}

// Get returns a copy of the position for the symbol
func (c *Cache) Get(symbol string) (PositionUpdateData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos, ok := c.positions[symbol]
	if !ok {
		return PositionUpdateData{}, false
	}
	return *pos, true
}

// Snapshot returns copies of all open positions
func (c *Cache) Snapshot() []PositionUpdateData {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]PositionUpdateData, 0, len(c.positions))
	for _, pos := range c.positions {
		out = append(out, *pos)
	}
	return out
}

// Count returns the number of open positions
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.positions)
}

// Reconcile replaces venue-owned state with a REST snapshot from one venue,
// keeping strategy fields for symbols that survive. Called after WS
// reconnects so missed pushes cannot leave phantom or stale entries. Only
// positions belonging to the snapshot's venue can go stale here; entries
// tagged with a different venue are untouched. Entries with no venue tag yet
// are treated as the snapshot venue's, since the WS push path that creates
// them serves a single venue.
func (c *Cache) Reconcile(venue string, venuePositions []exchange.Position) {
	seen := make(map[string]bool, len(venuePositions))

	for _, vp := range venuePositions {
		seen[vp.Symbol] = true
		lock := c.symbolLock(vp.Symbol)
		lock.Lock()

		c.mu.Lock()
		pos, ok := c.positions[vp.Symbol]
		if !ok {
			pos = &PositionUpdateData{
				Symbol:   vp.Symbol,
				OpenedAt: time.Now(),
			}
			c.positions[vp.Symbol] = pos
		}
		pos.Side = vp.Side
		pos.Size = vp.Size
		pos.EntryPrice = vp.EntryPrice
		pos.Leverage = vp.Leverage
		pos.UnrealizedPnL = vp.UnrealizedPnL
		pos.Exchange = vp.Exchange
		pos.UpdatedAt = time.Now()
		snapshot := *pos
		c.mu.Unlock()

		if c.store != nil {
			c.store.Save(&snapshot)
		}
		lock.Unlock()
	}

	// Drop this venue's cached positions that the snapshot no longer reports
	c.mu.RLock()
	var stale []string
	for symbol, pos := range c.positions {
		if seen[symbol] {
			continue
		}
		if pos.Exchange == venue || pos.Exchange == "" {
			stale = append(stale, symbol)
		}
	}
	c.mu.RUnlock()

	for _, symbol := range stale {
		c.logger.Warn("Dropping position absent from venue snapshot",
			"symbol", symbol, "venue", venue)
		c.Remove(symbol)
	}
}

// Restore loads persisted strategy state from the store at startup and
// merges it into the cache. Venue fields are still refreshed by the first
// reconcile.
func (c *Cache) Restore() {
	if c.store == nil {
		return
	}
	restored, err := c.store.LoadAll()
	if err != nil {
		c.logger.Error("Failed to restore positions", "error", err.Error())
		return
	}

	c.mu.Lock()
	for symbol, pos := range restored {
		p := pos
		c.positions[symbol] = &p
	}
	count := len(restored)
	c.mu.Unlock()

	if count > 0 {
		c.logger.Info("Restored positions from store", "count", count)
	}
}
