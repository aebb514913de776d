package positions

import (
	"testing"

	"sniper-trading-bot/internal/exchange"
)

func TestApplyWSUpdateCreatesPosition(t *testing.T) {
	cache := NewCache(nil)

	cache.ApplyWSUpdate([]exchange.PositionEvent{{
		Symbol:     "BTCUSDT",
		Side:       exchange.SideBuy,
		Size:       0.5,
		EntryPrice: 43000,
		Leverage:   25,
	}})

	pos, ok := cache.Get("BTCUSDT")
	if !ok {
		t.Fatal("position not created from WS push")
	}
	if pos.Size != 0.5 || pos.EntryPrice != 43000 || pos.Leverage != 25 {
		t.Errorf("unexpected venue fields: %+v", pos)
	}
}

func TestApplyWSUpdatePreservesStrategyFields(t *testing.T) {
	cache := NewCache(nil)
	cache.Track(PositionUpdateData{Symbol: "BTCUSDT", Side: exchange.SideBuy, Size: 0.5})
	if !cache.UpdateStrategyPositionInfo("BTCUSDT", 42000, true, false) {
		t.Fatal("strategy update failed")
	}

	cache.ApplyWSUpdate([]exchange.PositionEvent{{
		Symbol:     "BTCUSDT",
		Side:       exchange.SideBuy,
		Size:       0.25,
		EntryPrice: 43000,
		StopLoss:   41000, // venue stop must not override the strategy stop
	}})

	pos, _ := cache.Get("BTCUSDT")
	if pos.StrategyStopLoss != 42000 {
		t.Errorf("StrategyStopLoss = %v, venue push must not override 42000", pos.StrategyStopLoss)
	}
	if !pos.PT1Taken {
		t.Error("PT1Taken latch cleared by WS push")
	}
	if pos.Size != 0.25 {
		t.Errorf("Size = %v, venue push owns size", pos.Size)
	}
}

func TestApplyWSUpdateAdoptsVenueStopWhenUnset(t *testing.T) {
	cache := NewCache(nil)

	cache.ApplyWSUpdate([]exchange.PositionEvent{{
		Symbol:   "ETHUSDT",
		Side:     exchange.SideSell,
		Size:     1,
		StopLoss: 2600,
	}})

	pos, _ := cache.Get("ETHUSDT")
	if pos.StrategyStopLoss != 2600 {
		t.Errorf("StrategyStopLoss = %v, want venue stop 2600 adopted when unset", pos.StrategyStopLoss)
	}
}

func TestClosedEventRemovesAndNotifies(t *testing.T) {
	cache := NewCache(nil)
	var closed []string
	cache.SetClosedCallback(func(pos PositionUpdateData) {
		closed = append(closed, pos.Symbol)
	})

	cache.Track(PositionUpdateData{Symbol: "BTCUSDT", Side: exchange.SideBuy, Size: 0.5})
	cache.ApplyWSUpdate([]exchange.PositionEvent{{Symbol: "BTCUSDT", Closed: true}})

	if _, ok := cache.Get("BTCUSDT"); ok {
		t.Error("closed position still cached")
	}
	if len(closed) != 1 || closed[0] != "BTCUSDT" {
		t.Errorf("closed callback fired %v, want [BTCUSDT]", closed)
	}

	// Closing an unknown symbol must not fire the callback
	cache.ApplyWSUpdate([]exchange.PositionEvent{{Symbol: "DOGEUSDT", Closed: true}})
	if len(closed) != 1 {
		t.Errorf("callback fired for unknown symbol: %v", closed)
	}
}

func TestUpdateStrategyPositionInfoMissingSymbol(t *testing.T) {
	cache := NewCache(nil)
	if cache.UpdateStrategyPositionInfo("NOPE", 100, false, false) {
		t.Error("update for missing symbol must return false")
	}
}

func TestStrategyLatchesNeverClear(t *testing.T) {
	cache := NewCache(nil)
	cache.Track(PositionUpdateData{Symbol: "BTCUSDT", Side: exchange.SideBuy, Size: 1})

	cache.UpdateStrategyPositionInfo("BTCUSDT", 42000, true, true)
	// A later update passing false for the latches must not reset them
	cache.UpdateStrategyPositionInfo("BTCUSDT", 42500, false, false)

	pos, _ := cache.Get("BTCUSDT")
	if !pos.PT1Taken || !pos.SecureProfitSLApplied {
		t.Errorf("latches cleared: %+v", pos)
	}
	if pos.StrategyStopLoss != 42500 {
		t.Errorf("StrategyStopLoss = %v, want 42500", pos.StrategyStopLoss)
	}
}

func TestReconcileConverges(t *testing.T) {
	cache := NewCache(nil)
	cache.Track(PositionUpdateData{Symbol: "BTCUSDT", Side: exchange.SideBuy, Size: 1})
	cache.UpdateStrategyPositionInfo("BTCUSDT", 42000, true, false)
	cache.Track(PositionUpdateData{Symbol: "PHANTOM", Side: exchange.SideSell, Size: 2})

	cache.Reconcile("BYBIT", []exchange.Position{
		{Symbol: "BTCUSDT", Side: exchange.SideBuy, Size: 0.5, EntryPrice: 43000, Exchange: "BYBIT"},
		{Symbol: "SOLUSDT", Side: exchange.SideSell, Size: 10, EntryPrice: 150, Exchange: "BYBIT"},
	})

	if _, ok := cache.Get("PHANTOM"); ok {
		t.Error("phantom position survived reconcile")
	}

	btc, _ := cache.Get("BTCUSDT")
	if btc.Size != 0.5 {
		t.Errorf("BTCUSDT size = %v, want venue truth 0.5", btc.Size)
	}
	if btc.StrategyStopLoss != 42000 || !btc.PT1Taken {
		t.Errorf("strategy fields lost during reconcile: %+v", btc)
	}

	if _, ok := cache.Get("SOLUSDT"); !ok {
		t.Error("venue-only position not adopted by reconcile")
	}
	if cache.Count() != 2 {
		t.Errorf("Count = %d, want 2", cache.Count())
	}
}

func TestReconcileLeavesOtherVenuesAlone(t *testing.T) {
	cache := NewCache(nil)
	cache.Track(PositionUpdateData{Symbol: "ETH_USDT", Side: exchange.SideBuy, Size: 2, Exchange: "MEXC_FUTURES"})
	cache.Track(PositionUpdateData{Symbol: "BTCUSDT", Side: exchange.SideBuy, Size: 1, Exchange: "BYBIT"})

	// A snapshot from one venue must not evict another venue's position
	cache.Reconcile("BYBIT", []exchange.Position{
		{Symbol: "BTCUSDT", Side: exchange.SideBuy, Size: 1, EntryPrice: 43000, Exchange: "BYBIT"},
	})

	if _, ok := cache.Get("ETH_USDT"); !ok {
		t.Error("MEXC_FUTURES position evicted by a BYBIT snapshot")
	}

	// Its own venue's snapshot still drops it
	cache.Reconcile("MEXC_FUTURES", nil)
	if _, ok := cache.Get("ETH_USDT"); ok {
		t.Error("position absent from its own venue's snapshot survived")
	}
	if _, ok := cache.Get("BTCUSDT"); !ok {
		t.Error("BYBIT position evicted by a MEXC_FUTURES snapshot")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	cache := NewCache(nil)
	cache.Track(PositionUpdateData{Symbol: "BTCUSDT", Size: 1})

	pos, _ := cache.Get("BTCUSDT")
	pos.Size = 999

	again, _ := cache.Get("BTCUSDT")
	if again.Size != 1 {
		t.Error("Get leaked a live pointer")
	}
}
