package hedging

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/marketdata"
	"sniper-trading-bot/internal/orders"
	"sniper-trading-bot/internal/positions"
)

// fakeExchange is an in-memory venue for hedging tests. The manager
// reconciles the cache from GetPositions after every order, so multi-tick
// tests must mirror their tracked positions here.
type fakeExchange struct {
	price     float64
	klines    []exchange.Kline
	positions []exchange.Position
	placed    []exchange.OrderRequest
}

func (f *fakeExchange) Name() string { return "BYBIT" }

func (f *fakeExchange) GetKlines(symbol, interval string, limit int) ([]exchange.Kline, error) {
	if f.klines == nil {
		return nil, errors.New("no kline data")
	}
	return f.klines, nil
}

func (f *fakeExchange) GetCurrentPrice(symbol string) (float64, error) { return f.price, nil }

func (f *fakeExchange) GetTicker(symbol string) (*exchange.Ticker, error) {
	return &exchange.Ticker{Symbol: symbol, LastPrice: f.price}, nil
}

func (f *fakeExchange) GetEquity() (float64, error) { return 10000, nil }

func (f *fakeExchange) GetPositions() ([]exchange.Position, error) { return f.positions, nil }

func (f *fakeExchange) PlaceOrder(req exchange.OrderRequest) (*exchange.Order, error) {
	f.placed = append(f.placed, req)
	return &exchange.Order{
		OrderID:  fmt.Sprintf("ORD-%d", len(f.placed)),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Status:   exchange.OrderStatusFilled,
		Quantity: req.Quantity,
	}, nil
}

func (f *fakeExchange) CancelOrder(symbol, orderID string) (*exchange.Order, error) {
	return nil, exchange.ErrOrderNotFound
}

func (f *fakeExchange) GetOrder(symbol, orderID string) (*exchange.Order, error) {
	return nil, exchange.ErrOrderNotFound
}

func (f *fakeExchange) GetOpenOrders(symbol string) ([]exchange.Order, error) { return nil, nil }

func (f *fakeExchange) SetLeverage(symbol string, leverage int) error { return nil }

func (f *fakeExchange) SetIsolatedMargin(symbol string, isolated bool) error { return nil }

func (f *fakeExchange) GetSymbolFilters(symbol string) (*exchange.SymbolFilters, error) {
	return nil, errors.New("no filters")
}

// calmKlines produce an ATR well under the volatility threshold
func calmKlines(n int, price float64) []exchange.Kline {
	klines := make([]exchange.Kline, n)
	for i := range klines {
		klines[i] = exchange.Kline{Open: price, High: price + 0.5, Low: price - 0.5, Close: price}
	}
	return klines
}

// spikyKlines produce an ATR of ~10% of price
func spikyKlines(n int, price float64) []exchange.Kline {
	klines := make([]exchange.Kline, n)
	for i := range klines {
		klines[i] = exchange.Kline{Open: price, High: price + 5, Low: price - 5, Close: price}
	}
	return klines
}

func newTestService(cfg *Config, fake *fakeExchange) (*Service, *positions.Cache) {
	cache := positions.NewCache(nil)
	marketData := marketdata.NewService([]exchange.Exchange{fake}, time.Minute, time.Second)
	orderMgr := orders.NewManager([]exchange.Exchange{fake}, cache, zerolog.Nop())
	svc := NewService(cfg, cache, orderMgr, marketData, nil, nil, "BYBIT")
	return svc, cache
}

func losingPosition() positions.PositionUpdateData {
	// 20% of notional under water against the 15% threshold
	return positions.PositionUpdateData{
		Symbol:        "BTCUSDT",
		Side:          exchange.SideBuy,
		Size:          0.5,
		EntryPrice:    43000,
		Leverage:      25,
		UnrealizedPnL: -43000 * 0.5 * 0.20,
	}
}

func losingVenuePosition() exchange.Position {
	pos := losingPosition()
	return exchange.Position{
		Symbol:        pos.Symbol,
		Side:          pos.Side,
		Size:          pos.Size,
		EntryPrice:    pos.EntryPrice,
		Leverage:      pos.Leverage,
		UnrealizedPnL: pos.UnrealizedPnL,
		Exchange:      "BYBIT",
	}
}

func TestLossTriggerOpensHedge(t *testing.T) {
	fake := &fakeExchange{price: 42000}
	svc, cache := newTestService(nil, fake)
	cache.Track(losingPosition())

	svc.Tick()

	hedges := svc.ActiveHedges()
	if len(hedges) != 1 {
		t.Fatalf("got %d active hedges, want 1", len(hedges))
	}
	h := hedges[0]
	if h.Reason != TriggerHighUnrealizedLoss {
		t.Errorf("reason = %s, want %s", h.Reason, TriggerHighUnrealizedLoss)
	}
	if h.HedgeSymbol != "BTCUSDT" || h.Type != HedgeDirectOpposite {
		t.Errorf("hedge = %+v, want direct opposite on BTCUSDT", h)
	}
	if h.HedgeSide != exchange.SideSell {
		t.Errorf("hedge side = %s, want SELL against a long", h.HedgeSide)
	}
	if h.Size != 0.25 {
		t.Errorf("hedge size = %v, want half the base size", h.Size)
	}

	if len(fake.placed) != 1 {
		t.Fatalf("venue saw %d orders, want 1", len(fake.placed))
	}
	if fake.placed[0].StrategyName != "HEDGE" {
		t.Errorf("hedge order strategy = %q, want HEDGE", fake.placed[0].StrategyName)
	}
}

func TestActiveHedgeIsNotDoubled(t *testing.T) {
	fake := &fakeExchange{price: 42000, positions: []exchange.Position{losingVenuePosition()}}
	svc, cache := newTestService(nil, fake)
	cache.Track(losingPosition())

	svc.Tick()
	svc.Tick()

	if len(svc.ActiveHedges()) != 1 {
		t.Errorf("repeated ticks stacked hedges: %d", len(svc.ActiveHedges()))
	}
	if len(fake.placed) != 1 {
		t.Errorf("venue saw %d orders, want 1", len(fake.placed))
	}
}

func TestCooldownSuppressesRehedge(t *testing.T) {
	fake := &fakeExchange{price: 42000, positions: []exchange.Position{losingVenuePosition()}}
	svc, cache := newTestService(nil, fake)
	cache.Track(losingPosition())

	svc.Tick()
	if err := svc.CloseHedge("BTCUSDT", "TEST"); err != nil {
		t.Fatal(err)
	}

	// Position still losing, but the 5 minute cooldown holds
	svc.Tick()
	if len(svc.ActiveHedges()) != 0 {
		t.Error("cooldown did not suppress the re-hedge")
	}

	// Expire the cooldown and the trigger fires again
	svc.mu.Lock()
	svc.lastHedged["BTCUSDT"] = time.Now().Add(-6 * time.Minute)
	svc.mu.Unlock()

	svc.Tick()
	if len(svc.ActiveHedges()) != 1 {
		t.Error("expired cooldown should allow a new hedge")
	}
}

func TestVolatilityTrigger(t *testing.T) {
	fake := &fakeExchange{price: 100, klines: spikyKlines(20, 100)}
	svc, cache := newTestService(nil, fake)
	cache.Track(positions.PositionUpdateData{
		Symbol: "ETHUSDT", Side: exchange.SideSell, Size: 2, EntryPrice: 100,
	})

	svc.Tick()

	hedges := svc.ActiveHedges()
	if len(hedges) != 1 {
		t.Fatalf("got %d hedges, want 1", len(hedges))
	}
	if hedges[0].Reason != TriggerVolatilitySpike {
		t.Errorf("reason = %s, want %s", hedges[0].Reason, TriggerVolatilitySpike)
	}
	if hedges[0].HedgeSide != exchange.SideBuy {
		t.Errorf("hedge side = %s, want BUY against a short", hedges[0].HedgeSide)
	}
}

func TestCalmMarketNoTrigger(t *testing.T) {
	fake := &fakeExchange{price: 100, klines: calmKlines(20, 100)}
	svc, cache := newTestService(nil, fake)
	cache.Track(positions.PositionUpdateData{
		Symbol: "ETHUSDT", Side: exchange.SideBuy, Size: 2, EntryPrice: 100, UnrealizedPnL: 5,
	})

	svc.Tick()

	if len(svc.ActiveHedges()) != 0 {
		t.Errorf("calm profitable position hedged: %+v", svc.ActiveHedges())
	}
}

// The loss trigger is checked before volatility, so a losing position in a
// spiky market reports HIGH_UNREALIZED_LOSS
func TestTriggerPriorityLossBeforeVolatility(t *testing.T) {
	fake := &fakeExchange{price: 42000, klines: spikyKlines(20, 100)}
	svc, _ := newTestService(nil, fake)

	trigger, ok := svc.evaluateTriggers(losingPosition())
	if !ok || trigger != TriggerHighUnrealizedLoss {
		t.Errorf("trigger = %s (ok=%v), want %s first", trigger, ok, TriggerHighUnrealizedLoss)
	}
}

func TestCorrelationTrigger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCorrelatedValue = 40000
	cfg.CorrelationGroups = map[string]string{"BTCUSDT": "majors", "ETHUSDT": "majors"}

	fake := &fakeExchange{price: 43000, klines: calmKlines(20, 43000)}
	svc, cache := newTestService(cfg, fake)
	cache.Track(positions.PositionUpdateData{Symbol: "BTCUSDT", Side: exchange.SideBuy, Size: 0.5, EntryPrice: 43000})
	cache.Track(positions.PositionUpdateData{Symbol: "ETHUSDT", Side: exchange.SideBuy, Size: 10, EntryPrice: 2600})

	trigger, ok := svc.evaluateTriggers(positions.PositionUpdateData{
		Symbol: "BTCUSDT", Side: exchange.SideBuy, Size: 0.5, EntryPrice: 43000,
	})
	if !ok || trigger != TriggerCorrelationRisk {
		t.Errorf("trigger = %s (ok=%v), want %s", trigger, ok, TriggerCorrelationRisk)
	}
}

func TestCorrelatedHedgeInstrument(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CorrelatedHedge = map[string]string{"BTCUSDT": "ETHUSDT"}

	fake := &fakeExchange{price: 2600}
	svc, cache := newTestService(cfg, fake)
	cache.Track(losingPosition())

	svc.Tick()

	hedges := svc.ActiveHedges()
	if len(hedges) != 1 {
		t.Fatalf("got %d hedges, want 1", len(hedges))
	}
	if hedges[0].HedgeSymbol != "ETHUSDT" || hedges[0].Type != HedgeCorrelationHedge {
		t.Errorf("hedge = %+v, want correlation hedge on ETHUSDT", hedges[0])
	}
}

func TestOrphanedHedgeClosed(t *testing.T) {
	fake := &fakeExchange{price: 42000}
	svc, cache := newTestService(nil, fake)
	cache.Track(losingPosition())

	svc.Tick()
	if len(svc.ActiveHedges()) != 1 {
		t.Fatal("hedge not opened")
	}

	// Underlying closes on the venue; the next tick unwinds the hedge
	cache.Remove("BTCUSDT")
	svc.Tick()

	if len(svc.ActiveHedges()) != 0 {
		t.Error("orphaned hedge survived")
	}
	if len(fake.placed) != 2 {
		t.Fatalf("venue saw %d orders, want open + close", len(fake.placed))
	}
	unwind := fake.placed[1]
	if unwind.Side != exchange.SideBuy || !unwind.ReduceOnly {
		t.Errorf("unwind order = %+v, want reduce-only BUY", unwind)
	}
}

func TestExpiredHedgeClosed(t *testing.T) {
	fake := &fakeExchange{price: 42000}
	svc, cache := newTestService(nil, fake)
	cache.Track(losingPosition())

	svc.Tick()

	svc.mu.Lock()
	svc.active["BTCUSDT"].ExpiresAt = time.Now().Add(-time.Minute)
	svc.mu.Unlock()

	svc.Tick()
	if len(svc.ActiveHedges()) != 0 {
		t.Errorf("expired hedge still active: %+v", svc.ActiveHedges())
	}
	if len(fake.placed) != 2 {
		t.Errorf("venue saw %d orders, want open + expiry unwind", len(fake.placed))
	}
}
