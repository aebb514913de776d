package orders

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/positions"
)

// fakeExchange is an in-memory venue for manager tests
type fakeExchange struct {
	name      string
	price     float64
	filters   *exchange.SymbolFilters
	positions []exchange.Position

	placed      []exchange.OrderRequest
	placeStatus string
	orderState  map[string]*exchange.Order
	canceled    []string
	levCalls    []int
	isoCalls    int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		name:        "BYBIT",
		price:       100,
		placeStatus: exchange.OrderStatusFilled,
		orderState:  make(map[string]*exchange.Order),
	}
}

func (f *fakeExchange) Name() string { return f.name }

func (f *fakeExchange) GetKlines(symbol, interval string, limit int) ([]exchange.Kline, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeExchange) GetCurrentPrice(symbol string) (float64, error) { return f.price, nil }

func (f *fakeExchange) GetTicker(symbol string) (*exchange.Ticker, error) {
	return &exchange.Ticker{Symbol: symbol, LastPrice: f.price}, nil
}

func (f *fakeExchange) GetEquity() (float64, error) { return 10000, nil }

func (f *fakeExchange) GetPositions() ([]exchange.Position, error) { return f.positions, nil }

func (f *fakeExchange) PlaceOrder(req exchange.OrderRequest) (*exchange.Order, error) {
	f.placed = append(f.placed, req)
	order := &exchange.Order{
		OrderID:       fmt.Sprintf("ORD-%d", len(f.placed)),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Status:        f.placeStatus,
		Quantity:      req.Quantity,
		Exchange:      f.name,
	}
	f.orderState[order.OrderID] = order
	return order, nil
}

func (f *fakeExchange) CancelOrder(symbol, orderID string) (*exchange.Order, error) {
	f.canceled = append(f.canceled, orderID)
	order, ok := f.orderState[orderID]
	if !ok {
		return nil, exchange.ErrOrderNotFound
	}
	cp := *order
	cp.Status = exchange.OrderStatusCanceled
	f.orderState[orderID] = &cp
	return &cp, nil
}

func (f *fakeExchange) GetOrder(symbol, orderID string) (*exchange.Order, error) {
	order, ok := f.orderState[orderID]
	if !ok {
		return nil, exchange.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (f *fakeExchange) GetOpenOrders(symbol string) ([]exchange.Order, error) { return nil, nil }

func (f *fakeExchange) SetLeverage(symbol string, leverage int) error {
	f.levCalls = append(f.levCalls, leverage)
	return nil
}

func (f *fakeExchange) SetIsolatedMargin(symbol string, isolated bool) error {
	f.isoCalls++
	return nil
}

func (f *fakeExchange) GetSymbolFilters(symbol string) (*exchange.SymbolFilters, error) {
	if f.filters == nil {
		return nil, errors.New("no filters")
	}
	return f.filters, nil
}

func newTestManager(f *fakeExchange) (*Manager, *positions.Cache) {
	cache := positions.NewCache(nil)
	mgr := NewManager([]exchange.Exchange{f}, cache, zerolog.Nop())
	return mgr, cache
}

func TestPlaceValidation(t *testing.T) {
	mgr, _ := newTestManager(newFakeExchange())

	cases := []struct {
		req     exchange.OrderRequest
		wantErr error
	}{
		{exchange.OrderRequest{Side: exchange.SideBuy, Quantity: 1}, ErrMissingSymbol},
		{exchange.OrderRequest{Symbol: "BTCUSDT", Quantity: 1}, ErrMissingSide},
		{exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.SideBuy}, ErrInvalidQuantity},
	}
	for _, tc := range cases {
		if _, err := mgr.Place(tc.req, "BYBIT"); !errors.Is(err, tc.wantErr) {
			t.Errorf("Place(%+v) err = %v, want %v", tc.req, err, tc.wantErr)
		}
	}
}

func TestPlaceUnknownExchange(t *testing.T) {
	mgr, _ := newTestManager(newFakeExchange())
	req := exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.SideBuy, Quantity: 1}
	if _, err := mgr.Place(req, "NOPE"); err == nil {
		t.Error("unknown exchange must fail")
	}
}

func TestPlaceRoundsQuantityDown(t *testing.T) {
	f := newFakeExchange()
	f.filters = &exchange.SymbolFilters{Symbol: "BTCUSDT", QtyStep: 0.001, TickSize: 0.5, MinQty: 0.001}
	mgr, _ := newTestManager(f)

	req := exchange.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     exchange.SideBuy,
		Type:     exchange.OrderTypeLimit,
		Quantity: 0.12399,
		Price:    43000.7,
	}
	if _, err := mgr.Place(req, "BYBIT"); err != nil {
		t.Fatal(err)
	}

	got := f.placed[0]
	if got.Quantity != 0.123 {
		t.Errorf("quantity = %v, want rounded down to 0.123", got.Quantity)
	}
	if got.Price != 43000.5 {
		t.Errorf("price = %v, want rounded down to 43000.5", got.Price)
	}
}

func TestPlaceRejectsBelowMinQty(t *testing.T) {
	f := newFakeExchange()
	f.filters = &exchange.SymbolFilters{Symbol: "BTCUSDT", QtyStep: 0.001, MinQty: 0.01}
	mgr, _ := newTestManager(f)

	req := exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.SideBuy, Quantity: 0.005}
	if _, err := mgr.Place(req, "BYBIT"); err == nil {
		t.Error("quantity below venue minimum must be rejected")
	}
	if len(f.placed) != 0 {
		t.Error("rejected order reached the venue")
	}
}

func TestPlaceSetsLeverageForLinearEntry(t *testing.T) {
	f := newFakeExchange()
	mgr, _ := newTestManager(f)

	req := exchange.OrderRequest{
		Symbol:     "BTCUSDT",
		Side:       exchange.SideBuy,
		Quantity:   0.5,
		Leverage:   25,
		MarketType: exchange.MarketTypeLinear,
	}
	if _, err := mgr.Place(req, "BYBIT"); err != nil {
		t.Fatal(err)
	}
	if len(f.levCalls) != 1 || f.levCalls[0] != 25 {
		t.Errorf("leverage calls = %v, want [25]", f.levCalls)
	}
	if f.isoCalls != 1 {
		t.Errorf("isolated-margin calls = %d, want 1", f.isoCalls)
	}

	// Reduce-only closes never touch margin setup
	closeReq := exchange.OrderRequest{
		Symbol:     "BTCUSDT",
		Side:       exchange.SideSell,
		Quantity:   0.5,
		Leverage:   25,
		MarketType: exchange.MarketTypeLinear,
		ReduceOnly: true,
	}
	if _, err := mgr.Place(closeReq, "BYBIT"); err != nil {
		t.Fatal(err)
	}
	if len(f.levCalls) != 1 {
		t.Errorf("reduce-only order changed leverage: %v", f.levCalls)
	}
}

func TestPlaceGeneratesClientOrderID(t *testing.T) {
	f := newFakeExchange()
	mgr, _ := newTestManager(f)

	req := exchange.OrderRequest{
		Symbol:       "BTCUSDT",
		Side:         exchange.SideBuy,
		Quantity:     1,
		StrategyName: "SNIPER",
	}
	if _, err := mgr.Place(req, "BYBIT"); err != nil {
		t.Fatal(err)
	}

	id := f.placed[0].ClientOrderID
	if id == "" {
		t.Fatal("no client order id generated")
	}
	if StrategyFromClientOrderID(id) != "SNI" {
		t.Errorf("id %q does not carry the strategy prefix", id)
	}
}

func TestCancelFilledOrderIsNoOp(t *testing.T) {
	f := newFakeExchange()
	mgr, _ := newTestManager(f)

	req := exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.SideBuy, Quantity: 1}
	order, err := mgr.Place(req, "BYBIT")
	if err != nil {
		t.Fatal(err)
	}

	got, err := mgr.Cancel("BTCUSDT", order.OrderID, "BYBIT")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != exchange.OrderStatusFilled {
		t.Errorf("status = %s, want the filled order back unchanged", got.Status)
	}
	if len(f.canceled) != 0 {
		t.Error("cancel of a filled order reached the venue")
	}
}

func TestCancelOpenOrder(t *testing.T) {
	f := newFakeExchange()
	f.placeStatus = exchange.OrderStatusNew
	mgr, _ := newTestManager(f)

	req := exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.SideBuy, Quantity: 1}
	order, err := mgr.Place(req, "BYBIT")
	if err != nil {
		t.Fatal(err)
	}

	got, err := mgr.Cancel("BTCUSDT", order.OrderID, "BYBIT")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != exchange.OrderStatusCanceled {
		t.Errorf("status = %s, want CANCELED", got.Status)
	}
	if len(f.canceled) != 1 {
		t.Errorf("venue cancel calls = %d, want 1", len(f.canceled))
	}
}

func TestHistoryIgnoresStaleNonTerminalState(t *testing.T) {
	f := newFakeExchange()
	mgr, _ := newTestManager(f)

	req := exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.SideBuy, Quantity: 1}
	order, err := mgr.Place(req, "BYBIT")
	if err != nil {
		t.Fatal(err)
	}

	// A stale poll claiming NEW must not overwrite the FILLED record
	f.orderState[order.OrderID].Status = exchange.OrderStatusNew
	if _, err := mgr.GetOrder("BTCUSDT", order.OrderID, "BYBIT"); err != nil {
		t.Fatal(err)
	}

	history := mgr.History("BTCUSDT")
	if len(history) != 1 {
		t.Fatalf("history has %d orders, want 1", len(history))
	}
	if history[0].Status != exchange.OrderStatusFilled {
		t.Errorf("history status = %s, terminal state was overwritten", history[0].Status)
	}
}

func TestClosePosition(t *testing.T) {
	f := newFakeExchange()
	mgr, cache := newTestManager(f)
	cache.Track(positions.PositionUpdateData{
		Symbol: "BTCUSDT", Side: exchange.SideBuy, Size: 0.5, EntryPrice: 43000,
	})

	pos, err := mgr.ClosePosition("BTCUSDT", "MANUAL_CLOSE", "BYBIT")
	if err != nil {
		t.Fatal(err)
	}
	if pos.Size != 0.5 {
		t.Errorf("returned position size = %v, want 0.5", pos.Size)
	}

	got := f.placed[0]
	if got.Side != exchange.SideSell || !got.ReduceOnly || got.Quantity != 0.5 {
		t.Errorf("close order = %+v, want reduce-only SELL 0.5", got)
	}
	if _, ok := cache.Get("BTCUSDT"); ok {
		t.Error("closed position still cached")
	}
}

func TestClosePositionUnknownSymbol(t *testing.T) {
	mgr, _ := newTestManager(newFakeExchange())
	if _, err := mgr.ClosePosition("NOPE", "MANUAL_CLOSE", "BYBIT"); err == nil {
		t.Error("closing an unknown position must fail")
	}
}

func TestRoundDown(t *testing.T) {
	cases := []struct {
		value, step, want float64
	}{
		{1.23456, 0.001, 1.234},
		{0.999, 0.1, 0.9},
		{43000.7, 0.5, 43000.5},
		{1.5, 0.5, 1.5},
		{0.3, 0.1, 0.3}, // float64 0.3/0.1 is 2.999...; exact decimals keep it 0.3
		{7, 0, 7},
	}
	for _, tc := range cases {
		if got := roundDown(tc.value, tc.step); got != tc.want {
			t.Errorf("roundDown(%v, %v) = %v, want %v", tc.value, tc.step, got, tc.want)
		}
	}
}
