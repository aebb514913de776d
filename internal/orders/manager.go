package orders

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/positions"
)

// Errors for order validation
var (
	ErrMissingSymbol   = errors.New("order request missing symbol")
	ErrMissingSide     = errors.New("order request missing side")
	ErrInvalidQuantity = errors.New("order request quantity must be positive")
	ErrUnknownOrder    = errors.New("order not found in history")
)

// Manager submits, cancels and reconciles orders. Submission is at-least-once:
// a timed-out submit may have landed on the venue, so the open-position view
// is reconciled from exchange state, never from local bookkeeping alone.
type Manager struct {
	exchanges map[string]exchange.Exchange
	cache     *positions.Cache
	logger    zerolog.Logger

	mu      sync.RWMutex
	history map[string]*exchange.Order // orderID -> last known state
	filters map[string]*exchange.SymbolFilters
}

// NewManager creates an order manager over the given venues
func NewManager(exchanges []exchange.Exchange, cache *positions.Cache, logger zerolog.Logger) *Manager {
	byName := make(map[string]exchange.Exchange, len(exchanges))
	for _, ex := range exchanges {
		byName[ex.Name()] = ex
	}
	return &Manager{
		exchanges: byName,
		cache:     cache,
		logger:    logger.With().Str("component", "orders").Logger(),
		history:   make(map[string]*exchange.Order),
		filters:   make(map[string]*exchange.SymbolFilters),
	}
}

func (m *Manager) exchangeByName(name string) (exchange.Exchange, error) {
	ex, ok := m.exchanges[name]
	if !ok {
		return nil, fmt.Errorf("unknown exchange %q", name)
	}
	return ex, nil
}

// validate rejects malformed requests before they reach a venue
func validate(req *exchange.OrderRequest) error {
	if req.Symbol == "" {
		return ErrMissingSymbol
	}
	if req.Side != exchange.SideBuy && req.Side != exchange.SideSell {
		return ErrMissingSide
	}
	if req.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// Place validates, rounds and submits an order. For leveraged entries it
// first issues set-leverage and set-isolated calls; failures there are
// logged and the trade proceeds. On success the position cache is refreshed
// from venue state.
func (m *Manager) Place(req exchange.OrderRequest, exchangeName string) (*exchange.Order, error) {
	if err := validate(&req); err != nil {
		m.logger.Warn().Err(err).Str("symbol", req.Symbol).Msg("rejecting malformed order request")
		return nil, err
	}

	ex, err := m.exchangeByName(exchangeName)
	if err != nil {
		return nil, err
	}

	if req.MarketType == exchange.MarketTypeLinear && req.Leverage > 0 && !req.ReduceOnly {
		if err := ex.SetLeverage(req.Symbol, req.Leverage); err != nil {
			m.logger.Warn().Err(err).
				Str("symbol", req.Symbol).
				Int("leverage", req.Leverage).
				Msg("set-leverage failed, proceeding with venue default")
		}
		if err := ex.SetIsolatedMargin(req.Symbol, true); err != nil {
			m.logger.Warn().Err(err).
				Str("symbol", req.Symbol).
				Msg("set-isolated failed, proceeding with current margin mode")
		}
	}

	if err := m.roundToFilters(ex, &req); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("quantity rounds to zero for %s", req.Symbol)
	}

	if req.ClientOrderID == "" {
		req.ClientOrderID = GenerateClientOrderID(req.StrategyName)
	}

	order, err := ex.PlaceOrder(req)
	if err != nil {
		m.logger.Error().Err(err).
			Str("symbol", req.Symbol).
			Str("side", string(req.Side)).
			Float64("quantity", req.Quantity).
			Msg("order submission failed")
		return nil, fmt.Errorf("error placing order for %s: %w", req.Symbol, err)
	}

	m.logger.Info().
		Str("order_id", order.OrderID).
		Str("client_order_id", order.ClientOrderID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("status", order.Status).
		Float64("quantity", order.Quantity).
		Str("strategy", req.StrategyName).
		Msg("order submitted")

	m.record(order)
	m.refreshCache(ex)
	return order, nil
}

// Cancel cancels an order. Canceling an already-FILLED order is a no-op
// returning the filled order unchanged.
func (m *Manager) Cancel(symbol, orderID, exchangeName string) (*exchange.Order, error) {
	ex, err := m.exchangeByName(exchangeName)
	if err != nil {
		return nil, err
	}

	current, err := ex.GetOrder(symbol, orderID)
	if err == nil && current.Status == exchange.OrderStatusFilled {
		m.logger.Info().
			Str("order_id", orderID).
			Str("symbol", symbol).
			Msg("cancel requested for filled order, no-op")
		m.record(current)
		return current, nil
	}

	order, err := ex.CancelOrder(symbol, orderID)
	if err != nil {
		return nil, fmt.Errorf("error canceling order %s: %w", orderID, err)
	}

	m.logger.Info().
		Str("order_id", order.OrderID).
		Str("symbol", symbol).
		Str("status", order.Status).
		Msg("order canceled")

	m.record(order)
	return order, nil
}

// ClosePosition submits a reduce-only MARKET order for the full remaining
// size of an open position and removes it from the cache once submitted
func (m *Manager) ClosePosition(symbol, reason, exchangeName string) (*positions.PositionUpdateData, error) {
	pos, ok := m.cache.Get(symbol)
	if !ok {
		return nil, fmt.Errorf("no open position for %s", symbol)
	}

	req := exchange.OrderRequest{
		Symbol:       symbol,
		Side:         pos.Side.Opposite(),
		Type:         exchange.OrderTypeMarket,
		Quantity:     pos.Size,
		MarketType:   exchange.MarketTypeLinear,
		StrategyName: pos.StrategyName,
		ReduceOnly:   true,
	}

	m.logger.Info().
		Str("symbol", symbol).
		Str("reason", reason).
		Float64("size", pos.Size).
		Msg("closing position")

	if _, err := m.Place(req, exchangeName); err != nil {
		return nil, fmt.Errorf("error closing position %s: %w", symbol, err)
	}

	m.cache.Remove(symbol)
	return &pos, nil
}

// PlacePartialClose submits a reduce-only MARKET order for part of a
// position without touching the cache entry; the fill lands via WS push
func (m *Manager) PlacePartialClose(symbol string, side exchange.Side, quantity float64, strategyName, exchangeName string) (*exchange.Order, error) {
	req := exchange.OrderRequest{
		Symbol:       symbol,
		Side:         side,
		Type:         exchange.OrderTypeMarket,
		Quantity:     quantity,
		MarketType:   exchange.MarketTypeLinear,
		StrategyName: strategyName,
		ReduceOnly:   true,
	}
	return m.Place(req, exchangeName)
}

// GetOrder polls current order state from the venue and records it
func (m *Manager) GetOrder(symbol, orderID, exchangeName string) (*exchange.Order, error) {
	ex, err := m.exchangeByName(exchangeName)
	if err != nil {
		return nil, err
	}
	order, err := ex.GetOrder(symbol, orderID)
	if err != nil {
		return nil, err
	}
	m.record(order)
	return order, nil
}

// OpenOrders lists live orders, optionally filtered by symbol
func (m *Manager) OpenOrders(symbol, exchangeName string) ([]exchange.Order, error) {
	ex, err := m.exchangeByName(exchangeName)
	if err != nil {
		return nil, err
	}
	return ex.GetOpenOrders(symbol)
}

// History returns locally recorded orders, newest last, optionally filtered
// by symbol
func (m *Manager) History(symbol string) []exchange.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]exchange.Order, 0, len(m.history))
	for _, o := range m.history {
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		out = append(out, *o)
	}
	return out
}

// record keeps order state with monotonic transitions: a terminal state is
// never overwritten by a stale non-terminal poll
func (m *Manager) record(order *exchange.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.history[order.OrderID]
	if ok && prev.IsTerminal() && !order.IsTerminal() {
		return
	}
	cp := *order
	cp.UpdatedAt = time.Now()
	m.history[order.OrderID] = &cp
}

// roundToFilters rounds quantity and price DOWN to the venue's steps.
// Filters are cached per symbol; a fetch failure leaves values unrounded.
func (m *Manager) roundToFilters(ex exchange.Exchange, req *exchange.OrderRequest) error {
	key := ex.Name() + ":" + req.Symbol

	m.mu.RLock()
	filters, ok := m.filters[key]
	m.mu.RUnlock()

	if !ok {
		var err error
		filters, err = ex.GetSymbolFilters(req.Symbol)
		if err != nil {
			m.logger.Warn().Err(err).
				Str("symbol", req.Symbol).
				Msg("symbol filters unavailable, submitting unrounded")
			return nil
		}
		m.mu.Lock()
		m.filters[key] = filters
		m.mu.Unlock()
	}

	req.Quantity = roundDown(req.Quantity, filters.QtyStep)
	if req.Price > 0 {
		req.Price = roundDown(req.Price, filters.TickSize)
	}
	if req.StopLoss > 0 {
		req.StopLoss = roundDown(req.StopLoss, filters.TickSize)
	}

	if filters.MinQty > 0 && req.Quantity < filters.MinQty {
		return fmt.Errorf("quantity %.8f below venue minimum %.8f for %s",
			req.Quantity, filters.MinQty, req.Symbol)
	}
	return nil
}

// roundDown truncates value to the nearest multiple of step. Exact decimal
// arithmetic avoids float drift pushing a quantity over the venue's step.
func roundDown(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	steps := v.Div(s).Floor()
	out, _ := steps.Mul(s).Float64()
	return out
}

// refreshCache reconciles the position cache from a venue snapshot
func (m *Manager) refreshCache(ex exchange.Exchange) {
	venuePositions, err := ex.GetPositions()
	if err != nil {
		m.logger.Warn().Err(err).Msg("position refresh after order failed")
		return
	}
	m.cache.Reconcile(ex.Name(), venuePositions)
}
