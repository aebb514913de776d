package scheduler

import (
	"fmt"

	"sniper-trading-bot/internal/events"
	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/logging"
	"sniper-trading-bot/internal/marketdata"
	"sniper-trading-bot/internal/orders"
	"sniper-trading-bot/internal/positions"
	"sniper-trading-bot/internal/risk"
	"sniper-trading-bot/internal/strategy"
)

// Executor runs one full evaluate-and-execute pass for a symbol: exit
// management when a position exists, entry evaluation otherwise
type Executor struct {
	registry   *strategy.Registry
	marketData *marketdata.Service
	riskMgr    *risk.Manager
	orderMgr   *orders.Manager
	cache      *positions.Cache
	eventBus   *events.EventBus

	logger *logging.Logger
}

// SetEventBus attaches the bus; trade and signal events are then published
func (e *Executor) SetEventBus(bus *events.EventBus) {
	e.eventBus = bus
}

// NewExecutor wires the evaluation pipeline
func NewExecutor(registry *strategy.Registry, marketData *marketdata.Service, riskMgr *risk.Manager, orderMgr *orders.Manager, cache *positions.Cache) *Executor {
	return &Executor{
		registry:   registry,
		marketData: marketData,
		riskMgr:    riskMgr,
		orderMgr:   orderMgr,
		cache:      cache,
		logger:     logging.Default().WithComponent("executor"),
	}
}

// EvaluateAndExecute is the unit of work dispatched per symbol. Errors are
// returned for logging; a failure aborts only this symbol's evaluation.
func (e *Executor) EvaluateAndExecute(symbol, interval, exchangeName, strategyID string) error {
	strat, err := e.registry.Get(strategyID)
	if err != nil {
		return err
	}

	if pos, ok := e.cache.Get(symbol); ok {
		return e.manageExit(strat, pos, symbol, interval, exchangeName)
	}
	return e.evaluateEntry(strat, symbol, interval, exchangeName)
}

// manageExit runs one exit tick and closes the position when signaled
func (e *Executor) manageExit(strat strategy.Strategy, pos positions.PositionUpdateData, symbol, interval, exchangeName string) error {
	signal, err := strat.EvaluateExit(symbol, interval)
	if err != nil {
		return fmt.Errorf("exit evaluation failed for %s: %w", symbol, err)
	}
	if !signal.ShouldExit {
		return nil
	}

	closed, err := e.orderMgr.ClosePosition(symbol, signal.Reason, exchangeName)
	if err != nil {
		return fmt.Errorf("full exit failed for %s: %w", symbol, err)
	}

	e.riskMgr.RegisterPositionClose(symbol, closed.UnrealizedPnL)
	if e.eventBus != nil {
		e.eventBus.PublishTradeClosed(symbol, signal.Reason, closed.UnrealizedPnL)
	}
	e.logger.Info("Position closed",
		"symbol", symbol, "reason", signal.Reason, "pnl", closed.UnrealizedPnL)
	return nil
}

// evaluateEntry grades both directions and executes the first actionable
// tier. A risk-manager veto skips the entry with an info log.
func (e *Executor) evaluateEntry(strat strategy.Strategy, symbol, interval, exchangeName string) error {
	for _, side := range []exchange.Side{exchange.SideBuy, exchange.SideSell} {
		tier, err := strat.EvaluateEntry(symbol, interval, side)
		if err != nil {
			return fmt.Errorf("entry evaluation failed for %s: %w", symbol, err)
		}
		if tier == strategy.TierNoSignal {
			continue
		}

		if e.eventBus != nil {
			if price, perr := e.marketData.GetCurrentPrice(exchangeName, symbol); perr == nil {
				e.eventBus.PublishSignal(strat.Name(), symbol, string(tier), price)
			}
		}

		if err := e.executeEntry(strat, symbol, interval, exchangeName, side, tier); err != nil {
			return err
		}
		return nil
	}
	return nil
}

func (e *Executor) executeEntry(strat strategy.Strategy, symbol, interval, exchangeName string, side exchange.Side, tier strategy.SignalTier) error {
	ex, err := e.marketData.Exchange(exchangeName)
	if err != nil {
		return err
	}
	equity, err := ex.GetEquity()
	if err != nil {
		return fmt.Errorf("error fetching equity: %w", err)
	}

	entryPrice, err := e.marketData.GetCurrentPrice(exchangeName, symbol)
	if err != nil {
		return fmt.Errorf("error fetching entry price: %w", err)
	}

	qty, leverage, err := strat.CalculatePositionSize(symbol, equity, entryPrice)
	if err != nil {
		return fmt.Errorf("sizing failed for %s: %w", symbol, err)
	}

	if ok, reason := e.riskMgr.ValidateTrade(symbol, qty, exchangeName, side, equity); !ok {
		e.logger.Info("Risk manager vetoed entry", "symbol", symbol, "reason", reason)
		return nil
	}

	stopLoss := strat.InitialStopLoss(symbol, interval, entryPrice, side)

	req := exchange.OrderRequest{
		Symbol:       symbol,
		Side:         side,
		Type:         exchange.OrderTypeMarket,
		Quantity:     qty,
		StopLoss:     stopLoss,
		Leverage:     leverage,
		MarketType:   exchange.MarketTypeLinear,
		StrategyName: strat.Name(),
	}

	order, err := e.orderMgr.Place(req, exchangeName)
	if err != nil {
		return fmt.Errorf("entry order failed for %s: %w", symbol, err)
	}

	// Seed the cache with strategy annotations; venue fields converge via
	// the WS push and the post-order reconcile. When the reconcile has not
	// landed yet, track a provisional entry so the next exit tick sees it.
	if !e.cache.UpdateStrategyPositionInfo(symbol, stopLoss, false, false) {
		e.cache.Track(positions.PositionUpdateData{
			Symbol:           symbol,
			Side:             side,
			Size:             qty,
			EntryPrice:       entryPrice,
			Leverage:         leverage,
			Exchange:         exchangeName,
			StrategyName:     strat.Name(),
			StrategyStopLoss: stopLoss,
		})
	}
	e.riskMgr.RegisterPositionOpen()
	if e.eventBus != nil {
		e.eventBus.PublishTradeOpened(symbol, string(side), string(tier), entryPrice, qty)
	}

	logging.TradeLogger(symbol, string(side)).Info("Entry executed",
		"tier", string(tier), "qty", qty, "leverage", leverage,
		"stop", stopLoss, "order_id", order.OrderID)
	return nil
}
