package hedging

import (
	"sync"
	"time"

	"sniper-trading-bot/internal/ai"
	"sniper-trading-bot/internal/analysis"
	"sniper-trading-bot/internal/events"
	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/logging"
	"sniper-trading-bot/internal/marketdata"
	"sniper-trading-bot/internal/orders"
	"sniper-trading-bot/internal/positions"
	"sniper-trading-bot/internal/ta"
)

// Trigger names the condition that opened a hedge
type Trigger string

const (
	TriggerHighUnrealizedLoss Trigger = "HIGH_UNREALIZED_LOSS"
	TriggerMarketRegimeChange Trigger = "MARKET_REGIME_CHANGE"
	TriggerAISignalReversal   Trigger = "AI_SIGNAL_REVERSAL"
	TriggerVolatilitySpike    Trigger = "VOLATILITY_SPIKE"
	TriggerCorrelationRisk    Trigger = "CORRELATION_RISK"
)

// HedgeType distinguishes same-symbol from correlated-instrument hedges
type HedgeType string

const (
	HedgeDirectOpposite   HedgeType = "DIRECT_OPPOSITE"
	HedgeCorrelationHedge HedgeType = "CORRELATION_HEDGE"
)

// HedgePosition records an active hedge against a primary position
type HedgePosition struct {
	PrimarySymbol string        `json:"primary_symbol"`
	HedgeSymbol   string        `json:"hedge_symbol"`
	HedgeSide     exchange.Side `json:"hedge_side"`
	Ratio         float64       `json:"ratio"`
	Size          float64       `json:"size"`
	Reason        Trigger       `json:"reason"`
	Type          HedgeType     `json:"type"`
	TriggerPrice  float64       `json:"trigger_price"`
	Active        bool          `json:"active"`
	OpenedAt      time.Time     `json:"opened_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
}

// Config holds hedging thresholds
type Config struct {
	LossThresholdPct   float64            // unrealized P/L fraction that triggers, e.g. -0.15
	ATRPctThreshold    float64            // ATR as fraction of price that reads as a volatility spike
	Ratio              float64            // hedge size as fraction of base size
	Cooldown           time.Duration      // per-symbol gap between hedges
	Expiry             time.Duration      // hedge lifetime, 0 disables
	MaxCorrelatedValue float64            // aggregate notional cap across a correlation group
	CorrelationGroups  map[string]string  // symbol -> group name
	CorrelatedHedge    map[string]string  // symbol -> preferred hedge instrument
}

// DefaultConfig returns the production hedging defaults
func DefaultConfig() *Config {
	return &Config{
		LossThresholdPct: -0.15,
		ATRPctThreshold:  0.04,
		Ratio:            0.5,
		Cooldown:         5 * time.Minute,
		Expiry:           4 * time.Hour,
	}
}

// Service evaluates open positions against the hedge triggers on its own
// 60-second cadence and opens opposing positions when one fires
type Service struct {
	config     *Config
	cache      *positions.Cache
	orderMgr   *orders.Manager
	marketData *marketdata.Service
	regime     *analysis.RegimeClassifier
	oracle     *ai.Oracle
	eventBus   *events.EventBus

	mu           sync.Mutex
	active       map[string]*HedgePosition // primary symbol -> hedge
	lastHedged   map[string]time.Time      // cooldown tracking
	exchangeName string

	logger *logging.Logger
}

// NewService wires the hedging loop. oracle may be nil, disabling the AI
// reversal trigger.
func NewService(config *Config, cache *positions.Cache, orderMgr *orders.Manager, marketData *marketdata.Service, regime *analysis.RegimeClassifier, oracle *ai.Oracle, exchangeName string) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	return &Service{
		config:       config,
		cache:        cache,
		orderMgr:     orderMgr,
		marketData:   marketData,
		regime:       regime,
		oracle:       oracle,
		active:       make(map[string]*HedgePosition),
		lastHedged:   make(map[string]time.Time),
		exchangeName: exchangeName,
		logger:       logging.Default().WithComponent("hedging"),
	}
}

// SetEventBus attaches the bus; hedge lifecycle events are then published
func (s *Service) SetEventBus(bus *events.EventBus) {
	s.eventBus = bus
}

// Tick runs one hedging evaluation pass over all open positions
func (s *Service) Tick() {
	s.expireHedges()
	s.closeOrphanedHedges()

	for _, pos := range s.cache.Snapshot() {
		if s.hasActiveHedge(pos.Symbol) {
			continue
		}
		if s.inCooldown(pos.Symbol) {
			continue
		}

		trigger, ok := s.evaluateTriggers(pos)
		if !ok {
			continue
		}
		s.openHedge(pos, trigger)
	}
}

// evaluateTriggers computes the trigger booleans for a position and returns
// the first firing one
func (s *Service) evaluateTriggers(pos positions.PositionUpdateData) (Trigger, bool) {
	// HIGH_UNREALIZED_LOSS: unrealized P/L against position notional
	if pos.EntryPrice > 0 && pos.Size > 0 {
		notional := pos.EntryPrice * pos.Size
		if notional > 0 && pos.UnrealizedPnL/notional <= s.config.LossThresholdPct {
			return TriggerHighUnrealizedLoss, true
		}
	}

	// MARKET_REGIME_CHANGE: classifier flipped against the position
	if s.regime != nil && s.regime.HasFlippedAgainst(pos.Symbol, s.exchangeName, pos.Side) {
		return TriggerMarketRegimeChange, true
	}

	// AI_SIGNAL_REVERSAL: oracle verdict opposite to the position side
	if s.oracle != nil {
		price, err := s.marketData.GetCurrentPrice(s.exchangeName, pos.Symbol)
		if err == nil {
			verdict, err := s.oracle.AnalyzeSymbol(pos.Symbol, "1h", s.exchangeName, price)
			if err == nil && verdict.Aligns(pos.Side.Opposite()) {
				return TriggerAISignalReversal, true
			}
		}
	}

	// VOLATILITY_SPIKE: ATR as a fraction of price above threshold
	if klines, err := s.marketData.GetKlines(s.exchangeName, pos.Symbol, "1h", 20); err == nil && len(klines) > 14 {
		price := klines[len(klines)-1].Close
		atr := ta.ATR(klines, 14)
		if price > 0 && atr/price > s.config.ATRPctThreshold {
			return TriggerVolatilitySpike, true
		}
	}

	// CORRELATION_RISK: aggregate exposure within the position's group
	if s.correlationExposureExceeded(pos) {
		return TriggerCorrelationRisk, true
	}

	return "", false
}

// correlationExposureExceeded sums notional across positions sharing the
// symbol's correlation group
func (s *Service) correlationExposureExceeded(pos positions.PositionUpdateData) bool {
	if s.config.MaxCorrelatedValue <= 0 || len(s.config.CorrelationGroups) == 0 {
		return false
	}
	group, ok := s.config.CorrelationGroups[pos.Symbol]
	if !ok {
		return false
	}

	total := 0.0
	for _, p := range s.cache.Snapshot() {
		if s.config.CorrelationGroups[p.Symbol] == group {
			total += p.EntryPrice * p.Size
		}
	}
	return total > s.config.MaxCorrelatedValue
}

// openHedge submits the opposing order and records the hedge
func (s *Service) openHedge(pos positions.PositionUpdateData, trigger Trigger) {
	hedgeSymbol := pos.Symbol
	hedgeType := HedgeDirectOpposite
	if alt, ok := s.config.CorrelatedHedge[pos.Symbol]; ok && alt != "" {
		hedgeSymbol = alt
		hedgeType = HedgeCorrelationHedge
	}

	hedgeSize := pos.Size * s.config.Ratio
	hedgeSide := pos.Side.Opposite()

	price, err := s.marketData.GetCurrentPrice(s.exchangeName, hedgeSymbol)
	if err != nil {
		s.logger.Warn("Cannot price hedge instrument",
			"symbol", hedgeSymbol, "error", err.Error())
		return
	}

	req := exchange.OrderRequest{
		Symbol:       hedgeSymbol,
		Side:         hedgeSide,
		Type:         exchange.OrderTypeMarket,
		Quantity:     hedgeSize,
		Leverage:     pos.Leverage,
		MarketType:   exchange.MarketTypeLinear,
		StrategyName: "HEDGE",
	}
	if _, err := s.orderMgr.Place(req, s.exchangeName); err != nil {
		s.logger.Error("Hedge order failed",
			"primary", pos.Symbol, "hedge", hedgeSymbol, "error", err.Error())
		return
	}

	hedge := &HedgePosition{
		PrimarySymbol: pos.Symbol,
		HedgeSymbol:   hedgeSymbol,
		HedgeSide:     hedgeSide,
		Ratio:         s.config.Ratio,
		Size:          hedgeSize,
		Reason:        trigger,
		Type:          hedgeType,
		TriggerPrice:  price,
		Active:        true,
		OpenedAt:      time.Now(),
	}
	if s.config.Expiry > 0 {
		hedge.ExpiresAt = hedge.OpenedAt.Add(s.config.Expiry)
	}

	s.mu.Lock()
	s.active[pos.Symbol] = hedge
	s.lastHedged[pos.Symbol] = time.Now()
	s.mu.Unlock()

	if s.eventBus != nil {
		s.eventBus.PublishHedgeOpened(pos.Symbol, hedgeSymbol, string(trigger), hedgeSize)
	}
	logging.HedgeLogger(pos.Symbol, hedgeSymbol).Info("Hedge opened",
		"type", string(hedgeType), "reason", string(trigger), "size", hedgeSize)
}

// CloseHedge explicitly closes the hedge for a primary symbol
func (s *Service) CloseHedge(primarySymbol, reason string) error {
	s.mu.Lock()
	hedge, ok := s.active[primarySymbol]
	if ok {
		delete(s.active, primarySymbol)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if _, err := s.orderMgr.PlacePartialClose(hedge.HedgeSymbol, hedge.HedgeSide.Opposite(), hedge.Size, "HEDGE", s.exchangeName); err != nil {
		s.logger.Error("Hedge close failed",
			"hedge", hedge.HedgeSymbol, "error", err.Error())
		return err
	}

	logging.HedgeLogger(primarySymbol, hedge.HedgeSymbol).Info("Hedge closed",
		"reason", reason)
	return nil
}

// expireHedges closes hedges past their lifetime
func (s *Service) expireHedges() {
	s.mu.Lock()
	var expired []string
	for symbol, hedge := range s.active {
		if !hedge.ExpiresAt.IsZero() && time.Now().After(hedge.ExpiresAt) {
			expired = append(expired, symbol)
		}
	}
	s.mu.Unlock()

	for _, symbol := range expired {
		s.CloseHedge(symbol, "EXPIRED")
	}
}

// closeOrphanedHedges closes hedges whose underlying position is gone
func (s *Service) closeOrphanedHedges() {
	s.mu.Lock()
	var orphaned []string
	for symbol := range s.active {
		if _, ok := s.cache.Get(symbol); !ok {
			orphaned = append(orphaned, symbol)
		}
	}
	s.mu.Unlock()

	for _, symbol := range orphaned {
		s.CloseHedge(symbol, "UNDERLYING_CLOSED")
	}
}

func (s *Service) hasActiveHedge(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[symbol]
	return ok
}

func (s *Service) inCooldown(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastHedged[symbol]
	return ok && time.Since(last) < s.config.Cooldown
}

// ActiveHedges returns copies of the live hedges
func (s *Service) ActiveHedges() []HedgePosition {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]HedgePosition, 0, len(s.active))
	for _, h := range s.active {
		out = append(out, *h)
	}
	return out
}
