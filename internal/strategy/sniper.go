package strategy

import (
	"fmt"
	"math"
	"sync"

	"sniper-trading-bot/internal/ai"
	"sniper-trading-bot/internal/analysis"
	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/logging"
	"sniper-trading-bot/internal/marketdata"
	"sniper-trading-bot/internal/orders"
	"sniper-trading-bot/internal/positions"
	"sniper-trading-bot/internal/risk"
	"sniper-trading-bot/internal/ta"
	"sniper-trading-bot/internal/weighting"
)

// SniperConfig holds the tunables of the confluence evaluator
type SniperConfig struct {
	Interval            string  `json:"interval"`
	LongTermMAPeriod    int     `json:"long_term_ma_period"`
	ShortMAPeriod       int     `json:"short_ma_period"`
	MediumMAPeriod      int     `json:"medium_ma_period"`
	LevelLookback       int     `json:"level_lookback"`
	WickBodyRatio       float64 `json:"wick_body_ratio"`
	MinCandleRangePct   float64 `json:"min_candle_range_pct"`
	LevelTolerancePct   float64 `json:"level_tolerance_pct"`
	VolumeSpikeFactor   float64 `json:"volume_spike_factor"`
	VolumeLookback      int     `json:"volume_lookback"`
	AIThreshold         float64 `json:"ai_threshold"`
	Tier1Threshold      float64 `json:"tier1_threshold"`
	Tier2Threshold      float64 `json:"tier2_threshold"`
	Tier3Threshold      float64 `json:"tier3_threshold"`
	StopLossPercentMax  float64 `json:"stop_loss_percent_max"`
	ATRMultiplier       float64 `json:"atr_multiplier"`
	FirstProfitTargetRR float64 `json:"first_profit_target_rr"`
}

// DefaultSniperConfig returns the production defaults
func DefaultSniperConfig() *SniperConfig {
	return &SniperConfig{
		Interval:            "1h",
		LongTermMAPeriod:    200,
		ShortMAPeriod:       20,
		MediumMAPeriod:      50,
		LevelLookback:       50,
		WickBodyRatio:       1.5,
		MinCandleRangePct:   0.003,
		LevelTolerancePct:   0.005,
		VolumeSpikeFactor:   2.0,
		VolumeLookback:      20,
		AIThreshold:         3.0,
		Tier1Threshold:      4.5,
		Tier2Threshold:      3.5,
		Tier3Threshold:      2.5,
		StopLossPercentMax:  0.01,
		ATRMultiplier:       1.5,
		FirstProfitTargetRR: 2.0,
	}
}

// tierParams maps a tier level to its risk fraction and leverage
var tierParams = map[int]struct {
	RiskPct  float64
	Leverage int
}{
	1: {0.015, 25},
	2: {0.0075, 40},
	3: {0.004, 75},
}

// SniperStrategy is the aggressive confluence-graded entry path. Evaluation
// runs six phases: structural S/R events, trend filter, confluence scoring,
// conditional AI confirmation, multi-timeframe adjustment, tier assignment.
type SniperStrategy struct {
	config     *SniperConfig
	marketData *marketdata.Service
	riskMgr    *risk.Manager
	orderMgr   *orders.Manager
	cache      *positions.Cache
	oracle     *ai.Oracle
	confirmer  *analysis.Confirmer
	weights    *weighting.Service

	mu             sync.RWMutex
	lastTiers      map[string]SignalTier
	lastComponents map[string]evalComponents

	exchangeName string
	logger       *logging.Logger
}

// NewSniperStrategy wires the evaluator. oracle and confirmer may be nil;
// their phases then contribute nothing.
func NewSniperStrategy(
	config *SniperConfig,
	marketData *marketdata.Service,
	riskMgr *risk.Manager,
	orderMgr *orders.Manager,
	cache *positions.Cache,
	oracle *ai.Oracle,
	confirmer *analysis.Confirmer,
	weights *weighting.Service,
	exchangeName string,
) *SniperStrategy {
	if config == nil {
		config = DefaultSniperConfig()
	}
	return &SniperStrategy{
		config:         config,
		marketData:     marketData,
		riskMgr:        riskMgr,
		orderMgr:       orderMgr,
		cache:          cache,
		oracle:         oracle,
		confirmer:      confirmer,
		weights:        weights,
		lastTiers:      make(map[string]SignalTier),
		lastComponents: make(map[string]evalComponents),
		exchangeName:   exchangeName,
		logger:         logging.Default().WithComponent("sniper"),
	}
}

func (s *SniperStrategy) Name() string { return "SNIPER" }

// structuralEvent records a detected breakout or rejection at a level
type structuralEvent struct {
	Kind  string // "BREAKOUT" or "REJECTION"
	Level float64
}

// evalComponents captures which score components backed the last actionable
// signal for a symbol, for outcome feedback when the trade closes
type evalComponents struct {
	technical bool // raw confluence cleared the AI threshold
	sentiment bool // multi-timeframe context added to the score
	ai        bool // AI verdict aligned with the trade direction
}

// EvaluateEntry runs the six-phase evaluation and caches the resulting tier
// for sizing. Insufficient data returns NO_SIGNAL without partial work.
func (s *SniperStrategy) EvaluateEntry(symbol, interval string, side exchange.Side) (SignalTier, error) {
	window := s.config.LongTermMAPeriod + 10
	if window < 110 {
		window = 110
	}

	klines, err := s.marketData.GetKlines(s.exchangeName, symbol, interval, window)
	if err != nil {
		return TierNoSignal, fmt.Errorf("error fetching candles for %s: %w", symbol, err)
	}
	if len(klines) < window {
		s.logger.Debug("Window too short, no signal",
			"symbol", symbol, "have", len(klines), "need", window)
		s.setTier(symbol, TierNoSignal)
		return TierNoSignal, nil
	}

	currentPrice := klines[len(klines)-1].Close

	// Phase 1: structural events at pivot S/R levels
	levels := ta.FindLevels(klines, s.config.LevelLookback)
	event := s.detectStructuralEvent(klines, levels, side)

	// Phase 2: trend filter. A violation is logged but does not veto.
	trendOK := s.trendFilterPassed(klines, currentPrice, side)
	if !trendOK {
		s.logger.Info("Trend filter violated, continuing without veto",
			"symbol", symbol, "side", string(side))
	}

	// Phase 3: confluence score
	confluence := s.confluenceScore(klines, levels, currentPrice, side, trendOK)

	// Phase 4: AI confirmation once the raw score clears the threshold
	aiConfirms := false
	aiBonus := 0.0
	if s.oracle != nil && confluence >= s.config.AIThreshold {
		verdict, err := s.oracle.AnalyzeSymbol(symbol, interval, s.exchangeName, currentPrice)
		if err == nil && verdict.Aligns(side) {
			aiBonus = 1.0
			aiConfirms = true
		}
	}

	// Phase 5: multi-timeframe adjustment
	mtfAdjust := 0.0
	if s.confirmer != nil {
		confirmation := s.confirmer.Confirm(symbol, interval, s.exchangeName, side)
		mtfAdjust = confirmation.ScoreAdjustment()
	}

	score := s.weightedScore(confluence, mtfAdjust, aiBonus)

	// Phase 6: tier assignment
	tier := s.assignTier(event, score, aiConfirms, side)

	if tier != TierNoSignal {
		s.setComponents(symbol, evalComponents{
			technical: confluence >= s.config.AIThreshold,
			sentiment: mtfAdjust > 0,
			ai:        aiConfirms,
		})
	}

	if tier != TierNoSignal && event != nil && s.oracle != nil {
		s.oracle.NotifyEvent(symbol, event.Kind, event.Level, currentPrice)
	}

	s.logger.Info("Entry evaluated",
		"symbol", symbol, "side", string(side), "score", score,
		"tier", string(tier), "ai_confirms", aiConfirms)

	s.setTier(symbol, tier)
	return tier, nil
}

// detectStructuralEvent scans levels for a direction-aligned breakout or
// rejection on the latest candle. Breakouts win over rejections.
func (s *SniperStrategy) detectStructuralEvent(klines []exchange.Kline, levels []ta.Level, side exchange.Side) *structuralEvent {
	if len(klines) < 2 {
		return nil
	}
	prev := klines[len(klines)-2]
	curr := klines[len(klines)-1]

	var rejection *structuralEvent
	for _, level := range levels {
		// Breakout: previous close on one side, current close on the other,
		// in the trade direction
		if side == exchange.SideBuy && prev.Close <= level.Price && curr.Close > level.Price {
			return &structuralEvent{Kind: "BREAKOUT", Level: level.Price}
		}
		if side == exchange.SideSell && prev.Close >= level.Price && curr.Close < level.Price {
			return &structuralEvent{Kind: "BREAKOUT", Level: level.Price}
		}

		if rejection == nil && s.isRejection(curr, level.Price, side) {
			rejection = &structuralEvent{Kind: "REJECTION", Level: level.Price}
		}
	}
	return rejection
}

// isRejection checks for a wick piercing the level with the body closing
// back on the origin side, subject to wick/body ratio and minimum range
func (s *SniperStrategy) isRejection(c exchange.Kline, level float64, side exchange.Side) bool {
	candleRange := c.High - c.Low
	if c.Close == 0 || candleRange < c.Close*s.config.MinCandleRangePct {
		return false
	}

	body := math.Abs(c.Close - c.Open)
	bodyTop := math.Max(c.Open, c.Close)
	bodyBottom := math.Min(c.Open, c.Close)

	if side == exchange.SideBuy {
		// Lower wick pierced support, body closed back above it
		lowerWick := bodyBottom - c.Low
		if c.Low > level || bodyBottom < level {
			return false
		}
		if body == 0 {
			return lowerWick > 0
		}
		return lowerWick/body >= s.config.WickBodyRatio
	}

	// Upper wick pierced resistance, body closed back below it
	upperWick := c.High - bodyTop
	if c.High < level || bodyTop > level {
		return false
	}
	if body == 0 {
		return upperWick > 0
	}
	return upperWick/body >= s.config.WickBodyRatio
}

// trendFilterPassed checks price against the long SMA in the trade direction
func (s *SniperStrategy) trendFilterPassed(klines []exchange.Kline, price float64, side exchange.Side) bool {
	sma := ta.SMA(klines, s.config.LongTermMAPeriod)
	if sma == 0 {
		return false
	}
	if side == exchange.SideBuy {
		return price > sma
	}
	return price < sma
}

// confluenceScore scores five independent booleans, one point each
func (s *SniperStrategy) confluenceScore(klines []exchange.Kline, levels []ta.Level, price float64, side exchange.Side, trendOK bool) float64 {
	score := 0.0

	// 1. Price near a same-kind S/R level
	wantSupport := side == exchange.SideBuy
	for _, level := range levels {
		if level.IsSupport == wantSupport && ta.DistanceToLevel(price, level) <= s.config.LevelTolerancePct {
			score++
			break
		}
	}

	// 2. Price near the 0.618 or 0.786 retracement of the window swing
	fib := ta.FibonacciRetracement(klines, len(klines))
	if fib.Valid() {
		l618, l786 := fib.Level618, fib.Level786
		if side == exchange.SideSell {
			// Mirrored swing: retracement measured up from the low
			diff := fib.High - fib.Low
			l618 = fib.Low + diff*0.618
			l786 = fib.Low + diff*0.786
		}
		for _, level := range []float64{l618, l786} {
			if math.Abs(price-level)/price <= s.config.LevelTolerancePct {
				score++
				break
			}
		}
	}

	// 3. Volume spike on the latest bar
	if ta.IsVolumeSpike(klines, s.config.VolumeLookback, s.config.VolumeSpikeFactor) {
		score++
	}

	// 4. Moving-average confluence ordering
	short := ta.SMA(klines, s.config.ShortMAPeriod)
	medium := ta.SMA(klines, s.config.MediumMAPeriod)
	long := ta.SMA(klines, s.config.LongTermMAPeriod)
	if short > 0 && medium > 0 && long > 0 {
		if side == exchange.SideBuy && price > short && short > medium && medium > long {
			score++
		}
		if side == exchange.SideSell && price < short && short < medium && medium < long {
			score++
		}
	}

	// 5. RSI neutral in-trend, or at the counter-side extreme
	rsi := ta.RSI(klines, 14)
	switch {
	case trendOK && rsi >= 30 && rsi <= 70:
		score++
	case side == exchange.SideBuy && rsi <= 30:
		score++
	case side == exchange.SideSell && rsi >= 70:
		score++
	}

	return score
}

// weightedScore combines the three score components, each scaled by the
// ratio of its adaptive weight to the prior. Under the default weights the
// ratios are all 1 and the result is the plain sum.
func (s *SniperStrategy) weightedScore(confluence, mtfAdjust, aiBonus float64) float64 {
	prior := weighting.Defaults()
	w := prior
	if s.weights != nil {
		w = s.weights.GetWeights()
	}
	return confluence*(w.Technical/prior.Technical) +
		mtfAdjust*(w.Sentiment/prior.Sentiment) +
		aiBonus*(w.AI/prior.AI)
}

// assignTier applies the tier table to the detected event and final score
func (s *SniperStrategy) assignTier(event *structuralEvent, score float64, aiConfirms bool, side exchange.Side) SignalTier {
	if event != nil {
		tier := 2
		if score >= s.config.Tier1Threshold-1 || aiConfirms {
			tier = 1
		}
		return MakeTier(tier, event.Kind, side)
	}

	switch {
	case score >= s.config.Tier1Threshold:
		return MakeTier(1, "CONFLUENCE", side)
	case score >= s.config.Tier2Threshold:
		return MakeTier(2, "CONFLUENCE", side)
	case score >= s.config.Tier3Threshold:
		return MakeTier(3, "CONFLUENCE", side)
	}
	return TierNoSignal
}

// CalculatePositionSize derives base quantity from the cached tier:
// (equity * risk% * leverage) / entry. Sizing assumes the configured max
// stop distance even when the ATR stop placed at entry is tighter, so the
// computed size errs conservative.
func (s *SniperStrategy) CalculatePositionSize(symbol string, equity, entryPrice float64) (float64, int, error) {
	tier := s.LastTier(symbol)
	level := tier.Level()
	params, ok := tierParams[level]
	if !ok {
		return 0, 0, fmt.Errorf("no tier cached for %s", symbol)
	}
	if entryPrice <= 0 || equity <= 0 {
		return 0, 0, fmt.Errorf("invalid sizing inputs for %s", symbol)
	}

	qty := (equity * params.RiskPct * float64(params.Leverage)) / entryPrice
	return qty, params.Leverage, nil
}

// InitialStopLoss prefers the ATR distance, falling back to the configured
// max percent when ATR is unavailable
func (s *SniperStrategy) InitialStopLoss(symbol, interval string, entry float64, side exchange.Side) float64 {
	atr, err := s.riskMgr.CalculateATR(symbol, s.exchangeName, interval, 14)
	if err != nil {
		s.logger.Warn("ATR unavailable for initial stop, using percent fallback",
			"symbol", symbol, "error", err.Error())
		atr = 0
	}

	distance := atr * s.config.ATRMultiplier
	if atr <= 0 {
		distance = entry * s.config.StopLossPercentMax
	}
	if side == exchange.SideBuy {
		return entry - distance
	}
	return entry + distance
}

// LastTier returns the tier cached by the most recent evaluation
func (s *SniperStrategy) LastTier(symbol string) SignalTier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.lastTiers[symbol]; ok {
		return t
	}
	return TierNoSignal
}

func (s *SniperStrategy) setTier(symbol string, tier SignalTier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTiers[symbol] = tier
}

func (s *SniperStrategy) setComponents(symbol string, c evalComponents) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastComponents[symbol] = c
}

// recordOutcome feeds the closed trade back into the weighting service. A
// component "agreed" when its reading at entry matched how the trade ended.
func (s *SniperStrategy) recordOutcome(symbol string, won bool) {
	if s.weights == nil {
		return
	}
	s.mu.Lock()
	comps, ok := s.lastComponents[symbol]
	if ok {
		delete(s.lastComponents, symbol)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.weights.RecordOutcome(comps.technical == won, comps.sentiment == won, comps.ai == won)
}
