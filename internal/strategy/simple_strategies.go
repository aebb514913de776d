package strategy

import (
	"fmt"

	"sniper-trading-bot/internal/ai"
	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/marketdata"
	"sniper-trading-bot/internal/positions"
	"sniper-trading-bot/internal/ta"
)

// simpleParams is the shared sizing/stop configuration of the single-signal
// strategies
type simpleParams struct {
	RiskPct         float64
	Leverage        int
	StopLossPercent float64
}

var defaultSimpleParams = simpleParams{RiskPct: 0.005, Leverage: 2, StopLossPercent: 0.02}

// simpleBase carries the collaborators common to the single-signal strategies
type simpleBase struct {
	marketData   *marketdata.Service
	cache        *positions.Cache
	exchangeName string
	params       simpleParams
}

func (b *simpleBase) CalculatePositionSize(symbol string, equity, entryPrice float64) (float64, int, error) {
	if entryPrice <= 0 || equity <= 0 {
		return 0, 0, fmt.Errorf("invalid sizing inputs for %s", symbol)
	}
	qty := (equity * b.params.RiskPct * float64(b.params.Leverage)) / entryPrice
	return qty, b.params.Leverage, nil
}

func (b *simpleBase) InitialStopLoss(symbol, interval string, entry float64, side exchange.Side) float64 {
	distance := entry * b.params.StopLossPercent
	if side == exchange.SideBuy {
		return entry - distance
	}
	return entry + distance
}

// exitOnStop is the shared percent-stop exit check
func (b *simpleBase) exitOnStop(symbol string) (ExitSignal, error) {
	pos, ok := b.cache.Get(symbol)
	if !ok {
		return ExitSignal{}, nil
	}
	currentPrice, err := b.marketData.GetCurrentPrice(b.exchangeName, symbol)
	if err != nil {
		return ExitSignal{}, fmt.Errorf("error fetching price for exit check: %w", err)
	}
	if pos.StrategyStopLoss > 0 && stopHit(pos.Side, currentPrice, pos.StrategyStopLoss) {
		return ExitSignal{ShouldExit: true, Reason: "STOP_LOSS_HIT"}, nil
	}
	return ExitSignal{}, nil
}

// ==================== MA CROSSOVER ====================

// MACrossoverStrategy signals when the fast MA crosses the slow MA on the
// latest candle in the requested direction
type MACrossoverStrategy struct {
	simpleBase
	fastPeriod int
	slowPeriod int
}

// NewMACrossoverStrategy creates the crossover variant
func NewMACrossoverStrategy(marketData *marketdata.Service, cache *positions.Cache, exchangeName string) *MACrossoverStrategy {
	return &MACrossoverStrategy{
		simpleBase: simpleBase{marketData: marketData, cache: cache, exchangeName: exchangeName, params: defaultSimpleParams},
		fastPeriod: 9,
		slowPeriod: 21,
	}
}

func (s *MACrossoverStrategy) Name() string { return "MA_CROSSOVER" }

func (s *MACrossoverStrategy) EvaluateEntry(symbol, interval string, side exchange.Side) (SignalTier, error) {
	klines, err := s.marketData.GetKlines(s.exchangeName, symbol, interval, s.slowPeriod+20)
	if err != nil {
		return TierNoSignal, err
	}
	if len(klines) < s.slowPeriod+2 {
		return TierNoSignal, nil
	}

	fastNow := ta.SMA(klines, s.fastPeriod)
	slowNow := ta.SMA(klines, s.slowPeriod)
	fastPrev := ta.SMA(klines[:len(klines)-1], s.fastPeriod)
	slowPrev := ta.SMA(klines[:len(klines)-1], s.slowPeriod)

	crossedUp := fastPrev <= slowPrev && fastNow > slowNow
	crossedDown := fastPrev >= slowPrev && fastNow < slowNow

	if (side == exchange.SideBuy && crossedUp) || (side == exchange.SideSell && crossedDown) {
		return MakeTier(3, "CONFLUENCE", side), nil
	}
	return TierNoSignal, nil
}

func (s *MACrossoverStrategy) EvaluateExit(symbol, interval string) (ExitSignal, error) {
	return s.exitOnStop(symbol)
}

// ==================== RSI ====================

// RSIStrategy signals mean reversion from RSI extremes
type RSIStrategy struct {
	simpleBase
	period     int
	oversold   float64
	overbought float64
}

// NewRSIStrategy creates the RSI variant
func NewRSIStrategy(marketData *marketdata.Service, cache *positions.Cache, exchangeName string) *RSIStrategy {
	return &RSIStrategy{
		simpleBase: simpleBase{marketData: marketData, cache: cache, exchangeName: exchangeName, params: defaultSimpleParams},
		period:     14,
		oversold:   30,
		overbought: 70,
	}
}

func (s *RSIStrategy) Name() string { return "RSI" }

func (s *RSIStrategy) EvaluateEntry(symbol, interval string, side exchange.Side) (SignalTier, error) {
	klines, err := s.marketData.GetKlines(s.exchangeName, symbol, interval, s.period*3)
	if err != nil {
		return TierNoSignal, err
	}
	if len(klines) < s.period+1 {
		return TierNoSignal, nil
	}

	rsi := ta.RSI(klines, s.period)
	if (side == exchange.SideBuy && rsi <= s.oversold) ||
		(side == exchange.SideSell && rsi >= s.overbought) {
		return MakeTier(3, "CONFLUENCE", side), nil
	}
	return TierNoSignal, nil
}

func (s *RSIStrategy) EvaluateExit(symbol, interval string) (ExitSignal, error) {
	return s.exitOnStop(symbol)
}

// ==================== FIBONACCI ====================

// FibonacciStrategy signals when price pulls back to a deep retracement of
// the recent swing in the trend direction
type FibonacciStrategy struct {
	simpleBase
	swingPeriod int
	tolerance   float64
}

// NewFibonacciStrategy creates the retracement variant
func NewFibonacciStrategy(marketData *marketdata.Service, cache *positions.Cache, exchangeName string) *FibonacciStrategy {
	return &FibonacciStrategy{
		simpleBase:  simpleBase{marketData: marketData, cache: cache, exchangeName: exchangeName, params: defaultSimpleParams},
		swingPeriod: 55,
		tolerance:   0.005,
	}
}

func (s *FibonacciStrategy) Name() string { return "FIBONACCI" }

func (s *FibonacciStrategy) EvaluateEntry(symbol, interval string, side exchange.Side) (SignalTier, error) {
	klines, err := s.marketData.GetKlines(s.exchangeName, symbol, interval, s.swingPeriod+20)
	if err != nil {
		return TierNoSignal, err
	}
	if len(klines) < s.swingPeriod {
		return TierNoSignal, nil
	}

	fib := ta.FibonacciRetracement(klines, s.swingPeriod)
	if !fib.Valid() {
		return TierNoSignal, nil
	}

	price := klines[len(klines)-1].Close
	if _, near := fib.NearLevel(price, s.tolerance); !near {
		return TierNoSignal, nil
	}

	// Only trade the retracement with the prevailing trend
	trend := ta.DetectTrend(klines, 20, 50)
	if (side == exchange.SideBuy && trend == ta.TrendUp) ||
		(side == exchange.SideSell && trend == ta.TrendDown) {
		return MakeTier(3, "CONFLUENCE", side), nil
	}
	return TierNoSignal, nil
}

func (s *FibonacciStrategy) EvaluateExit(symbol, interval string) (ExitSignal, error) {
	return s.exitOnStop(symbol)
}

// ==================== NEWS SENTIMENT ====================

// NewsSentimentStrategy defers entirely to the oracle's directional verdict;
// only a strong verdict aligned with the side signals
type NewsSentimentStrategy struct {
	simpleBase
	oracle *ai.Oracle
}

// NewNewsSentimentStrategy creates the sentiment variant
func NewNewsSentimentStrategy(marketData *marketdata.Service, cache *positions.Cache, oracle *ai.Oracle, exchangeName string) *NewsSentimentStrategy {
	return &NewsSentimentStrategy{
		simpleBase: simpleBase{marketData: marketData, cache: cache, exchangeName: exchangeName, params: defaultSimpleParams},
		oracle:     oracle,
	}
}

func (s *NewsSentimentStrategy) Name() string { return "NEWS_SENTIMENT" }

func (s *NewsSentimentStrategy) EvaluateEntry(symbol, interval string, side exchange.Side) (SignalTier, error) {
	if s.oracle == nil {
		return TierNoSignal, nil
	}

	price, err := s.marketData.GetCurrentPrice(s.exchangeName, symbol)
	if err != nil {
		return TierNoSignal, err
	}

	verdict, err := s.oracle.AnalyzeSymbol(symbol, interval, s.exchangeName, price)
	if err != nil {
		return TierNoSignal, nil
	}

	if (side == exchange.SideBuy && verdict == ai.VerdictStrongBuy) ||
		(side == exchange.SideSell && verdict == ai.VerdictStrongSell) {
		return MakeTier(2, "CONFLUENCE", side), nil
	}
	return TierNoSignal, nil
}

func (s *NewsSentimentStrategy) EvaluateExit(symbol, interval string) (ExitSignal, error) {
	return s.exitOnStop(symbol)
}
