package strategy

import (
	"fmt"

	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/logging"
	"sniper-trading-bot/internal/marketdata"
	"sniper-trading-bot/internal/positions"
	"sniper-trading-bot/internal/risk"
	"sniper-trading-bot/internal/ta"
)

// DefaultConfig holds the conservative strategy's tunables
type DefaultConfig struct {
	Interval            string  `json:"interval"`
	FastMAPeriod        int     `json:"fast_ma_period"`
	SlowMAPeriod        int     `json:"slow_ma_period"`
	RiskPct             float64 `json:"risk_pct"`
	Leverage            int     `json:"leverage"`
	SecureProfitPct     float64 `json:"secure_profit_pct"`      // unrealized gain that arms the lock
	SecureProfitSLLevel float64 `json:"secure_profit_sl_level"` // SL as multiple of entry
	StopLossPercent     float64 `json:"stop_loss_percent"`
}

// DefaultDefaultConfig returns the conservative defaults
func DefaultDefaultConfig() *DefaultConfig {
	return &DefaultConfig{
		Interval:            "1h",
		FastMAPeriod:        20,
		SlowMAPeriod:        50,
		RiskPct:             0.005,
		Leverage:            3,
		SecureProfitPct:     0.30,
		SecureProfitSLLevel: 0.30,
		StopLossPercent:     0.02,
	}
}

// DefaultStrategy is the slow-cadence conservative path. Entries come from
// trend alignment with a neutral RSI; its distinguishing exit behavior is
// the secure-profit lock: once unrealized P/L reaches 30% of entry, the stop
// jumps to entry +/- 30% and latches.
type DefaultStrategy struct {
	config     *DefaultConfig
	marketData *marketdata.Service
	riskMgr    *risk.Manager
	cache      *positions.Cache

	exchangeName string
	logger       *logging.Logger
}

// NewDefaultStrategy wires the conservative strategy
func NewDefaultStrategy(config *DefaultConfig, marketData *marketdata.Service, riskMgr *risk.Manager, cache *positions.Cache, exchangeName string) *DefaultStrategy {
	if config == nil {
		config = DefaultDefaultConfig()
	}
	return &DefaultStrategy{
		config:       config,
		marketData:   marketData,
		riskMgr:      riskMgr,
		cache:        cache,
		exchangeName: exchangeName,
		logger:       logging.Default().WithComponent("default-strategy"),
	}
}

func (s *DefaultStrategy) Name() string { return "DEFAULT" }

// EvaluateEntry requires trend alignment and an RSI that is neither
// overbought nor oversold; a pass grades as a Tier-3 confluence signal
func (s *DefaultStrategy) EvaluateEntry(symbol, interval string, side exchange.Side) (SignalTier, error) {
	klines, err := s.marketData.GetKlines(s.exchangeName, symbol, interval, s.config.SlowMAPeriod+20)
	if err != nil {
		return TierNoSignal, fmt.Errorf("error fetching candles for %s: %w", symbol, err)
	}
	if len(klines) < s.config.SlowMAPeriod+1 {
		return TierNoSignal, nil
	}

	price := klines[len(klines)-1].Close
	fast := ta.SMA(klines, s.config.FastMAPeriod)
	slow := ta.SMA(klines, s.config.SlowMAPeriod)
	rsi := ta.RSI(klines, 14)

	aligned := false
	if side == exchange.SideBuy {
		aligned = price > fast && fast > slow && rsi < 70
	} else {
		aligned = price < fast && fast < slow && rsi > 30
	}
	if !aligned {
		return TierNoSignal, nil
	}

	return MakeTier(3, "CONFLUENCE", side), nil
}

// EvaluateExit applies the secure-profit lock, then the stop check
func (s *DefaultStrategy) EvaluateExit(symbol, interval string) (ExitSignal, error) {
	pos, ok := s.cache.Get(symbol)
	if !ok {
		return ExitSignal{}, nil
	}

	currentPrice, err := s.marketData.GetCurrentPrice(s.exchangeName, symbol)
	if err != nil {
		return ExitSignal{}, fmt.Errorf("error fetching price for exit check: %w", err)
	}

	stopLoss := pos.StrategyStopLoss

	// Secure-profit lock: at +30% unrealized, move the stop to the 30%
	// level if that improves it. Applied once per position.
	if !pos.SecureProfitSLApplied && pos.EntryPrice > 0 {
		var gainPct float64
		if pos.Side == exchange.SideBuy {
			gainPct = (currentPrice - pos.EntryPrice) / pos.EntryPrice
		} else {
			gainPct = (pos.EntryPrice - currentPrice) / pos.EntryPrice
		}

		if gainPct >= s.config.SecureProfitPct {
			var lockSL float64
			improves := false
			if pos.Side == exchange.SideBuy {
				lockSL = pos.EntryPrice * (1 + s.config.SecureProfitSLLevel)
				improves = lockSL > stopLoss
			} else {
				lockSL = pos.EntryPrice * (1 - s.config.SecureProfitSLLevel)
				improves = stopLoss == 0 || lockSL < stopLoss
			}
			if improves {
				s.cache.UpdateStrategyPositionInfo(symbol, lockSL, false, true)
				stopLoss = lockSL
				s.logger.Info("Secure-profit stop applied",
					"symbol", symbol, "stop", lockSL, "gain_pct", gainPct*100)
			}
		}
	}

	if stopLoss > 0 && stopHit(pos.Side, currentPrice, stopLoss) {
		return ExitSignal{ShouldExit: true, Reason: "STOP_LOSS_HIT"}, nil
	}
	return ExitSignal{}, nil
}

// CalculatePositionSize uses the flat conservative risk fraction
func (s *DefaultStrategy) CalculatePositionSize(symbol string, equity, entryPrice float64) (float64, int, error) {
	if entryPrice <= 0 || equity <= 0 {
		return 0, 0, fmt.Errorf("invalid sizing inputs for %s", symbol)
	}
	qty := (equity * s.config.RiskPct * float64(s.config.Leverage)) / entryPrice
	return qty, s.config.Leverage, nil
}

// InitialStopLoss uses the flat percent distance
func (s *DefaultStrategy) InitialStopLoss(symbol, interval string, entry float64, side exchange.Side) float64 {
	distance := entry * s.config.StopLossPercent
	if side == exchange.SideBuy {
		return entry - distance
	}
	return entry + distance
}
