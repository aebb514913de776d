package analysis

import (
	"sync"

	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/logging"
	"sniper-trading-bot/internal/marketdata"
	"sniper-trading-bot/internal/ta"
)

// Regime classifies the prevailing market condition for a symbol
type Regime string

const (
	RegimeBullish Regime = "BULLISH"
	RegimeBearish Regime = "BEARISH"
	RegimeRanging Regime = "RANGING"
	RegimeUnknown Regime = "UNKNOWN"
)

// Favors reports whether the regime supports holding the given side
func (r Regime) Favors(side exchange.Side) bool {
	switch r {
	case RegimeBullish:
		return side == exchange.SideBuy
	case RegimeBearish:
		return side == exchange.SideSell
	}
	return true // ranging or unknown never counts against a position
}

// RegimeClassifier tracks per-symbol regime and reports flips. The hedging
// service uses a flip against an open position as a trigger.
type RegimeClassifier struct {
	marketData *marketdata.Service

	mu   sync.Mutex
	last map[string]Regime

	logger *logging.Logger
}

// NewRegimeClassifier creates a classifier
func NewRegimeClassifier(marketData *marketdata.Service) *RegimeClassifier {
	return &RegimeClassifier{
		marketData: marketData,
		last:       make(map[string]Regime),
		logger:     logging.Default().WithComponent("regime"),
	}
}

// Classify derives the regime from EMA separation and RSI on the hourly
// timeframe and records it for flip detection
func (rc *RegimeClassifier) Classify(symbol, exchangeName string) Regime {
	klines, err := rc.marketData.GetKlines(exchangeName, symbol, "1h", 120)
	if err != nil {
		rc.logger.Warn("Regime fetch failed", "symbol", symbol, "error", err.Error())
		return RegimeUnknown
	}

	trend := ta.DetectTrend(klines, 20, 50)
	rsi := ta.RSI(klines, 14)

	regime := RegimeRanging
	switch {
	case trend == ta.TrendUp && rsi > 45:
		regime = RegimeBullish
	case trend == ta.TrendDown && rsi < 55:
		regime = RegimeBearish
	}

	rc.mu.Lock()
	rc.last[symbol] = regime
	rc.mu.Unlock()

	return regime
}

// HasFlippedAgainst reports whether the freshly classified regime moved
// against the position side relative to the previously recorded one
func (rc *RegimeClassifier) HasFlippedAgainst(symbol, exchangeName string, side exchange.Side) bool {
	rc.mu.Lock()
	prev, had := rc.last[symbol]
	rc.mu.Unlock()

	current := rc.Classify(symbol, exchangeName)
	if !had || current == RegimeUnknown {
		return false
	}

	return prev != current && !current.Favors(side)
}

// Last returns the most recently recorded regime for a symbol
func (rc *RegimeClassifier) Last(symbol string) Regime {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if r, ok := rc.last[symbol]; ok {
		return r
	}
	return RegimeUnknown
}
