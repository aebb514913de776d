package analysis

import (
	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/logging"
	"sniper-trading-bot/internal/marketdata"
	"sniper-trading-bot/internal/ta"
)

// Confirmation is the higher-timeframe agreement verdict
type Confirmation string

const (
	ConfirmationStrong        Confirmation = "STRONG_CONFIRMATION"
	ConfirmationWeak          Confirmation = "WEAK"
	ConfirmationNone          Confirmation = "NONE"
	ConfirmationContradiction Confirmation = "CONTRADICTION"
	ConfirmationNotApplicable Confirmation = "NOT_APPLICABLE"
	ConfirmationError         Confirmation = "ERROR"
)

// ScoreAdjustment maps the verdict onto the confluence score delta. Errors
// and inapplicable intervals are neutral so the confirmer can never veto a
// signal by being unavailable; only an actual contradiction subtracts.
func (c Confirmation) ScoreAdjustment() float64 {
	switch c {
	case ConfirmationStrong:
		return 0.75
	case ConfirmationWeak:
		return 0.25
	case ConfirmationContradiction:
		return -1.0
	}
	return 0
}

// higherIntervals maps a primary interval to the timeframes checked above it
var higherIntervals = map[string][]string{
	"1m":  {"15m", "1h"},
	"5m":  {"1h", "4h"},
	"15m": {"1h", "4h"},
	"30m": {"4h", "1d"},
	"1h":  {"4h", "1d"},
	"4h":  {"1d"},
}

// Confirmer checks trend agreement on the timeframes above the primary one
type Confirmer struct {
	marketData *marketdata.Service
	logger     *logging.Logger
}

// NewConfirmer creates a multi-timeframe confirmer
func NewConfirmer(marketData *marketdata.Service) *Confirmer {
	return &Confirmer{
		marketData: marketData,
		logger:     logging.Default().WithComponent("mtf"),
	}
}

// Confirm evaluates trend direction on each higher timeframe. All agree with
// the side reads STRONG; a majority reads WEAK; any opposing trend reads
// CONTRADICTION; no higher timeframe configured reads NOT_APPLICABLE.
func (c *Confirmer) Confirm(symbol, interval, exchangeName string, side exchange.Side) Confirmation {
	intervals, ok := higherIntervals[interval]
	if !ok || len(intervals) == 0 {
		return ConfirmationNotApplicable
	}

	agree, oppose := 0, 0
	for _, higher := range intervals {
		klines, err := c.marketData.GetKlines(exchangeName, symbol, higher, 60)
		if err != nil {
			c.logger.Warn("Higher timeframe fetch failed",
				"symbol", symbol, "interval", higher, "error", err.Error())
			return ConfirmationError
		}

		trend := ta.DetectTrend(klines, 9, 21)
		switch {
		case trend == ta.TrendUp && side == exchange.SideBuy,
			trend == ta.TrendDown && side == exchange.SideSell:
			agree++
		case trend == ta.TrendUp && side == exchange.SideSell,
			trend == ta.TrendDown && side == exchange.SideBuy:
			oppose++
		}
	}

	switch {
	case oppose > 0:
		return ConfirmationContradiction
	case agree == len(intervals):
		return ConfirmationStrong
	case agree > 0:
		return ConfirmationWeak
	}
	return ConfirmationNone
}
