package ta

import (
	"math"

	"sniper-trading-bot/internal/exchange"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates Simple Moving Average over the trailing period
func SMA(klines []exchange.Kline, period int) float64 {
	if period <= 0 || len(klines) < period {
		return 0
	}

	sum := 0.0
	startIdx := len(klines) - period

	for i := startIdx; i < len(klines); i++ {
		sum += klines[i].Close
	}

	return sum / float64(period)
}

// EMA calculates Exponential Moving Average seeded with the SMA of the
// first period candles
func EMA(klines []exchange.Kline, period int) float64 {
	if period <= 0 || len(klines) < period {
		return 0
	}

	ema := SMA(klines[:period], period)
	multiplier := 2.0 / float64(period+1)

	for i := period; i < len(klines); i++ {
		ema = (klines[i].Close * multiplier) + (ema * (1 - multiplier))
	}

	return ema
}

// ============================================================================
// RSI (Wilder smoothing)
// ============================================================================

// RSI calculates the Relative Strength Index with Wilder smoothing.
// Returns the neutral 50 when there is not enough history, 100 when there
// are no losses in the window.
func RSI(klines []exchange.Kline, period int) float64 {
	if period <= 0 || len(klines) < period+1 {
		return 50.0
	}

	gains := 0.0
	losses := 0.0

	// Seed averages from the first period of changes
	start := len(klines) - period*2
	if start < 1 {
		start = 1
	}
	seedEnd := start + period
	if seedEnd > len(klines) {
		seedEnd = len(klines)
	}

	for i := start; i < seedEnd; i++ {
		change := klines[i].Close - klines[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(seedEnd-start)
	avgLoss := losses / float64(seedEnd-start)

	// Wilder smoothing over the remaining changes
	for i := seedEnd; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// ATR (Wilder smoothing)
// ============================================================================

// ATR calculates Average True Range with Wilder smoothing. Needs period+1
// candles; returns 0 with fewer.
func ATR(klines []exchange.Kline, period int) float64 {
	if period <= 0 || len(klines) < period+1 {
		return 0
	}

	trueRange := func(i int) float64 {
		high := klines[i].High
		low := klines[i].Low
		prevClose := klines[i-1].Close
		return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
	}

	// Seed with the simple average of the first period true ranges
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += trueRange(i)
	}
	atr := sum / float64(period)

	for i := period + 1; i < len(klines); i++ {
		atr = (atr*float64(period-1) + trueRange(i)) / float64(period)
	}

	return atr
}

// ============================================================================
// VOLUME
// ============================================================================

// AverageVolume calculates average volume over the trailing period
func AverageVolume(klines []exchange.Kline, period int) float64 {
	if len(klines) == 0 {
		return 0
	}
	if len(klines) < period {
		period = len(klines)
	}

	sum := 0.0
	startIdx := len(klines) - period

	for i := startIdx; i < len(klines); i++ {
		sum += klines[i].Volume
	}

	return sum / float64(period)
}

// IsVolumeSpike reports whether the latest candle's volume exceeds the
// average of the preceding candles by the given multiplier. Over a
// zero-volume window any positive latest volume counts as a spike.
func IsVolumeSpike(klines []exchange.Kline, period int, multiplier float64) bool {
	if len(klines) < period+1 {
		return false
	}

	latest := klines[len(klines)-1].Volume
	avgVolume := AverageVolume(klines[:len(klines)-1], period)
	if avgVolume == 0 {
		return latest > 0
	}

	return latest >= avgVolume*multiplier
}

// VolumeRatio returns current volume relative to the trailing average,
// 0 when the average is zero
func VolumeRatio(klines []exchange.Kline, period int) float64 {
	if len(klines) < period+1 {
		return 0
	}

	avgVolume := AverageVolume(klines[:len(klines)-1], period)
	if avgVolume == 0 {
		return 0
	}

	return klines[len(klines)-1].Volume / avgVolume
}

// ============================================================================
// TREND DETECTION
// ============================================================================

// TrendDirection represents the current trend
type TrendDirection string

const (
	TrendUp       TrendDirection = "UPTREND"
	TrendDown     TrendDirection = "DOWNTREND"
	TrendSideways TrendDirection = "SIDEWAYS"
)

// DetectTrend detects the current trend using fast/slow EMA separation.
// EMAs within 0.5% of each other read as sideways.
func DetectTrend(klines []exchange.Kline, fastPeriod, slowPeriod int) TrendDirection {
	if len(klines) < slowPeriod {
		return TrendSideways
	}

	fastEMA := EMA(klines, fastPeriod)
	slowEMA := EMA(klines, slowPeriod)
	if slowEMA == 0 {
		return TrendSideways
	}

	difference := math.Abs(fastEMA-slowEMA) / slowEMA * 100
	if difference < 0.5 {
		return TrendSideways
	}

	if fastEMA > slowEMA {
		return TrendUp
	}
	return TrendDown
}

// Momentum calculates the percentage price change over the period
func Momentum(klines []exchange.Kline, period int) float64 {
	if len(klines) < period+1 {
		return 0
	}

	currentPrice := klines[len(klines)-1].Close
	pastPrice := klines[len(klines)-period-1].Close
	if pastPrice == 0 {
		return 0
	}

	return ((currentPrice - pastPrice) / pastPrice) * 100
}
