package ta

import "sniper-trading-bot/internal/exchange"

// FibLevels holds retracement levels measured from the swing high down to
// the swing low
type FibLevels struct {
	High     float64
	Level236 float64
	Level382 float64
	Level50  float64
	Level618 float64
	Level786 float64
	Low      float64
}

// FibonacciRetracement computes retracement levels from the highest high and
// lowest low over the trailing period. A flat window (high == low) yields the
// zero value; callers must check Valid before reading levels.
func FibonacciRetracement(klines []exchange.Kline, period int) FibLevels {
	if len(klines) < period || period <= 0 {
		return FibLevels{}
	}

	startIdx := len(klines) - period
	high := klines[startIdx].High
	low := klines[startIdx].Low

	for i := startIdx; i < len(klines); i++ {
		if klines[i].High > high {
			high = klines[i].High
		}
		if klines[i].Low < low {
			low = klines[i].Low
		}
	}

	if high == low {
		return FibLevels{}
	}

	diff := high - low
	return FibLevels{
		High:     high,
		Level236: high - diff*0.236,
		Level382: high - diff*0.382,
		Level50:  high - diff*0.50,
		Level618: high - diff*0.618,
		Level786: high - diff*0.786,
		Low:      low,
	}
}

// Valid reports whether the levels were computed from a non-flat window
func (f FibLevels) Valid() bool {
	return f.High != f.Low
}

// NearLevel reports whether price sits within tolerance (fraction of price)
// of any retracement level
func (f FibLevels) NearLevel(price, tolerance float64) (float64, bool) {
	if !f.Valid() || price == 0 {
		return 0, false
	}
	for _, level := range []float64{f.Level236, f.Level382, f.Level50, f.Level618, f.Level786} {
		diff := price - level
		if diff < 0 {
			diff = -diff
		}
		if diff/price <= tolerance {
			return level, true
		}
	}
	return 0, false
}
