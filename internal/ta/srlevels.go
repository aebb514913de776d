package ta

import (
	"math"
	"sort"

	"sniper-trading-bot/internal/exchange"
)

// Level is a support or resistance price with the number of pivots that
// formed it
type Level struct {
	Price    float64
	Strength int
	IsSupport bool
}

const srGroupPercent = 0.01

// FindLevels detects support and resistance from swing pivots. A pivot high
// is a candle whose high exceeds the highs of every candle within lookback
// bars on each side; pivot lows mirror that, so a pivot needs 2*lookback+1
// candles around it. Pivots within 1% of each other merge into one level
// whose strength is the pivot count.
func FindLevels(klines []exchange.Kline, lookback int) []Level {
	if lookback <= 0 || len(klines) < lookback*2+1 {
		return nil
	}

	var pivotHighs, pivotLows []float64
	for i := lookback; i < len(klines)-lookback; i++ {
		isHigh, isLow := true, true
		for w := 1; w <= lookback && (isHigh || isLow); w++ {
			if klines[i].High <= klines[i-w].High || klines[i].High <= klines[i+w].High {
				isHigh = false
			}
			if klines[i].Low >= klines[i-w].Low || klines[i].Low >= klines[i+w].Low {
				isLow = false
			}
		}
		if isHigh {
			pivotHighs = append(pivotHighs, klines[i].High)
		}
		if isLow {
			pivotLows = append(pivotLows, klines[i].Low)
		}
	}

	levels := groupPivots(pivotLows, true)
	levels = append(levels, groupPivots(pivotHighs, false)...)

	sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	return levels
}

// groupPivots merges pivots within srGroupPercent of each other into a single
// level at their mean
func groupPivots(pivots []float64, isSupport bool) []Level {
	if len(pivots) == 0 {
		return nil
	}
	sort.Float64s(pivots)

	var levels []Level
	groupSum := pivots[0]
	groupCount := 1
	groupBase := pivots[0]

	flush := func() {
		levels = append(levels, Level{
			Price:     groupSum / float64(groupCount),
			Strength:  groupCount,
			IsSupport: isSupport,
		})
	}

	for _, p := range pivots[1:] {
		if groupBase > 0 && (p-groupBase)/groupBase <= srGroupPercent {
			groupSum += p
			groupCount++
			continue
		}
		flush()
		groupSum = p
		groupCount = 1
		groupBase = p
	}
	flush()

	return levels
}

// NearestSupport returns the strongest support below price, false when none
func NearestSupport(levels []Level, price float64) (Level, bool) {
	var best Level
	found := false
	for _, l := range levels {
		if !l.IsSupport || l.Price >= price {
			continue
		}
		if !found || l.Price > best.Price {
			best = l
			found = true
		}
	}
	return best, found
}

// NearestResistance returns the closest resistance above price, false when none
func NearestResistance(levels []Level, price float64) (Level, bool) {
	var best Level
	found := false
	for _, l := range levels {
		if l.IsSupport || l.Price <= price {
			continue
		}
		if !found || l.Price < best.Price {
			best = l
			found = true
		}
	}
	return best, found
}

// DistanceToLevel returns the absolute distance to the level as a fraction
// of price
func DistanceToLevel(price float64, level Level) float64 {
	if price == 0 {
		return math.MaxFloat64
	}
	return math.Abs(price-level.Price) / price
}
