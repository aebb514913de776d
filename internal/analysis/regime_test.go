package analysis

import (
	"testing"
	"time"

	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/marketdata"
)

func TestRegimeFavors(t *testing.T) {
	if !RegimeBullish.Favors(exchange.SideBuy) || RegimeBullish.Favors(exchange.SideSell) {
		t.Error("bullish regime favors longs only")
	}
	if !RegimeBearish.Favors(exchange.SideSell) || RegimeBearish.Favors(exchange.SideBuy) {
		t.Error("bearish regime favors shorts only")
	}
	if !RegimeRanging.Favors(exchange.SideBuy) || !RegimeRanging.Favors(exchange.SideSell) {
		t.Error("ranging regime must never count against a position")
	}
	if !RegimeUnknown.Favors(exchange.SideBuy) {
		t.Error("unknown regime must never count against a position")
	}
}

func TestClassify(t *testing.T) {
	fake := &fakeExchange{klinesByInterval: map[string][]exchange.Kline{
		"1h": trendingKlines(120, true),
	}}
	rc := NewRegimeClassifier(marketdata.NewService([]exchange.Exchange{fake}, time.Minute, time.Second))

	if got := rc.Classify("BTCUSDT", "BYBIT"); got != RegimeBullish {
		t.Errorf("up-trending market classified %s, want %s", got, RegimeBullish)
	}
	if rc.Last("BTCUSDT") != RegimeBullish {
		t.Error("classification not recorded")
	}
}

func TestClassifyBearishAndRanging(t *testing.T) {
	fake := &fakeExchange{klinesByInterval: map[string][]exchange.Kline{
		"1h": trendingKlines(120, false),
	}}
	md := marketdata.NewService([]exchange.Exchange{fake}, time.Minute, time.Second)
	rc := NewRegimeClassifier(md)

	if got := rc.Classify("BTCUSDT", "BYBIT"); got != RegimeBearish {
		t.Errorf("down-trending market classified %s, want %s", got, RegimeBearish)
	}

	fake.klinesByInterval["1h"] = flatKlines(120)
	md.Invalidate("BYBIT", "BTCUSDT")
	if got := rc.Classify("BTCUSDT", "BYBIT"); got != RegimeRanging {
		t.Errorf("flat market classified %s, want %s", got, RegimeRanging)
	}
}

func TestClassifyFetchFailure(t *testing.T) {
	fake := &fakeExchange{klinesByInterval: nil}
	rc := NewRegimeClassifier(marketdata.NewService([]exchange.Exchange{fake}, time.Minute, time.Second))

	if got := rc.Classify("BTCUSDT", "BYBIT"); got != RegimeUnknown {
		t.Errorf("fetch failure classified %s, want %s", got, RegimeUnknown)
	}
	if rc.Last("NEVER") != RegimeUnknown {
		t.Error("unseen symbol must read UNKNOWN")
	}
}

func TestHasFlippedAgainst(t *testing.T) {
	fake := &fakeExchange{klinesByInterval: map[string][]exchange.Kline{
		"1h": trendingKlines(120, true),
	}}
	md := marketdata.NewService([]exchange.Exchange{fake}, time.Minute, time.Second)
	rc := NewRegimeClassifier(md)

	// First sighting can never be a flip
	if rc.HasFlippedAgainst("BTCUSDT", "BYBIT", exchange.SideBuy) {
		t.Error("first classification reported as a flip")
	}

	// Regime turns bearish against the long
	fake.klinesByInterval["1h"] = trendingKlines(120, false)
	md.Invalidate("BYBIT", "BTCUSDT")
	if !rc.HasFlippedAgainst("BTCUSDT", "BYBIT", exchange.SideBuy) {
		t.Error("bearish flip against a long not detected")
	}

	// The same bearish regime favors a short, so no flip for SELL
	md.Invalidate("BYBIT", "BTCUSDT")
	if rc.HasFlippedAgainst("BTCUSDT", "BYBIT", exchange.SideSell) {
		t.Error("regime favoring the position reported as a flip")
	}
}
