package strategy

import (
	"math"
	"testing"

	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/ta"
	"sniper-trading-bot/internal/weighting"
)

// bareSniper builds a strategy with only the config wired; good enough for
// the pure evaluation helpers
func bareSniper() *SniperStrategy {
	return NewSniperStrategy(nil, nil, nil, nil, nil, nil, nil, nil, "BYBIT")
}

func flatKlines(n int, price float64) []exchange.Kline {
	klines := make([]exchange.Kline, n)
	for i := range klines {
		klines[i] = exchange.Kline{Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 100}
	}
	return klines
}

func TestDetectStructuralEventBreakout(t *testing.T) {
	s := bareSniper()
	klines := flatKlines(10, 99)
	klines[9].High = 101.5
	klines[9].Close = 101 // closes through the level

	levels := []ta.Level{{Price: 100, IsSupport: false}}

	event := s.detectStructuralEvent(klines, levels, exchange.SideBuy)
	if event == nil || event.Kind != "BREAKOUT" || event.Level != 100 {
		t.Fatalf("expected BUY breakout through 100, got %+v", event)
	}

	// The same candle is not a SELL breakout
	if event := s.detectStructuralEvent(klines, levels, exchange.SideSell); event != nil {
		t.Errorf("SELL side saw a breakout on an up-move: %+v", event)
	}
}

func TestDetectStructuralEventRejection(t *testing.T) {
	s := bareSniper()
	klines := flatKlines(10, 100)
	// Long lower wick through support, small body closing back above
	klines[9] = exchange.Kline{Open: 100, High: 100.5, Low: 94, Close: 100.4, Volume: 100}

	levels := []ta.Level{{Price: 96, IsSupport: true}}

	event := s.detectStructuralEvent(klines, levels, exchange.SideBuy)
	if event == nil || event.Kind != "REJECTION" || event.Level != 96 {
		t.Fatalf("expected rejection at support 96, got %+v", event)
	}
}

func TestIsRejectionRequiresWickBodyRatio(t *testing.T) {
	s := bareSniper()

	// Wick 4 wide against a body of 0.4 clears the 1.5 ratio
	tall := exchange.Kline{Open: 100, High: 100.5, Low: 94, Close: 100.4}
	if !s.isRejection(tall, 96, exchange.SideBuy) {
		t.Error("long lower wick through support should reject")
	}

	// Wick 3 against a body of 3 misses the 1.5 ratio
	fat := exchange.Kline{Open: 100, High: 100.5, Low: 94, Close: 97}
	if s.isRejection(fat, 96, exchange.SideBuy) {
		t.Error("fat body should fail the wick/body ratio")
	}

	// Body closed back through the level
	through := exchange.Kline{Open: 100, High: 100.5, Low: 94, Close: 95}
	if s.isRejection(through, 96, exchange.SideBuy) {
		t.Error("body closing below support is not a rejection")
	}

	// Wick never reached the level
	shallow := exchange.Kline{Open: 100, High: 100.5, Low: 97, Close: 100.4}
	if s.isRejection(shallow, 96, exchange.SideBuy) {
		t.Error("wick that never pierced the level should not reject")
	}
}

func TestIsRejectionMinRange(t *testing.T) {
	s := bareSniper()
	// Total range 0.1 on a 100 close is under the 0.3% minimum
	doji := exchange.Kline{Open: 100, High: 100.05, Low: 99.95, Close: 100}
	if s.isRejection(doji, 99.98, exchange.SideBuy) {
		t.Error("sub-minimum-range candle should never count as a rejection")
	}
}

func TestTrendFilter(t *testing.T) {
	s := bareSniper()
	s.config.LongTermMAPeriod = 5
	klines := flatKlines(10, 100)

	if !s.trendFilterPassed(klines, 105, exchange.SideBuy) {
		t.Error("price above the long SMA should pass for BUY")
	}
	if s.trendFilterPassed(klines, 95, exchange.SideBuy) {
		t.Error("price below the long SMA should fail for BUY")
	}
	if !s.trendFilterPassed(klines, 95, exchange.SideSell) {
		t.Error("price below the long SMA should pass for SELL")
	}
}

func TestAssignTier(t *testing.T) {
	s := bareSniper()

	cases := []struct {
		name       string
		event      *structuralEvent
		score      float64
		aiConfirms bool
		want       SignalTier
	}{
		{"confluence tier1", nil, 4.5, false, "TIER_1_CONFLUENCE_BUY"},
		{"confluence tier2", nil, 3.5, false, "TIER_2_CONFLUENCE_BUY"},
		{"confluence tier3", nil, 2.5, false, "TIER_3_CONFLUENCE_BUY"},
		{"below floor", nil, 2.4, false, TierNoSignal},
		{"event default tier2", &structuralEvent{Kind: "BREAKOUT", Level: 100}, 2.0, false, "TIER_2_BREAKOUT_BUY"},
		{"event upgraded by score", &structuralEvent{Kind: "BREAKOUT", Level: 100}, 3.5, false, "TIER_1_BREAKOUT_BUY"},
		{"event upgraded by ai", &structuralEvent{Kind: "REJECTION", Level: 100}, 2.0, true, "TIER_1_REJECTION_BUY"},
	}

	for _, tc := range cases {
		if got := s.assignTier(tc.event, tc.score, tc.aiConfirms, exchange.SideBuy); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestSignalTierLevelAndSide(t *testing.T) {
	tier := MakeTier(1, "BREAKOUT", exchange.SideBuy)
	if tier != "TIER_1_BREAKOUT_BUY" {
		t.Fatalf("MakeTier = %s", tier)
	}
	if tier.Level() != 1 {
		t.Errorf("Level = %d, want 1", tier.Level())
	}
	if side, ok := tier.Side(); !ok || side != exchange.SideBuy {
		t.Errorf("Side = %v (ok=%v)", side, ok)
	}
	if TierNoSignal.Level() != 0 {
		t.Error("NO_SIGNAL must have level 0")
	}
	if _, ok := TierNoSignal.Side(); ok {
		t.Error("NO_SIGNAL must not carry a side")
	}
}

func TestCalculatePositionSize(t *testing.T) {
	s := bareSniper()

	cases := []struct {
		tier    SignalTier
		wantQty float64
		wantLev int
	}{
		// equity 10000, entry 100
		{MakeTier(1, "BREAKOUT", exchange.SideBuy), 10000 * 0.015 * 25 / 100, 25},
		{MakeTier(2, "CONFLUENCE", exchange.SideBuy), 10000 * 0.0075 * 40 / 100, 40},
		{MakeTier(3, "CONFLUENCE", exchange.SideSell), 10000 * 0.004 * 75 / 100, 75},
	}

	for _, tc := range cases {
		s.setTier("BTCUSDT", tc.tier)
		qty, lev, err := s.CalculatePositionSize("BTCUSDT", 10000, 100)
		if err != nil {
			t.Fatalf("%s: %v", tc.tier, err)
		}
		if qty != tc.wantQty || lev != tc.wantLev {
			t.Errorf("%s: got (%v, %d), want (%v, %d)", tc.tier, qty, lev, tc.wantQty, tc.wantLev)
		}
	}
}

func TestCalculatePositionSizeNoTier(t *testing.T) {
	s := bareSniper()
	if _, _, err := s.CalculatePositionSize("UNSEEN", 10000, 100); err == nil {
		t.Error("sizing without a cached tier must fail")
	}

	s.setTier("BTCUSDT", TierNoSignal)
	if _, _, err := s.CalculatePositionSize("BTCUSDT", 10000, 100); err == nil {
		t.Error("sizing against NO_SIGNAL must fail")
	}
}

func TestPT1Reached(t *testing.T) {
	s := bareSniper() // 2R first target

	// Long from 100 with stop 95: R=5, target 110
	if s.pt1Reached(exchange.SideBuy, 100, 95, 109.9) {
		t.Error("109.9 is short of the 2R target 110")
	}
	if !s.pt1Reached(exchange.SideBuy, 100, 95, 110) {
		t.Error("110 hits the 2R target exactly")
	}

	// Short from 100 with stop 103: R=3, target 94
	if !s.pt1Reached(exchange.SideSell, 100, 103, 94) {
		t.Error("94 hits the short 2R target")
	}
	if s.pt1Reached(exchange.SideSell, 100, 103, 94.1) {
		t.Error("94.1 is short of the short 2R target")
	}

	// Degenerate zero-risk distance never fires
	if s.pt1Reached(exchange.SideBuy, 100, 100, 200) {
		t.Error("zero R must never reach PT1")
	}
}

func TestStopHit(t *testing.T) {
	if !stopHit(exchange.SideBuy, 95, 95) || !stopHit(exchange.SideBuy, 94, 95) {
		t.Error("long stop fires at or below the stop")
	}
	if stopHit(exchange.SideBuy, 95.01, 95) {
		t.Error("long stop must not fire above the stop")
	}
	if !stopHit(exchange.SideSell, 105, 105) || !stopHit(exchange.SideSell, 106, 105) {
		t.Error("short stop fires at or above the stop")
	}
	if stopHit(exchange.SideSell, 104.99, 105) {
		t.Error("short stop must not fire below the stop")
	}
}

func TestWeightedScoreDefaultsAreIdentity(t *testing.T) {
	// Without a weighting service the score is the plain component sum
	s := bareSniper()
	if got := s.weightedScore(3, 0.5, 1); math.Abs(got-4.5) > 1e-9 {
		t.Errorf("unweighted score = %v, want 4.5", got)
	}

	// A fresh service returns the prior, which must also be the identity
	s = NewSniperStrategy(nil, nil, nil, nil, nil, nil, nil, weighting.NewService(), "BYBIT")
	if got := s.weightedScore(3, 0.5, 1); math.Abs(got-4.5) > 1e-9 {
		t.Errorf("prior-weighted score = %v, want 4.5", got)
	}
}

func TestWeightedScoreFollowsAdaptiveWeights(t *testing.T) {
	svc := weighting.NewService()
	// Only the technical component ever calls it right
	for i := 0; i < 20; i++ {
		svc.RecordOutcome(true, false, false)
	}
	s := NewSniperStrategy(nil, nil, nil, nil, nil, nil, nil, svc, "BYBIT")

	// Weights land on {0.75, 0.1, 0.15}; against the {0.5, 0.2, 0.3} prior
	// the component ratios are 1.5, 0.5, 0.5
	got := s.weightedScore(3, 1, 1)
	want := 3*1.5 + 1*0.5 + 1*0.5
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("adaptive score = %v, want %v", got, want)
	}
}

func TestRecordOutcomeFeedsWeighting(t *testing.T) {
	svc := weighting.NewService()
	s := NewSniperStrategy(nil, nil, nil, nil, nil, nil, nil, svc, "BYBIT")

	s.setComponents("BTCUSDT", evalComponents{technical: true, sentiment: false, ai: true})
	s.recordOutcome("BTCUSDT", true)

	stats := svc.GetStats()
	if stats["samples"].(int) != 1 {
		t.Fatalf("samples = %v, want 1", stats["samples"])
	}
	// Winners: components that pointed with the trade agreed, the one that
	// did not point with it disagreed
	if stats["technical_rate"].(float64) != 1.0 || stats["ai_rate"].(float64) != 1.0 {
		t.Errorf("aligned components not credited: %v", stats)
	}
	if stats["sentiment_rate"].(float64) != 0.0 {
		t.Errorf("non-aligned component credited: %v", stats)
	}

	// The components are consumed with the trade; a second close is a no-op
	s.recordOutcome("BTCUSDT", true)
	if svc.GetStats()["samples"].(int) != 1 {
		t.Error("outcome recorded twice for one trade")
	}

	// A symbol that never produced a signal records nothing
	s.recordOutcome("UNSEEN", false)
	if svc.GetStats()["samples"].(int) != 1 {
		t.Error("outcome recorded for a symbol with no cached components")
	}
}

func TestTradeWon(t *testing.T) {
	if !tradeWon(exchange.SideBuy, 100, 104) || tradeWon(exchange.SideBuy, 100, 95) {
		t.Error("long wins above entry only")
	}
	if !tradeWon(exchange.SideSell, 100, 96) || tradeWon(exchange.SideSell, 100, 105) {
		t.Error("short wins below entry only")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	s := bareSniper()

	if err := reg.Register("sniper", s); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("sniper", s); err == nil {
		t.Error("duplicate id must be rejected")
	}

	got, err := reg.Get("sniper")
	if err != nil || got.Name() != "SNIPER" {
		t.Errorf("Get = %v, %v", got, err)
	}
	if _, err := reg.Get("missing"); err == nil {
		t.Error("unknown id must error")
	}
}
