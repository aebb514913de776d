package ai

import (
	"testing"

	"sniper-trading-bot/internal/exchange"
)

func TestParseVerdict(t *testing.T) {
	cases := []struct {
		text string
		want Verdict
		ok   bool
	}{
		{"STRONG_BUY - momentum is building", VerdictStrongBuy, true},
		{"I would rate this a strong_sell here", VerdictStrongSell, true},
		{"BUY with a tight stop", VerdictBuy, true},
		{"Verdict: SELL", VerdictSell, true},
		{"NEUTRAL, no edge either way", VerdictNeutral, true},
		{"the chart looks indecisive", VerdictNeutral, false},
		{"", VerdictNeutral, false},
	}

	for _, tc := range cases {
		got, ok := ParseVerdict(tc.text)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseVerdict(%q) = (%s, %v), want (%s, %v)", tc.text, got, ok, tc.want, tc.ok)
		}
	}
}

// STRONG_BUY contains BUY as a substring; the longer token must win
func TestParseVerdictPrefersLongerToken(t *testing.T) {
	got, ok := ParseVerdict("my call: STRONG_BUY")
	if !ok || got != VerdictStrongBuy {
		t.Errorf("got %s, want %s", got, VerdictStrongBuy)
	}

	got, ok = ParseVerdict("STRONG_SELL is warranted")
	if !ok || got != VerdictStrongSell {
		t.Errorf("got %s, want %s", got, VerdictStrongSell)
	}
}

func TestVerdictAligns(t *testing.T) {
	if !VerdictBuy.Aligns(exchange.SideBuy) || !VerdictStrongBuy.Aligns(exchange.SideBuy) {
		t.Error("buy verdicts must align with BUY")
	}
	if !VerdictSell.Aligns(exchange.SideSell) || !VerdictStrongSell.Aligns(exchange.SideSell) {
		t.Error("sell verdicts must align with SELL")
	}
	if VerdictNeutral.Aligns(exchange.SideBuy) || VerdictNeutral.Aligns(exchange.SideSell) {
		t.Error("NEUTRAL must align with neither side")
	}
	if VerdictBuy.Aligns(exchange.SideSell) {
		t.Error("BUY must not align with SELL")
	}
}
