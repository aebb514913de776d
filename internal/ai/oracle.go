package ai

import (
	"fmt"
	"strings"

	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/logging"
)

// Verdict is the directional opinion parsed from the oracle's free-form text
type Verdict string

const (
	VerdictStrongBuy  Verdict = "STRONG_BUY"
	VerdictBuy        Verdict = "BUY"
	VerdictNeutral    Verdict = "NEUTRAL"
	VerdictSell       Verdict = "SELL"
	VerdictStrongSell Verdict = "STRONG_SELL"
)

// Aligns reports whether the verdict agrees with the intended trade side
func (v Verdict) Aligns(side exchange.Side) bool {
	switch v {
	case VerdictStrongBuy, VerdictBuy:
		return side == exchange.SideBuy
	case VerdictStrongSell, VerdictSell:
		return side == exchange.SideSell
	}
	return false
}

// Oracle wraps the LLM client with trading-specific prompts and parsing.
// Failures never block a tick: callers get NEUTRAL plus the error.
type Oracle struct {
	client *Client
	logger *logging.Logger
}

// NewOracle creates an oracle adapter
func NewOracle(client *Client) *Oracle {
	return &Oracle{
		client: client,
		logger: logging.Default().WithComponent("ai-oracle"),
	}
}

// AnalyzeSymbol asks for a directional verdict on a symbol at the current
// price. A failed call or unparseable response reads as NEUTRAL.
func (o *Oracle) AnalyzeSymbol(symbol, interval, exchangeName string, price float64) (Verdict, error) {
	prompt := fmt.Sprintf(
		"Analyze %s on the %s timeframe (exchange: %s, current price: %.8f). "+
			"Respond with exactly one of: STRONG_BUY, BUY, NEUTRAL, SELL, STRONG_SELL, "+
			"followed by a one-line justification.",
		symbol, interval, exchangeName, price)

	text, err := o.client.Complete(prompt)
	if err != nil {
		o.logger.Warn("Oracle query failed", "symbol", symbol, "error", err.Error())
		return VerdictNeutral, err
	}

	verdict, ok := ParseVerdict(text)
	if !ok {
		o.logger.Warn("Oracle response had no verdict token",
			"symbol", symbol, "excerpt", excerpt(text, 120))
		return VerdictNeutral, fmt.Errorf("no verdict token in oracle response")
	}
	return verdict, nil
}

// ScanSymbol runs the long-form scan that may emit structured setup blocks
func (o *Oracle) ScanSymbol(symbol, interval, exchangeName string, price float64) ([]TradeSetup, error) {
	prompt := fmt.Sprintf(
		"Perform a full technical scan of %s on the %s timeframe (exchange: %s, price: %.8f). "+
			"For each actionable setup emit a block:\n"+
			"---SETUP---\nTitle: <name>\nDirection: LONG|SHORT\nEntry: <price or range>\n"+
			"StopLoss: <price>\nTakeProfit1: <price>\nTakeProfit2: <price>\nTakeProfit3: <price>\n---END_SETUP---",
		symbol, interval, exchangeName, price)

	text, err := o.client.CompleteScan(prompt)
	if err != nil {
		return nil, err
	}
	return ParseSetupBlocks(text), nil
}

// NotifyEvent sends a fire-and-forget notification about a structural event
// (breakout/rejection). It runs on its own goroutine and never blocks the
// evaluation tick.
func (o *Oracle) NotifyEvent(symbol, event string, level, price float64) {
	go func() {
		prompt := fmt.Sprintf("Event on %s: %s at level %.8f (current price %.8f). Acknowledge.",
			symbol, event, level, price)
		if _, err := o.client.Complete(prompt); err != nil {
			o.logger.Debug("Event notification failed", "symbol", symbol, "event", event)
		}
	}()
}

// ParseVerdict scans free-form text for the first verdict token. Longer
// tokens are matched first so "STRONG_BUY" never reads as "BUY".
func ParseVerdict(text string) (Verdict, bool) {
	upper := strings.ToUpper(text)
	for _, v := range []Verdict{VerdictStrongBuy, VerdictStrongSell, VerdictBuy, VerdictSell, VerdictNeutral} {
		if strings.Contains(upper, string(v)) {
			return v, true
		}
	}
	return VerdictNeutral, false
}

func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
