package ai

import (
	"strconv"
	"strings"

	"sniper-trading-bot/internal/exchange"
)

const (
	setupStart = "---SETUP---"
	setupEnd   = "---END_SETUP---"
)

// TradeSetup is one parsed setup block from a scan response
type TradeSetup struct {
	Title       string
	Side        exchange.Side
	Entry       float64
	StopLoss    float64
	TakeProfits []float64
}

// CandidateTrade is one executable candidate derived from a setup; each
// take-profit level spawns its own candidate.
type CandidateTrade struct {
	Title      string
	Side       exchange.Side
	Entry      float64
	StopLoss   float64
	TakeProfit float64
}

// ParseSetupBlocks extracts all well-formed setup blocks from scan output.
// Blocks missing direction, entry or stop are dropped; a malformed block
// never aborts parsing of the rest.
func ParseSetupBlocks(text string) []TradeSetup {
	var setups []TradeSetup

	rest := text
	for {
		start := strings.Index(rest, setupStart)
		if start < 0 {
			break
		}
		rest = rest[start+len(setupStart):]

		end := strings.Index(rest, setupEnd)
		if end < 0 {
			break
		}
		block := rest[:end]
		rest = rest[end+len(setupEnd):]

		if setup, ok := parseSetupBlock(block); ok {
			setups = append(setups, setup)
		}
	}
	return setups
}

func parseSetupBlock(block string) (TradeSetup, bool) {
	var setup TradeSetup
	tps := make(map[int]float64)

	for _, line := range strings.Split(block, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch {
		case strings.EqualFold(key, "Title"):
			setup.Title = value
		case strings.EqualFold(key, "Direction"):
			switch strings.ToUpper(value) {
			case "LONG":
				setup.Side = exchange.SideBuy
			case "SHORT":
				setup.Side = exchange.SideSell
			}
		case strings.EqualFold(key, "Entry"):
			setup.Entry = parsePriceValue(value)
		case strings.EqualFold(key, "StopLoss"):
			setup.StopLoss = parsePriceValue(value)
		case strings.EqualFold(key, "TakeProfit1"):
			tps[1] = parsePriceValue(value)
		case strings.EqualFold(key, "TakeProfit2"):
			tps[2] = parsePriceValue(value)
		case strings.EqualFold(key, "TakeProfit3"):
			tps[3] = parsePriceValue(value)
		}
	}

	for i := 1; i <= 3; i++ {
		if tp, ok := tps[i]; ok && tp > 0 {
			setup.TakeProfits = append(setup.TakeProfits, tp)
		}
	}

	if setup.Side == "" || setup.Entry <= 0 || setup.StopLoss <= 0 {
		return TradeSetup{}, false
	}
	return setup, true
}

// parsePriceValue handles scalars and ranges like "43500 - 43800", taking
// the first value of a range. Currency symbols and separators are stripped.
func parsePriceValue(value string) float64 {
	if idx := strings.Index(value, " - "); idx >= 0 {
		value = value[:idx]
	}
	value = strings.TrimSpace(strings.Trim(value, "$,"))
	value = strings.ReplaceAll(value, ",", "")

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return f
}

// Candidates expands a setup into one candidate trade per take-profit level
func (s TradeSetup) Candidates() []CandidateTrade {
	out := make([]CandidateTrade, 0, len(s.TakeProfits))
	for _, tp := range s.TakeProfits {
		out = append(out, CandidateTrade{
			Title:      s.Title,
			Side:       s.Side,
			Entry:      s.Entry,
			StopLoss:   s.StopLoss,
			TakeProfit: tp,
		})
	}
	return out
}

// Serialize renders the setup back into its block form; parsing the result
// yields identical candidates
func (s TradeSetup) Serialize() string {
	var b strings.Builder
	b.WriteString(setupStart + "\n")
	b.WriteString("Title: " + s.Title + "\n")
	if s.Side == exchange.SideBuy {
		b.WriteString("Direction: LONG\n")
	} else {
		b.WriteString("Direction: SHORT\n")
	}
	b.WriteString("Entry: " + formatPrice(s.Entry) + "\n")
	b.WriteString("StopLoss: " + formatPrice(s.StopLoss) + "\n")
	for i, tp := range s.TakeProfits {
		b.WriteString("TakeProfit" + strconv.Itoa(i+1) + ": " + formatPrice(tp) + "\n")
	}
	b.WriteString(setupEnd)
	return b.String()
}

func formatPrice(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
