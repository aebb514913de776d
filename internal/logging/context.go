package logging

// Domain-scoped loggers. Each binds the identifying fields of one unit of
// work so every line it emits carries them.

// TradeLogger returns a logger bound to one trade
func TradeLogger(symbol, side string) *Logger {
	return Default().WithComponent("trade").
		WithField("symbol", symbol).
		WithField("side", side)
}

// HedgeLogger returns a logger bound to one hedge pairing
func HedgeLogger(primarySymbol, hedgeSymbol string) *Logger {
	return Default().WithComponent("hedge").
		WithField("primary", primarySymbol).
		WithField("hedge", hedgeSymbol)
}

// SessionLogger returns a logger bound to the active trading session
func SessionLogger(session string) *Logger {
	return Default().WithComponent("session").
		WithField("session", session)
}
