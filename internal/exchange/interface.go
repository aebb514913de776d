package exchange

import "errors"

// ErrInvalidInterval is returned when the venue rejects the kline interval
// (Bybit/MEXC error code -1121). Callers retry once with the "1d" fallback.
var ErrInvalidInterval = errors.New("invalid kline interval")

// ErrOrderNotFound is returned when an order id is unknown to the venue
var ErrOrderNotFound = errors.New("order not found")

// Exchange is the capability interface over a concrete venue.
// Implementations return normalized candlesticks, tickers and order responses.
type Exchange interface {
	// Name returns the venue identifier, e.g. "BYBIT" or "MEXC"
	Name() string

	// Market data
	GetKlines(symbol, interval string, limit int) ([]Kline, error)
	GetCurrentPrice(symbol string) (float64, error)
	GetTicker(symbol string) (*Ticker, error)

	// Account
	GetEquity() (float64, error)
	GetPositions() ([]Position, error)

	// Trading
	PlaceOrder(req OrderRequest) (*Order, error)
	CancelOrder(symbol, orderID string) (*Order, error)
	GetOrder(symbol, orderID string) (*Order, error)
	GetOpenOrders(symbol string) ([]Order, error)

	// Margin setup for the aggressive path. Failures are warnings, not aborts.
	SetLeverage(symbol string, leverage int) error
	SetIsolatedMargin(symbol string, isolated bool) error

	// Metadata
	GetSymbolFilters(symbol string) (*SymbolFilters, error)
}
