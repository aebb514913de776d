package exchange

import "time"

// Kline represents a normalized candlestick
type Kline struct {
	OpenTime int64   `json:"openTime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Ticker represents the latest price snapshot for a symbol
type Ticker struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"lastPrice"`
	Volume24h float64 `json:"volume24h"`
	Timestamp int64   `json:"timestamp"`
}

// Side is the order direction
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing direction for this side
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is the order execution type
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// MarketType distinguishes spot from linear perpetual markets
type MarketType string

const (
	MarketTypeSpot   MarketType = "spot"
	MarketTypeLinear MarketType = "linear"
)

// Order status values; transitions are monotonic except FILLED which is terminal
const (
	OrderStatusNew             = "NEW"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
	OrderStatusRejected        = "REJECTED"
)

// OrderRequest is a candidate order produced by a strategy
type OrderRequest struct {
	Symbol        string     `json:"symbol"`
	Side          Side       `json:"side"`
	Type          OrderType  `json:"type"`
	Quantity      float64    `json:"quantity"`
	Price         float64    `json:"price,omitempty"`
	StopLoss      float64    `json:"stop_loss,omitempty"`
	Leverage      int        `json:"leverage"`
	MarketType    MarketType `json:"market_type"`
	StrategyName  string     `json:"strategy_name"`
	ClientOrderID string     `json:"client_order_id,omitempty"`
	ReduceOnly    bool       `json:"reduce_only,omitempty"`
}

// Order is a venue-acknowledged order
type Order struct {
	OrderID       string    `json:"order_id"`
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Type          OrderType `json:"type"`
	Status        string    `json:"status"`
	Price         float64   `json:"price"`
	Quantity      float64   `json:"quantity"`
	ExecutedQty   float64   `json:"executed_qty"`
	AvgPrice      float64   `json:"avg_price"`
	Exchange      string    `json:"exchange"`
	StrategyName  string    `json:"strategy_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsTerminal reports whether the order can no longer change state
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
		return true
	}
	return false
}

// Position is the venue-side view of an open position
type Position struct {
	Symbol        string  `json:"symbol"`
	Side          Side    `json:"side"`
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entry_price"`
	Leverage      int     `json:"leverage"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	StopLoss      float64 `json:"stop_loss,omitempty"`
	Exchange      string  `json:"exchange"`
}

// SymbolFilters carries the venue's tick-size metadata for a symbol.
// Quantities and prices are rounded DOWN to these steps before submission.
type SymbolFilters struct {
	Symbol      string  `json:"symbol"`
	QtyStep     float64 `json:"qty_step"`
	TickSize    float64 `json:"tick_size"`
	MinQty      float64 `json:"min_qty"`
	MinNotional float64 `json:"min_notional"`
}
