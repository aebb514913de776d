package database

import "time"

// SignalRecord is a graded entry signal persisted at evaluation time
type SignalRecord struct {
	ID           int64     `json:"id"`
	StrategyName string    `json:"strategy_name"`
	Symbol       string    `json:"symbol"`
	Tier         string    `json:"tier"`
	Side         string    `json:"side"`
	Score        float64   `json:"score"`
	EntryPrice   float64   `json:"entry_price"`
	StopLoss     float64   `json:"stop_loss"`
	Executed     bool      `json:"executed"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClosedPositionRecord is a position's realized outcome
type ClosedPositionRecord struct {
	ID           int64      `json:"id"`
	Symbol       string     `json:"symbol"`
	Side         string     `json:"side"`
	Size         float64    `json:"size"`
	EntryPrice   float64    `json:"entry_price"`
	ExitPrice    float64    `json:"exit_price"`
	Leverage     int        `json:"leverage"`
	RealizedPnL  float64    `json:"realized_pnl"`
	StrategyName string     `json:"strategy_name"`
	ExitReason   string     `json:"exit_reason"`
	Exchange     string     `json:"exchange"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
	ClosedAt     time.Time  `json:"closed_at"`
}

// PerformanceRecord is one append-only signal outcome row
type PerformanceRecord struct {
	ID             int64     `json:"id"`
	SignalID       *int64    `json:"signal_id,omitempty"`
	Symbol         string    `json:"symbol"`
	Outcome        string    `json:"outcome"` // WIN or LOSS
	TechnicalScore float64   `json:"technical_score"`
	SentimentScore float64   `json:"sentiment_score"`
	AIScore        float64   `json:"ai_score"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// HedgeEventRecord captures a hedge open or close
type HedgeEventRecord struct {
	ID            int64     `json:"id"`
	PrimarySymbol string    `json:"primary_symbol"`
	HedgeSymbol   string    `json:"hedge_symbol"`
	HedgeSide     string    `json:"hedge_side"`
	HedgeType     string    `json:"hedge_type"`
	Reason        string    `json:"reason"`
	Ratio         float64   `json:"ratio"`
	Size          float64   `json:"size"`
	TriggerPrice  float64   `json:"trigger_price"`
	Event         string    `json:"event"` // OPEN or CLOSE
	CreatedAt     time.Time `json:"created_at"`
}
