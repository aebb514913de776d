package database

import (
	"context"
	"fmt"
	"time"
)

// Repository provides persistence for signals, closed positions,
// signal performance and hedge events
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveSignal inserts a graded signal and returns its id
func (r *Repository) SaveSignal(ctx context.Context, s *SignalRecord) (int64, error) {
	query := `
		INSERT INTO signals (strategy_name, symbol, tier, side, score, entry_price, stop_loss, executed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err := r.db.Pool.QueryRow(ctx, query,
		s.StrategyName, s.Symbol, s.Tier, s.Side, s.Score, s.EntryPrice, s.StopLoss, s.Executed,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save signal: %w", err)
	}
	return id, nil
}

// MarkSignalExecuted flags a signal as acted on
func (r *Repository) MarkSignalExecuted(ctx context.Context, id int64) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE signals SET executed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark signal executed: %w", err)
	}
	return nil
}

// GetRecentSignals returns the most recent signals, newest first
func (r *Repository) GetRecentSignals(ctx context.Context, limit int) ([]SignalRecord, error) {
	query := `
		SELECT id, strategy_name, symbol, tier, side,
		       COALESCE(score, 0), entry_price, COALESCE(stop_loss, 0), executed, created_at
		FROM signals
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []SignalRecord
	for rows.Next() {
		var s SignalRecord
		if err := rows.Scan(&s.ID, &s.StrategyName, &s.Symbol, &s.Tier, &s.Side,
			&s.Score, &s.EntryPrice, &s.StopLoss, &s.Executed, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// SaveClosedPosition persists a realized position outcome
func (r *Repository) SaveClosedPosition(ctx context.Context, p *ClosedPositionRecord) error {
	query := `
		INSERT INTO closed_positions
			(symbol, side, size, entry_price, exit_price, leverage, realized_pnl,
			 strategy_name, exit_reason, exchange, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Pool.Exec(ctx, query,
		p.Symbol, p.Side, p.Size, p.EntryPrice, p.ExitPrice, p.Leverage,
		p.RealizedPnL, p.StrategyName, p.ExitReason, p.Exchange, p.OpenedAt)
	if err != nil {
		return fmt.Errorf("failed to save closed position: %w", err)
	}
	return nil
}

// GetClosedPositions returns closed positions for a symbol (all symbols when
// symbol is empty), newest first
func (r *Repository) GetClosedPositions(ctx context.Context, symbol string, limit int) ([]ClosedPositionRecord, error) {
	query := `
		SELECT id, symbol, side, size, entry_price, COALESCE(exit_price, 0),
		       COALESCE(leverage, 0), COALESCE(realized_pnl, 0),
		       COALESCE(strategy_name, ''), COALESCE(exit_reason, ''),
		       COALESCE(exchange, ''), opened_at, closed_at
		FROM closed_positions
		WHERE ($1 = '' OR symbol = $1)
		ORDER BY closed_at DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed positions: %w", err)
	}
	defer rows.Close()

	var records []ClosedPositionRecord
	for rows.Next() {
		var p ClosedPositionRecord
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Side, &p.Size, &p.EntryPrice,
			&p.ExitPrice, &p.Leverage, &p.RealizedPnL, &p.StrategyName,
			&p.ExitReason, &p.Exchange, &p.OpenedAt, &p.ClosedAt); err != nil {
			return nil, fmt.Errorf("failed to scan closed position: %w", err)
		}
		records = append(records, p)
	}
	return records, rows.Err()
}

// RecordPerformance appends one signal outcome row. Rows are never updated
// or deleted; aggregates are computed at read time.
func (r *Repository) RecordPerformance(ctx context.Context, p *PerformanceRecord) error {
	query := `
		INSERT INTO signal_performance
			(signal_id, symbol, outcome, technical_score, sentiment_score, ai_score)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Pool.Exec(ctx, query,
		p.SignalID, p.Symbol, p.Outcome, p.TechnicalScore, p.SentimentScore, p.AIScore)
	if err != nil {
		return fmt.Errorf("failed to record performance: %w", err)
	}
	return nil
}

// GetPerformanceSummary aggregates outcomes over a lookback window
func (r *Repository) GetPerformanceSummary(ctx context.Context, since time.Time) (wins, losses int64, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE outcome = 'WIN'),
			COUNT(*) FILTER (WHERE outcome = 'LOSS')
		FROM signal_performance
		WHERE recorded_at >= $1`

	if err := r.db.Pool.QueryRow(ctx, query, since).Scan(&wins, &losses); err != nil {
		return 0, 0, fmt.Errorf("failed to query performance summary: %w", err)
	}
	return wins, losses, nil
}

// SaveHedgeEvent persists a hedge open or close event
func (r *Repository) SaveHedgeEvent(ctx context.Context, h *HedgeEventRecord) error {
	query := `
		INSERT INTO hedge_events
			(primary_symbol, hedge_symbol, hedge_side, hedge_type, reason,
			 ratio, size, trigger_price, event)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Pool.Exec(ctx, query,
		h.PrimarySymbol, h.HedgeSymbol, h.HedgeSide, h.HedgeType, h.Reason,
		h.Ratio, h.Size, h.TriggerPrice, h.Event)
	if err != nil {
		return fmt.Errorf("failed to save hedge event: %w", err)
	}
	return nil
}

// GetHedgeEvents returns hedge events for a primary symbol, newest first
func (r *Repository) GetHedgeEvents(ctx context.Context, primarySymbol string, limit int) ([]HedgeEventRecord, error) {
	query := `
		SELECT id, primary_symbol, hedge_symbol, hedge_side, hedge_type, reason,
		       COALESCE(ratio, 0), COALESCE(size, 0), COALESCE(trigger_price, 0),
		       event, created_at
		FROM hedge_events
		WHERE ($1 = '' OR primary_symbol = $1)
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, primarySymbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query hedge events: %w", err)
	}
	defer rows.Close()

	var events []HedgeEventRecord
	for rows.Next() {
		var h HedgeEventRecord
		if err := rows.Scan(&h.ID, &h.PrimarySymbol, &h.HedgeSymbol, &h.HedgeSide,
			&h.HedgeType, &h.Reason, &h.Ratio, &h.Size, &h.TriggerPrice,
			&h.Event, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hedge event: %w", err)
		}
		events = append(events, h)
	}
	return events, rows.Err()
}
