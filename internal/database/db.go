package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sniper-trading-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger := logging.Default().WithComponent("database")
	logger.Info("Connected to PostgreSQL", "database", cfg.Database)

	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info("Running database migrations")

	migrations := []string{
		// Signals recorded at evaluation time
		`CREATE TABLE IF NOT EXISTS signals (
			id SERIAL PRIMARY KEY,
			strategy_name VARCHAR(100) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			tier VARCHAR(40) NOT NULL,
			side VARCHAR(4) NOT NULL,
			score DECIMAL(6, 2),
			entry_price DECIMAL(20, 8) NOT NULL,
			stop_loss DECIMAL(20, 8),
			executed BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals(created_at)`,

		// Closed positions with realized outcome
		`CREATE TABLE IF NOT EXISTS closed_positions (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(4) NOT NULL,
			size DECIMAL(20, 8) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_price DECIMAL(20, 8),
			leverage INTEGER,
			realized_pnl DECIMAL(20, 8),
			strategy_name VARCHAR(100),
			exit_reason VARCHAR(60),
			exchange VARCHAR(20),
			opened_at TIMESTAMP,
			closed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_positions_symbol ON closed_positions(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_positions_closed_at ON closed_positions(closed_at)`,

		// Signal performance: append-only outcome records
		`CREATE TABLE IF NOT EXISTS signal_performance (
			id SERIAL PRIMARY KEY,
			signal_id INTEGER REFERENCES signals(id) ON DELETE SET NULL,
			symbol VARCHAR(20) NOT NULL,
			outcome VARCHAR(10) NOT NULL,
			technical_score DECIMAL(6, 2),
			sentiment_score DECIMAL(6, 2),
			ai_score DECIMAL(6, 2),
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_performance_symbol ON signal_performance(symbol)`,

		// Hedge lifecycle events
		`CREATE TABLE IF NOT EXISTS hedge_events (
			id SERIAL PRIMARY KEY,
			primary_symbol VARCHAR(20) NOT NULL,
			hedge_symbol VARCHAR(20) NOT NULL,
			hedge_side VARCHAR(4) NOT NULL,
			hedge_type VARCHAR(30) NOT NULL,
			reason VARCHAR(40) NOT NULL,
			ratio DECIMAL(6, 4),
			size DECIMAL(20, 8),
			trigger_price DECIMAL(20, 8),
			event VARCHAR(10) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hedge_events_primary ON hedge_events(primary_symbol)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info("Database migrations completed")
	return nil
}
