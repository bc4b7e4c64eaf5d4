// Package store is the persistence layer: signals, trades_journal,
// active_positions, paper_portfolio, setup_performance, learning_weights,
// trade_context, position_snapshots. Adapted from a single-tenant
// trades/orders schema to bot_version-stamped tables.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"cryptosignals/engine/internal/logging"
)

// DB wraps the PostgreSQL connection pool, tuned with MaxConns=25,
// MinConns=5, MaxConnLifetime=1h, MaxConnIdleTime=30m,
// HealthCheckPeriod=1m.
type DB struct {
	Pool *pgxpool.Pool
	log  *logging.Logger
}

// Config holds database connection parameters.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// New opens a connection pool and pings it once to fail fast on bad
// credentials/unreachable hosts.
func New(cfg Config, log *logging.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parsing dsn: %w", err)
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
		return nil, fmt.Errorf("store: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	log.Info("connected to postgres", "database", cfg.Database)
	return &DB{Pool: pool, log: log}, nil
}

func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.log.Info("store connection closed")
	}
}

// RunMigrations runs the full table set, idempotent via IF NOT EXISTS,
// as inline SQL strings run in sequence at startup, no migration
// framework.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.log.Info("running store migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id BIGSERIAL PRIMARY KEY,
			bot_version VARCHAR(8) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			mode VARCHAR(16) NOT NULL,
			direction VARCHAR(8) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'active',
			setup_type VARCHAR(32) NOT NULL,
			entry_price DECIMAL(20,8) NOT NULL,
			stop_loss DECIMAL(20,8),
			tp1 DECIMAL(20,8),
			tp2 DECIMAL(20,8),
			tp3 DECIMAL(20,8),
			final_score DECIMAL(10,4) NOT NULL,
			tradeability_score DECIMAL(10,4),
			direction_score DECIMAL(10,4),
			setup_score DECIMAL(10,4),
			sentiment_score DECIMAL(10,4),
			reason TEXT,
			hour_utc SMALLINT,
			mtf_confluence DECIMAL(10,4),
			created_at TIMESTAMP NOT NULL DEFAULT now(),
			updated_at TIMESTAMP NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_bot_symbol ON signals(bot_version, symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status)`,

		`CREATE TABLE IF NOT EXISTS trades_journal (
			id BIGSERIAL PRIMARY KEY,
			bot_version VARCHAR(8) NOT NULL,
			signal_id BIGINT,
			symbol VARCHAR(20) NOT NULL,
			direction VARCHAR(8) NOT NULL,
			entry_price DECIMAL(20,8) NOT NULL,
			exit_price DECIMAL(20,8),
			quantity DECIMAL(20,8) NOT NULL,
			pnl DECIMAL(20,8),
			pnl_pct DECIMAL(10,4),
			fee_paid DECIMAL(20,8),
			exit_reason VARCHAR(32),
			notes TEXT,
			duration_seconds INT,
			opened_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_journal_bot ON trades_journal(bot_version)`,

		`CREATE TABLE IF NOT EXISTS active_positions (
			id BIGSERIAL PRIMARY KEY,
			bot_version VARCHAR(8) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			direction VARCHAR(8) NOT NULL,
			state VARCHAR(24) NOT NULL DEFAULT 'active',
			entry_price DECIMAL(20,8) NOT NULL,
			original_quantity DECIMAL(20,8) NOT NULL,
			quantity DECIMAL(20,8) NOT NULL,
			margin_usd DECIMAL(20,8) NOT NULL DEFAULT 0,
			entry_atr DECIMAL(20,8) NOT NULL DEFAULT 0,
			stop_loss DECIMAL(20,8),
			tp1 DECIMAL(20,8),
			tp2 DECIMAL(20,8),
			tp3 DECIMAL(20,8),
			tp1_close_pct DECIMAL(6,2) NOT NULL DEFAULT 0,
			tp2_close_pct DECIMAL(6,2) NOT NULL DEFAULT 0,
			tp3_close_pct DECIMAL(6,2) NOT NULL DEFAULT 0,
			tp1_hit BOOLEAN NOT NULL DEFAULT false,
			tp2_hit BOOLEAN NOT NULL DEFAULT false,
			tp3_hit BOOLEAN NOT NULL DEFAULT false,
			breakeven_applied BOOLEAN NOT NULL DEFAULT false,
			trailing_active BOOLEAN NOT NULL DEFAULT false,
			peak_profit_usd DECIMAL(20,8) NOT NULL DEFAULT 0,
			max_drawdown_usd DECIMAL(20,8) NOT NULL DEFAULT 0,
			setup_type VARCHAR(32),
			mode VARCHAR(16),
			signal_id BIGINT,
			regime VARCHAR(16) NOT NULL DEFAULT '',
			score_range VARCHAR(16) NOT NULL DEFAULT '',
			hour_utc SMALLINT NOT NULL DEFAULT 0,
			mtf_confluence_bucket VARCHAR(16) NOT NULL DEFAULT '',
			opened_at TIMESTAMP NOT NULL DEFAULT now(),
			closed_at TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_active_positions_bot_state ON active_positions(bot_version, state)`,

		`CREATE TABLE IF NOT EXISTS paper_portfolio (
			bot_version VARCHAR(8) PRIMARY KEY,
			balance_usd DECIMAL(20,8) NOT NULL,
			reserved_margin_usd DECIMAL(20,8) NOT NULL DEFAULT 0,
			total_trades INT NOT NULL DEFAULT 0,
			wins INT NOT NULL DEFAULT 0,
			losses INT NOT NULL DEFAULT 0,
			total_pnl DECIMAL(20,8) NOT NULL DEFAULT 0,
			best_trade_usd DECIMAL(20,8) NOT NULL DEFAULT 0,
			worst_trade_usd DECIMAL(20,8) NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS setup_performance (
			id BIGSERIAL PRIMARY KEY,
			setup_type VARCHAR(32) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			mode VARCHAR(16) NOT NULL,
			wins INT NOT NULL DEFAULT 0,
			losses INT NOT NULL DEFAULT 0,
			total_pnl DECIMAL(20,8) NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT now(),
			UNIQUE(setup_type, symbol, mode)
		)`,

		`CREATE TABLE IF NOT EXISTS learning_weights (
			id BIGSERIAL PRIMARY KEY,
			dimension VARCHAR(32) NOT NULL,
			value VARCHAR(64) NOT NULL,
			bot_version VARCHAR(8) NOT NULL,
			sample_count INT NOT NULL DEFAULT 0,
			win_rate_7d DECIMAL(6,4) NOT NULL DEFAULT 0,
			win_rate_30d DECIMAL(6,4) NOT NULL DEFAULT 0,
			win_rate_all DECIMAL(6,4) NOT NULL DEFAULT 0,
			avg_pnl DECIMAL(20,8) NOT NULL DEFAULT 0,
			modifier DECIMAL(6,2) NOT NULL DEFAULT 0,
			confidence DECIMAL(4,3) NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT now(),
			UNIQUE(dimension, value, bot_version)
		)`,

		`CREATE TABLE IF NOT EXISTS trade_context (
			id BIGSERIAL PRIMARY KEY,
			bot_version VARCHAR(8) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			setup_type VARCHAR(32) NOT NULL,
			mode VARCHAR(16) NOT NULL,
			direction VARCHAR(8) NOT NULL,
			score_range VARCHAR(16) NOT NULL,
			hour_utc SMALLINT NOT NULL,
			mtf_confluence_bucket VARCHAR(16) NOT NULL,
			regime VARCHAR(16) NOT NULL,
			outcome VARCHAR(8) NOT NULL,
			pnl DECIMAL(20,8) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_context_bot_created ON trade_context(bot_version, created_at)`,

		`CREATE TABLE IF NOT EXISTS position_snapshots (
			id BIGSERIAL PRIMARY KEY,
			position_id BIGINT NOT NULL,
			bot_version VARCHAR(8) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			state VARCHAR(24) NOT NULL,
			unrealized_pnl DECIMAL(20,8) NOT NULL,
			current_price DECIMAL(20,8) NOT NULL,
			snapshot_at TIMESTAMP NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_position_snapshots_position ON position_snapshots(position_id)`,

		`CREATE TABLE IF NOT EXISTS tradeability_log (
			id BIGSERIAL PRIMARY KEY,
			bot_version VARCHAR(8) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			mode VARCHAR(16) NOT NULL,
			score DECIMAL(10,4) NOT NULL,
			reason TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tradeability_log_bot_symbol ON tradeability_log(bot_version, symbol)`,
	}

	for _, stmt := range migrations {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: migration failed: %w", err)
		}
	}
	db.log.Info("store migrations complete", "count", len(migrations))
	return nil
}
