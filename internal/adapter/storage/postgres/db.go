package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"surplus-ledger/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// NewPool creates a PostgreSQL connection pool using pgx.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolCfg.ConnConfig.RuntimeParams["application_name"] = "surplus-ledger"
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("dbname", cfg.DBName).
		Int32("max_conns", cfg.MaxConns).
		Msg("PostgreSQL connection pool established")

	return pool, nil
}

// SchemaCheck reports PostgreSQL on GET /health. It fails when the server is
// unreachable and also when the ledger tables are missing, which catches a
// deploy that skipped migrations.
type SchemaCheck struct {
	pool    Pool
	timeout time.Duration
}

// NewSchemaCheck returns a health check bounded by timeout.
func NewSchemaCheck(pool Pool, timeout time.Duration) *SchemaCheck {
	return &SchemaCheck{pool: pool, timeout: timeout}
}

func (c *SchemaCheck) Name() string { return "postgres" }

func (c *SchemaCheck) Ping(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var migrated bool
	err := c.pool.QueryRow(ctx, `
		SELECT to_regclass('public.wallets') IS NOT NULL
		   AND to_regclass('public.wallet_transactions') IS NOT NULL
		   AND to_regclass('public.reservations') IS NOT NULL`,
	).Scan(&migrated)
	if err != nil {
		return fmt.Errorf("query schema: %w", err)
	}
	if !migrated {
		return errors.New("ledger tables missing, run migrations")
	}
	return nil
}
