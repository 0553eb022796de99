package balance

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresLookup reads wallet balances from the ledger database through a
// pgx connection pool.
type PostgresLookup struct {
	pool *pgxpool.Pool
}

// NewPostgresLookup opens a pool against connString and verifies
// connectivity with a ping before returning.
func NewPostgresLookup(ctx context.Context, connString string) (*PostgresLookup, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse balance database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create balance connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping balance database: %w", err)
	}

	return &PostgresLookup{pool: pool}, nil
}

// Close releases the connection pool.
func (p *PostgresLookup) Close() {
	p.pool.Close()
}

// GetBalance implements Lookup. The balance column is NUMERIC; casting to
// text and parsing into a decimal keeps the value exact end to end.
func (p *PostgresLookup) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var raw string
	err := p.pool.QueryRow(ctx, `
		SELECT balance::text
		FROM wallets
		WHERE user_id = $1
	`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}

	b, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	return b, nil
}
