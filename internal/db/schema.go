package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS payment_transactions (
		session_id     TEXT PRIMARY KEY,
		checkout_ref   TEXT UNIQUE,
		receipt_code   TEXT UNIQUE,
		phone          TEXT NOT NULL,
		amount         NUMERIC(12,2) NOT NULL CHECK (amount > 0),
		category       TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'awaiting_result'
			CHECK (status IN ('awaiting_result','completed','failed','cancelled','expired')),
		result_reason  TEXT,
		referral_code  TEXT,
		credit_applied BOOLEAN NOT NULL DEFAULT FALSE,
		credit_settled BOOLEAN NOT NULL DEFAULT FALSE,
		used           BOOLEAN NOT NULL DEFAULT FALSE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (NOT credit_applied OR status = 'completed'),
		CHECK (receipt_code IS NULL OR status = 'completed')
	)`,
	`ALTER TABLE payment_transactions
		ADD COLUMN IF NOT EXISTS credit_settled BOOLEAN NOT NULL DEFAULT FALSE`,
	`CREATE INDEX IF NOT EXISTS idx_payment_transactions_awaiting_key
		ON payment_transactions (created_at, session_id) WHERE status = 'awaiting_result'`,
	`CREATE INDEX IF NOT EXISTS idx_payment_transactions_credit_pending
		ON payment_transactions (updated_at) WHERE credit_applied AND NOT credit_settled`,
	`CREATE INDEX IF NOT EXISTS idx_payment_transactions_phone ON payment_transactions (phone)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		username      TEXT NOT NULL UNIQUE,
		role          TEXT NOT NULL DEFAULT 'operator',
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates the tables owned by the pgx repositories. The gorm
// owned tables are migrated by GormDB.Migrate.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
