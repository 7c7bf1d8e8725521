package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// EnsureOperator creates the configured operator account if it is missing.
// An existing account keeps its password.
func EnsureOperator(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	exists, err := userExists(ctx, pool, timeout, username)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash operator password: %w", err)
	}

	ctxInsert, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err = pool.Exec(ctxInsert, `
		INSERT INTO users (username, password_hash, role)
		VALUES ($1, $2, 'admin')
		ON CONFLICT (username) DO NOTHING
	`, username, string(hash))
	if err != nil {
		return fmt.Errorf("insert operator %s: %w", username, err)
	}

	return nil
}

func userExists(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration, username string) (bool, error) {
	ctxCheck, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	row := pool.QueryRow(ctxCheck, "SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)", username)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}
