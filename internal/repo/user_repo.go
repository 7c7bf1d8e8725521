package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vouh/Course-corner-sub000/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepo struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewUserRepo(pool *pgxpool.Pool, timeout time.Duration) *UserRepo {
	return &UserRepo{pool: pool, timeout: timeout}
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		SELECT id, username, role, password_hash, created_at, updated_at
		FROM users
		WHERE username = $1
	`, username)

	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Role,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return &user, nil
}

// MemoryUserRepo holds operator accounts when no database is configured.
type MemoryUserRepo struct {
	users map[string]models.User
}

func NewMemoryUserRepo(users ...models.User) *MemoryUserRepo {
	r := &MemoryUserRepo{users: make(map[string]models.User)}
	for _, u := range users {
		r.users[u.Username] = u
	}
	return r
}

func (r *MemoryUserRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	u, ok := r.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}
