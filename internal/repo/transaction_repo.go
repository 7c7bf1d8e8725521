package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
	"github.com/vouh/Course-corner-sub000/internal/utils"
)

const pgErrUniqueViolation = "23505"

const transactionColumns = `
	session_id, checkout_ref, receipt_code, phone, amount::text, category,
	status, result_reason, referral_code, credit_applied, credit_settled, used, created_at, updated_at`

type TransactionRepo struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// AwaitingCursor is the paging key of ListAwaiting. The zero value starts
// from the oldest session.
type AwaitingCursor struct {
	CreatedAt time.Time
	SessionID string
}

// CursorOf returns the paging key of tx.
func CursorOf(tx models.Transaction) AwaitingCursor {
	return AwaitingCursor{CreatedAt: tx.CreatedAt, SessionID: tx.SessionID}
}

// After reports whether tx sorts strictly after the cursor.
func (c AwaitingCursor) After(tx models.Transaction) bool {
	if !tx.CreatedAt.Equal(c.CreatedAt) {
		return tx.CreatedAt.After(c.CreatedAt)
	}
	return tx.SessionID > c.SessionID
}

type TransactionFilters struct {
	Status  string
	Phone   string
	Page    int
	PerPage int
}

func NewTransactionRepo(pool *pgxpool.Pool, timeout time.Duration) *TransactionRepo {
	return &TransactionRepo{pool: pool, timeout: timeout}
}

func (r *TransactionRepo) Create(ctx context.Context, tx *models.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO payment_transactions (
			session_id, checkout_ref, receipt_code, phone, amount, category,
			status, result_reason, referral_code, credit_applied, credit_settled, used, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5::numeric,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		tx.SessionID,
		tx.CheckoutRef,
		tx.ReceiptCode,
		tx.Phone,
		tx.Amount.String(),
		tx.Category,
		string(tx.Status),
		tx.ResultReason,
		tx.ReferralCode,
		tx.CreditApplied,
		tx.CreditSettled,
		tx.Used,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Transaction, error) {
	return r.getOne(ctx, "get transaction by session", "session_id = $1", sessionID)
}

func (r *TransactionRepo) GetByCheckoutRef(ctx context.Context, checkoutRef string) (*models.Transaction, error) {
	return r.getOne(ctx, "get transaction by checkout ref", "checkout_ref = $1", checkoutRef)
}

// GetByReceiptCode finds a session by its provider receipt. When phone is
// given the lookup is scoped to that payer so a code cannot be used from
// another account.
func (r *TransactionRepo) GetByReceiptCode(ctx context.Context, receiptCode string, phone *string) (*models.Transaction, error) {
	if phone != nil {
		return r.getOne(ctx, "get transaction by receipt", "receipt_code = $1 AND phone = $2", receiptCode, *phone)
	}
	return r.getOne(ctx, "get transaction by receipt", "receipt_code = $1", receiptCode)
}

func (r *TransactionRepo) getOne(ctx context.Context, op, where string, args ...any) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, "SELECT "+transactionColumns+" FROM payment_transactions WHERE "+where, args...)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, reconcile.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tx, nil
}

// ConditionalUpdate writes a transition only if the row still has the
// expected status. The check and the write are one statement.
func (r *TransactionRepo) ConditionalUpdate(ctx context.Context, sessionID string, expected models.Status, t models.Transition) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd, err := r.pool.Exec(ctx, `
		UPDATE payment_transactions
		SET status = $3,
			result_reason = $4,
			receipt_code = COALESCE(receipt_code, $5),
			updated_at = GREATEST($6, updated_at + INTERVAL '1 microsecond')
		WHERE session_id = $1 AND status = $2
	`, sessionID, string(expected), string(t.Status), t.ResultReason, t.ReceiptCode, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "receipt_code") {
			return false, fmt.Errorf("conditional update: %w", reconcile.ErrDuplicateReceipt)
		}
		return false, fmt.Errorf("conditional update: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *TransactionRepo) SetCheckoutRef(ctx context.Context, sessionID, checkoutRef string) (bool, error) {
	return r.flip(ctx, "set checkout ref", `
		UPDATE payment_transactions
		SET checkout_ref = $2, updated_at = GREATEST(NOW(), updated_at + INTERVAL '1 microsecond')
		WHERE session_id = $1 AND checkout_ref IS NULL
	`, sessionID, checkoutRef)
}

// MarkCreditApplied latches credit_applied. Only a completed session with the
// latch still open is updated, so at most one caller ever gets true.
func (r *TransactionRepo) MarkCreditApplied(ctx context.Context, sessionID string) (bool, error) {
	return r.flip(ctx, "mark credit applied", `
		UPDATE payment_transactions
		SET credit_applied = TRUE, updated_at = GREATEST(NOW(), updated_at + INTERVAL '1 microsecond')
		WHERE session_id = $1 AND status = 'completed' AND credit_applied = FALSE
	`, sessionID)
}

// MarkCreditSettled records that the referral sink has a final answer for the
// session, so the pending-credit pass stops redelivering it.
func (r *TransactionRepo) MarkCreditSettled(ctx context.Context, sessionID string) (bool, error) {
	return r.flip(ctx, "mark credit settled", `
		UPDATE payment_transactions
		SET credit_settled = TRUE, updated_at = GREATEST(NOW(), updated_at + INTERVAL '1 microsecond')
		WHERE session_id = $1 AND credit_applied = TRUE AND credit_settled = FALSE
	`, sessionID)
}

func (r *TransactionRepo) MarkUsed(ctx context.Context, sessionID string) (bool, error) {
	return r.flip(ctx, "mark receipt used", `
		UPDATE payment_transactions
		SET used = TRUE, updated_at = GREATEST(NOW(), updated_at + INTERVAL '1 microsecond')
		WHERE session_id = $1 AND status = 'completed' AND used = FALSE
	`, sessionID)
}

func (r *TransactionRepo) flip(ctx context.Context, op, query string, args ...any) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err, "checkout_ref") {
			return false, fmt.Errorf("%s: checkout ref already assigned: %w", op, reconcile.ErrInvalidInput)
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return cmd.RowsAffected() == 1, nil
}

// ListAwaiting returns non-terminal sessions created before before whose
// (created_at, session_id) key sorts after the cursor, in key order. Pass the
// key of the last row seen to get the next page.
func (r *TransactionRepo) ListAwaiting(ctx context.Context, after AwaitingCursor, before time.Time, limit int) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM payment_transactions
		WHERE status = 'awaiting_result'
			AND (created_at, session_id) > ($1, $2)
			AND created_at < $3
		ORDER BY created_at ASC, session_id ASC
		LIMIT $4
	`, after.CreatedAt, after.SessionID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list awaiting transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// ListCreditPending returns completed sessions whose referral latch was won
// but whose credit was never settled with the sink, least recently touched
// first.
func (r *TransactionRepo) ListCreditPending(ctx context.Context, limit int) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM payment_transactions
		WHERE credit_applied = TRUE AND credit_settled = FALSE
		ORDER BY updated_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list credit pending transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (r *TransactionRepo) List(ctx context.Context, filters TransactionFilters) ([]models.Transaction, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	whereSQL, args := buildTransactionFilters(filters)

	_, limit := utils.NormalizePage(filters.Page, filters.PerPage)
	offset := utils.Offset(filters.Page, filters.PerPage)

	query := fmt.Sprintf(`
		SELECT %s
		FROM payment_transactions
		%s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d
	`, transactionColumns, whereSQL, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	results, err := collectTransactions(rows)
	rows.Close()
	if err != nil {
		return nil, 0, err
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM payment_transactions %s`, whereSQL)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	return results, total, nil
}

func buildTransactionFilters(filters TransactionFilters) (string, []any) {
	clauses := []string{"WHERE 1=1"}
	args := []any{}
	index := 1

	if filters.Status != "" {
		clauses = append(clauses, fmt.Sprintf("AND status = $%d", index))
		args = append(args, filters.Status)
		index++
	}

	if filters.Phone != "" {
		clauses = append(clauses, fmt.Sprintf("AND phone = $%d", index))
		args = append(args, filters.Phone)
		index++
	}

	return strings.Join(clauses, "\n"), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx     models.Transaction
		amount string
		status string
	)
	if err := row.Scan(
		&tx.SessionID,
		&tx.CheckoutRef,
		&tx.ReceiptCode,
		&tx.Phone,
		&amount,
		&tx.Category,
		&status,
		&tx.ResultReason,
		&tx.ReferralCode,
		&tx.CreditApplied,
		&tx.CreditSettled,
		&tx.Used,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	tx.Amount = parsed
	tx.Status = models.Status(status)
	return &tx, nil
}

func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	var results []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		results = append(results, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return results, nil
}

func isUniqueViolation(err error, column string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgErrUniqueViolation {
		return false
	}
	return column == "" || strings.Contains(pgErr.ConstraintName, column)
}
