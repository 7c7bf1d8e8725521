package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
)

type ReferrerRepo struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewReferrerRepo(db *gorm.DB, timeout time.Duration) *ReferrerRepo {
	return &ReferrerRepo{db: db, timeout: timeout}
}

// CreditReferrer adds amount to the referrer's balance once per transaction.
// The ledger insert and the balance increment commit together; a second call
// for the same transaction finds the ledger row and returns ErrAlreadyCredited.
func (r *ReferrerRepo) CreditReferrer(ctx context.Context, code string, amount decimal.Decimal, transactionID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var referrer models.Referrer
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", code).
			First(&referrer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("credit referrer %s: %w", code, reconcile.ErrReferrerNotFound)
			}
			return fmt.Errorf("load referrer %s: %w", code, err)
		}

		credit := models.ReferralCredit{
			TransactionID: transactionID,
			ReferrerID:    referrer.ID,
			Amount:        amount,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).Create(&credit)
		if res.Error != nil {
			return fmt.Errorf("insert referral credit: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("credit referrer %s: %w", code, reconcile.ErrAlreadyCredited)
		}

		if err := tx.Model(&referrer).
			UpdateColumn("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
			return fmt.Errorf("increment referrer balance: %w", err)
		}
		return nil
	})
}

func (r *ReferrerRepo) GetByCode(ctx context.Context, code string) (*models.Referrer, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var referrer models.Referrer
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&referrer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("get referrer %s: %w", code, reconcile.ErrReferrerNotFound)
		}
		return nil, fmt.Errorf("get referrer %s: %w", code, err)
	}
	return &referrer, nil
}

// EnsureReferrers creates a zero-balance referrer for each code not yet known.
func (r *ReferrerRepo) EnsureReferrers(ctx context.Context, codes []string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	for _, code := range codes {
		referrer := models.Referrer{Code: code, Name: code}
		if err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
			Create(&referrer).Error; err != nil {
			return fmt.Errorf("ensure referrer %s: %w", code, err)
		}
	}
	return nil
}
