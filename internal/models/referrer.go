package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Referrer struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Code      string          `gorm:"column:code;uniqueIndex;not null" json:"code"`
	Name      string          `gorm:"column:name" json:"name"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(14,2);not null;default:0" json:"balance"`
	CreatedAt time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

// ReferralCredit is the ledger row proving a commission was paid for one
// transaction. The unique index on TransactionID is what makes crediting
// idempotent.
type ReferralCredit struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	TransactionID string          `gorm:"column:transaction_id;uniqueIndex;not null" json:"transaction_id"`
	ReferrerID    uint            `gorm:"column:referrer_id;index;not null" json:"referrer_id"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"created_at"`
}
