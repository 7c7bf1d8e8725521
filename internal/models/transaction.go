package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusAwaitingResult Status = "awaiting_result"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
	StatusExpired        Status = "expired"
)

// Terminal reports whether no further transitions are allowed out of s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

func (s Status) Valid() bool {
	return s == StatusAwaitingResult || s.Terminal()
}

// Transaction is one STK push payment session.
type Transaction struct {
	SessionID     string          `json:"session_id"`
	CheckoutRef   *string         `json:"checkout_ref,omitempty"`
	ReceiptCode   *string         `json:"receipt_code,omitempty"`
	Phone         string          `json:"phone"`
	Amount        decimal.Decimal `json:"amount"`
	Category      string          `json:"category"`
	Status        Status          `json:"status"`
	ResultReason  *string         `json:"result_reason,omitempty"`
	ReferralCode  *string         `json:"referral_code,omitempty"`
	CreditApplied bool            `json:"credit_applied"`
	CreditSettled bool            `json:"credit_settled"`
	Used          bool            `json:"used"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Transition is the set of fields written together when a session leaves
// awaiting_result.
type Transition struct {
	Status       Status
	ResultReason string
	ReceiptCode  *string
	UpdatedAt    time.Time
}

func (t Transaction) HasReferral() bool {
	return t.ReferralCode != nil && *t.ReferralCode != ""
}

func (t Transaction) CheckoutRefValue() string {
	if t.CheckoutRef == nil {
		return ""
	}
	return *t.CheckoutRef
}
