package provider

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vouh/Course-corner-sub000/internal/reconcile"
)

// Client is the payment provider as seen by the reconciliation services.
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mock_provider -source=client.go
type Client interface {
	Push(ctx context.Context, req PushRequest) (*PushResponse, error)
	Query(ctx context.Context, checkoutRef string) (*QueryResult, error)
}

type PushRequest struct {
	Phone       string
	Amount      decimal.Decimal
	Reference   string
	Description string
}

type PushResponse struct {
	CheckoutRef       string
	MerchantRequestID string
	CustomerMessage   string
}

type QueryResult struct {
	Code        string
	Description string
}

// Signal classifies the query result.
func (q QueryResult) Signal() reconcile.Signal {
	return Classify(q.Code, q.Description)
}

// Error is a well-formed refusal from the provider. It matches
// reconcile.ErrProviderRejected under errors.Is.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider rejected request: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return reconcile.ErrProviderRejected
}
