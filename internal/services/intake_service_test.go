package services

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/provider"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
	"github.com/vouh/Course-corner-sub000/internal/repo"
)

func TestIntakeService_Initiate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.client.EXPECT().
		Push(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req provider.PushRequest) (*provider.PushResponse, error) {
			assert.Equal(t, "254712345678", req.Phone)
			assert.True(t, decimal.NewFromInt(100).Equal(req.Amount))
			return &provider.PushResponse{CheckoutRef: "ws_CO_1", CustomerMessage: "accepted"}, nil
		})

	res, err := h.intake.Initiate(ctx, InitiateRequest{
		Phone:        "0712 345 678",
		Amount:       decimal.NewFromInt(100),
		Category:     "course",
		ReferralCode: "REF1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, "ws_CO_1", res.CheckoutRef)

	tx := h.get(t, res.SessionID)
	assert.Equal(t, models.StatusAwaitingResult, tx.Status)
	assert.Equal(t, "ws_CO_1", tx.CheckoutRefValue())
	assert.Equal(t, "REF1", *tx.ReferralCode)

	id, ok := h.cache.SessionIDForCheckoutRef(ctx, "ws_CO_1")
	assert.True(t, ok)
	assert.Equal(t, res.SessionID, id)
}

func TestIntakeService_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		req  InitiateRequest
	}{
		{name: "bad phone", req: InitiateRequest{Phone: "12345", Amount: decimal.NewFromInt(10), Category: "c"}},
		{name: "landline", req: InitiateRequest{Phone: "0201234567", Amount: decimal.NewFromInt(10), Category: "c"}},
		{name: "zero amount", req: InitiateRequest{Phone: "0712345678", Amount: decimal.Zero, Category: "c"}},
		{name: "negative amount", req: InitiateRequest{Phone: "0712345678", Amount: decimal.NewFromInt(-5), Category: "c"}},
		{name: "fractional amount", req: InitiateRequest{Phone: "0712345678", Amount: decimal.RequireFromString("10.5"), Category: "c"}},
		{name: "blank category", req: InitiateRequest{Phone: "0712345678", Amount: decimal.NewFromInt(10), Category: "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.intake.Initiate(context.Background(), tt.req)
			assert.ErrorIs(t, err, reconcile.ErrInvalidInput)

			_, total, err := h.store.List(context.Background(), repo.TransactionFilters{Page: 1, PerPage: 10})
			require.NoError(t, err)
			assert.Zero(t, total, "nothing is stored for a rejected request")
		})
	}
}

func TestIntakeService_PushFailureClosesSession(t *testing.T) {
	tests := []struct {
		name    string
		pushErr error
		wantErr error
	}{
		{
			name:    "provider refused",
			pushErr: &provider.Error{StatusCode: 400, Code: "400.002.02", Message: "Invalid PhoneNumber"},
			wantErr: reconcile.ErrProviderRejected,
		},
		{
			name:    "provider unreachable",
			pushErr: errors.New("dial tcp: i/o timeout"),
			wantErr: reconcile.ErrProviderUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			h.client.EXPECT().Push(gomock.Any(), gomock.Any()).Return(nil, tt.pushErr)

			_, err := h.intake.Initiate(ctx, InitiateRequest{Phone: "254712345678", Amount: decimal.NewFromInt(100), Category: "course"})
			assert.ErrorIs(t, err, tt.wantErr)

			stored, total, err := h.store.List(ctx, repo.TransactionFilters{Page: 1, PerPage: 10})
			require.NoError(t, err)
			require.Equal(t, int64(1), total)
			assert.Equal(t, models.StatusFailed, stored[0].Status)
			assert.Equal(t, reconcile.ReasonProviderRejected, *stored[0].ResultReason)
			assert.Nil(t, stored[0].CheckoutRef)
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "0712345678", want: "254712345678"},
		{in: "0112345678", want: "254112345678"},
		{in: "+254712345678", want: "254712345678"},
		{in: "254712345678", want: "254712345678"},
		{in: "712345678", want: "254712345678"},
		{in: "0712-345-678", want: "254712345678"},
		{in: "0812345678", wantErr: true},
		{in: "25471234567", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, reconcile.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
