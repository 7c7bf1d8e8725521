package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vouh/Course-corner-sub000/internal/cache"
	"github.com/vouh/Course-corner-sub000/internal/models"
	mock_provider "github.com/vouh/Course-corner-sub000/internal/provider/mocks"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
	"github.com/vouh/Course-corner-sub000/internal/repo"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var commission = decimal.NewFromInt(50)

type harness struct {
	client    *mock_provider.MockClient
	store     *repo.MemoryTransactionRepo
	cache     *cache.LRU
	referrers *repo.MemoryReferrerRepo
	events    *repo.MemoryCallbackEventRepo

	engine     *reconcile.Engine
	dispatcher *ReferralDispatcher
	intake     *IntakeService
	callbacks  *CallbackService
	status     *StatusService
	sweeper    *Sweeper
	redemption *RedemptionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)

	h := &harness{
		client:    mock_provider.NewMockClient(ctrl),
		store:     repo.NewMemoryTransactionRepo(),
		cache:     cache.NewLRU(100, time.Hour),
		referrers: repo.NewMemoryReferrerRepo("REF1"),
		events:    repo.NewMemoryCallbackEventRepo(),
	}

	h.engine = reconcile.NewEngine(h.store, discard, reconcile.WithObserver(cache.Refresher{Cache: h.cache}))
	h.dispatcher = NewReferralDispatcher(h.store, h.referrers, commission, discard)
	h.engine.SetCreditDispatcher(h.dispatcher)

	h.intake = NewIntakeService(h.store, h.cache, h.client, h.engine, discard, time.Second)
	h.callbacks = NewCallbackService(h.store, h.cache, h.engine, h.events, discard)
	h.status = NewStatusService(h.store, h.cache, h.client, h.engine, discard, 2*time.Minute, time.Second)
	h.sweeper = NewSweeper(h.store, h.client, h.engine, discard, SweepConfig{
		MinAge:          2 * time.Minute,
		ExpireAfter:     2 * time.Hour,
		QueryInterval:   time.Millisecond,
		BatchSize:       2,
		ProviderTimeout: time.Second,
	})
	h.redemption = NewRedemptionService(h.store, discard)
	return h
}

// seed stores an awaiting session created age ago.
func (h *harness) seed(t *testing.T, id string, age time.Duration, ref, referral string) *models.Transaction {
	t.Helper()
	created := time.Now().UTC().Add(-age).Truncate(time.Microsecond)
	tx := &models.Transaction{
		SessionID: id,
		Phone:     "254712345678",
		Amount:    decimal.NewFromInt(100),
		Category:  "course",
		Status:    models.StatusAwaitingResult,
		CreatedAt: created,
		UpdatedAt: created,
	}
	if ref != "" {
		tx.CheckoutRef = &ref
	}
	if referral != "" {
		tx.ReferralCode = &referral
	}
	require.NoError(t, h.store.Create(context.Background(), tx))
	return tx
}

func (h *harness) get(t *testing.T, id string) *models.Transaction {
	t.Helper()
	tx, err := h.store.GetBySessionID(context.Background(), id)
	require.NoError(t, err)
	return tx
}

func (h *harness) balance(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	ref, err := h.referrers.GetByCode(context.Background(), code)
	require.NoError(t, err)
	return ref.Balance
}

func stkCallback(ref string, code int, desc, receipt string) []byte {
	if receipt == "" {
		return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":%q,"ResultCode":%d,"ResultDesc":%q}}}`, ref, code, desc))
	}
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":%q,"ResultCode":%d,"ResultDesc":%q,
		"CallbackMetadata":{"Item":[{"Name":"Amount","Value":100},{"Name":"MpesaReceiptNumber","Value":%q},{"Name":"PhoneNumber","Value":254712345678}]}}}}`,
		ref, code, desc, receipt))
}
