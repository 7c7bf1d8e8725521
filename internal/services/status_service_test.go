package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/provider"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
)

// Inside the callback budget the provider is never queried.
func TestStatusService_BeforeBudget(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "s-1", 30*time.Second, "ws_CO_1", "")

	view, err := h.status.Status(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingResult, view.Status)
	assert.Equal(t, StagePushAccepted, view.PendingStage)
}

func TestStatusService_QueriesAfterBudget(t *testing.T) {
	tests := []struct {
		name       string
		result     *provider.QueryResult
		queryErr   error
		wantStatus models.Status
		wantStage  string
	}{
		{
			name:       "success without receipt completes",
			result:     &provider.QueryResult{Code: "0", Description: "processed successfully"},
			wantStatus: models.StatusCompleted,
		},
		{
			name:       "cancel",
			result:     &provider.QueryResult{Code: "1032", Description: "cancelled"},
			wantStatus: models.StatusCancelled,
		},
		{
			name:       "still processing",
			result:     &provider.QueryResult{Code: "500.001.1001", Description: "The transaction is being processed"},
			wantStatus: models.StatusAwaitingResult,
			wantStage:  StageCallbackOverdue,
		},
		{
			name:       "provider down",
			queryErr:   reconcile.ErrProviderUnavailable,
			wantStatus: models.StatusAwaitingResult,
			wantStage:  StageCallbackOverdue,
		},
		{
			name:       "query timed out",
			queryErr:   context.DeadlineExceeded,
			wantStatus: models.StatusAwaitingResult,
			wantStage:  StageCallbackOverdue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.seed(t, "s-1", 3*time.Minute, "ws_CO_1", "")
			h.client.EXPECT().Query(gomock.Any(), "ws_CO_1").Return(tt.result, tt.queryErr)

			view, err := h.status.Status(context.Background(), "s-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, view.Status)
			assert.Equal(t, tt.wantStage, view.PendingStage)
			assert.Nil(t, view.ReceiptCode)
		})
	}
}

func TestStatusService_TerminalNotQueried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, "s-1", time.Hour, "ws_CO_1", "")
	_, _, err := h.engine.Apply(ctx, "s-1", reconcile.Failure("wrong_pin"), reconcile.SourceCallback)
	require.NoError(t, err)

	view, err := h.status.Status(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, view.Status)
	assert.Empty(t, view.PendingStage)
}

func TestStatusService_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.status.Status(context.Background(), "missing")
	assert.True(t, errors.Is(err, reconcile.ErrSessionNotFound))
}

// Snapshot reads the store only, even for an overdue session.
func TestStatusService_SnapshotNeverQueries(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "s-1", 10*time.Minute, "ws_CO_1", "")

	view, err := h.status.Snapshot(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingResult, view.Status)
	assert.Equal(t, StageCallbackOverdue, view.PendingStage)

	_, err = h.status.Snapshot(context.Background(), "missing")
	assert.ErrorIs(t, err, reconcile.ErrSessionNotFound)
}
