package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vouh/Course-corner-sub000/internal/models"
)

func awaiting(at time.Time) models.Transaction {
	return models.Transaction{
		SessionID: "s-1",
		Status:    models.StatusAwaitingResult,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestApply_Transitions(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		signal      Signal
		wantStatus  models.Status
		wantReason  string
		wantReceipt *string
		wantApplied bool
	}{
		{
			name:        "success captures receipt",
			signal:      Success("QFT12345"),
			wantStatus:  models.StatusCompleted,
			wantReason:  "success",
			wantReceipt: strPtr("QFT12345"),
			wantApplied: true,
		},
		{
			name:        "success without receipt still completes",
			signal:      Success(""),
			wantStatus:  models.StatusCompleted,
			wantReason:  "success",
			wantApplied: true,
		},
		{
			name:        "user cancelled",
			signal:      Signal{Kind: SignalUserCancelled},
			wantStatus:  models.StatusCancelled,
			wantReason:  "user_cancelled",
			wantApplied: true,
		},
		{
			name:        "timeout expires",
			signal:      Expired(ReasonConfirmationTimeout),
			wantStatus:  models.StatusExpired,
			wantReason:  ReasonConfirmationTimeout,
			wantApplied: true,
		},
		{
			name:        "failure keeps reason",
			signal:      Failure("insufficient_funds"),
			wantStatus:  models.StatusFailed,
			wantReason:  "insufficient_funds",
			wantApplied: true,
		},
		{
			name:        "failure without reason",
			signal:      Signal{Kind: SignalFailure},
			wantStatus:  models.StatusFailed,
			wantReason:  "failed",
			wantApplied: true,
		},
		{
			name:       "still processing does nothing",
			signal:     Signal{Kind: SignalStillProcessing},
			wantStatus: models.StatusAwaitingResult,
		},
		{
			name:       "unknown does nothing",
			signal:     Signal{Kind: SignalUnknown, Code: "17"},
			wantStatus: models.StatusAwaitingResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := awaiting(base)
			got, applied := Apply(tx, tt.signal, base.Add(time.Second))

			assert.Equal(t, tt.wantApplied, applied)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantReceipt, got.ReceiptCode)
			if !tt.wantApplied {
				assert.Equal(t, tx, got)
				return
			}
			if assert.NotNil(t, got.ResultReason) {
				assert.Equal(t, tt.wantReason, *got.ResultReason)
			}
			assert.True(t, got.UpdatedAt.After(tx.UpdatedAt))
		})
	}
}

func TestApply_TerminalIsFinal(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	signals := []Signal{
		Success("QFT1"),
		{Kind: SignalUserCancelled},
		Expired("timeout"),
		Failure("wrong_pin"),
		{Kind: SignalStillProcessing},
		{Kind: SignalUnknown},
	}

	for _, first := range signals {
		for _, second := range signals {
			tx, applied := Apply(awaiting(base), first, base.Add(time.Second))
			if !applied {
				continue
			}
			again, applied := Apply(tx, second, base.Add(2*time.Second))
			assert.False(t, applied, "%s then %s", first.Kind, second.Kind)
			assert.Equal(t, tx, again, "%s then %s", first.Kind, second.Kind)
		}
	}
}

func TestApply_UpdatedAtMonotonic(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tx := awaiting(base)

	// Clock behind the last write.
	got, applied := Apply(tx, Failure("x"), base.Add(-time.Hour))
	assert.True(t, applied)
	assert.True(t, got.UpdatedAt.After(tx.UpdatedAt))

	// Clock exactly at the last write.
	got, _ = Apply(tx, Failure("x"), base)
	assert.Equal(t, base.Add(time.Microsecond), got.UpdatedAt)
}

func strPtr(s string) *string { return &s }
