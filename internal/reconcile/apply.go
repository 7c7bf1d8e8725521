package reconcile

import (
	"time"

	"github.com/vouh/Course-corner-sub000/internal/models"
)

// Apply computes the effect of sig on tx without touching storage. It returns
// tx unchanged and false when tx is already terminal or sig does not map to
// a terminal status.
func Apply(tx models.Transaction, sig Signal, now time.Time) (models.Transaction, bool) {
	if tx.Status != models.StatusAwaitingResult {
		return tx, false
	}
	dest, ok := sig.Destination()
	if !ok {
		return tx, false
	}

	reason := sig.reason()
	tx.Status = dest
	tx.ResultReason = &reason
	if dest == models.StatusCompleted && sig.ReceiptCode != "" {
		receipt := sig.ReceiptCode
		tx.ReceiptCode = &receipt
	}
	tx.UpdatedAt = nextUpdatedAt(tx.UpdatedAt, now)
	return tx, true
}

// nextUpdatedAt keeps updated_at strictly increasing even when the clock
// stalls or steps back. Microsecond granularity matches Postgres timestamptz.
func nextUpdatedAt(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

func transitionOf(tx models.Transaction) models.Transition {
	t := models.Transition{
		Status:      tx.Status,
		ReceiptCode: tx.ReceiptCode,
		UpdatedAt:   tx.UpdatedAt,
	}
	if tx.ResultReason != nil {
		t.ResultReason = *tx.ResultReason
	}
	return t
}
