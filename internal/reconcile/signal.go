package reconcile

import "github.com/vouh/Course-corner-sub000/internal/models"

// SignalKind is the provider-agnostic outcome a writer reports to the engine.
type SignalKind string

const (
	SignalSuccess         SignalKind = "success"
	SignalUserCancelled   SignalKind = "user_cancelled"
	SignalTimeout         SignalKind = "timeout"
	SignalFailure         SignalKind = "failure"
	SignalStillProcessing SignalKind = "still_processing"
	SignalUnknown         SignalKind = "unknown"
)

const (
	ReasonProviderRejected    = "provider_rejected"
	ReasonConfirmationTimeout = "confirmation_timeout"
)

type Signal struct {
	Kind SignalKind
	// Reason is the canonical cause stored as the result reason, e.g.
	// insufficient_funds. Empty means the kind name is used.
	Reason string
	// ReceiptCode is only meaningful for SignalSuccess.
	ReceiptCode string
	// Code and Description are the raw provider values, kept for logs.
	Code        string
	Description string
}

// Source names the writer that produced a signal.
type Source string

const (
	SourceIntake   Source = "intake"
	SourceCallback Source = "callback"
	SourcePoll     Source = "poll"
	SourceSweep    Source = "sweep"
)

// Destination returns the terminal status a signal maps to. ok is false for
// signals that must not move a session: still-processing and unknown codes.
func (s Signal) Destination() (models.Status, bool) {
	switch s.Kind {
	case SignalSuccess:
		return models.StatusCompleted, true
	case SignalUserCancelled:
		return models.StatusCancelled, true
	case SignalTimeout:
		return models.StatusExpired, true
	case SignalFailure:
		return models.StatusFailed, true
	default:
		return "", false
	}
}

func (s Signal) reason() string {
	if s.Reason != "" {
		return s.Reason
	}
	if s.Kind == SignalFailure {
		return "failed"
	}
	return string(s.Kind)
}

func Success(receiptCode string) Signal {
	return Signal{Kind: SignalSuccess, ReceiptCode: receiptCode}
}

func Failure(reason string) Signal {
	return Signal{Kind: SignalFailure, Reason: reason}
}

func Expired(reason string) Signal {
	return Signal{Kind: SignalTimeout, Reason: reason}
}
