package provider

import (
	"strings"

	"github.com/vouh/Course-corner-sub000/internal/reconcile"
)

// Result codes seen on STK callbacks and on the query endpoint. The query
// endpoint reports an in-flight push through an error payload whose message
// reads like a failure; it is listed here as pending on purpose.
const (
	CodeSuccess           = "0"
	CodeInsufficientFunds = "1"
	CodeSubscriberLocked  = "1001"
	CodeTransactionExpiry = "1019"
	CodeSystemError       = "1025"
	CodeUserCancelled     = "1032"
	CodeUnreachable       = "1037"
	CodeWrongPIN          = "2001"
	CodeStillProcessing   = "4999"
	CodeQueryInProgress   = "500.001.1001"
	CodeRequestFailed     = "9999"
)

// Classify maps a provider result code to a canonical signal. Only the code
// is inspected; the description is carried along for logging. Codes not
// listed here come back as SignalUnknown and never move a session.
func Classify(code, description string) reconcile.Signal {
	code = strings.TrimSpace(code)
	sig := reconcile.Signal{Code: code, Description: description}

	switch code {
	case CodeSuccess:
		sig.Kind = reconcile.SignalSuccess
	case CodeUserCancelled:
		sig.Kind = reconcile.SignalUserCancelled
		sig.Reason = "user_cancelled"
	case CodeUnreachable, CodeTransactionExpiry:
		sig.Kind = reconcile.SignalTimeout
		sig.Reason = "timeout"
	case CodeInsufficientFunds:
		sig.Kind = reconcile.SignalFailure
		sig.Reason = "insufficient_funds"
	case CodeWrongPIN:
		sig.Kind = reconcile.SignalFailure
		sig.Reason = "wrong_pin"
	case CodeSubscriberLocked:
		sig.Kind = reconcile.SignalFailure
		sig.Reason = "subscriber_busy"
	case CodeSystemError, CodeRequestFailed:
		sig.Kind = reconcile.SignalFailure
		sig.Reason = "provider_error"
	case CodeStillProcessing, CodeQueryInProgress:
		sig.Kind = reconcile.SignalStillProcessing
	default:
		sig.Kind = reconcile.SignalUnknown
	}
	return sig
}
