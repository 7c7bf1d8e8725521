package reconcile

import "errors"

var (
	// ErrInvalidInput is a client-correctable request problem.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProviderUnavailable means a push or query did not get a usable
	// answer from the provider. It is never a terminal outcome by itself.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrProviderRejected means the provider answered and refused the push.
	ErrProviderRejected = errors.New("payment provider rejected request")
	ErrSessionNotFound  = errors.New("payment session not found")
	ErrDuplicateReceipt = errors.New("receipt code already recorded on another session")

	ErrAlreadyCredited  = errors.New("referral already credited for transaction")
	ErrReferrerNotFound = errors.New("referrer not found")

	ErrReceiptAlreadyUsed = errors.New("receipt already redeemed")
)
