package reference

import "errors"

// Sentinel errors for reference operations.
var (
	// ErrNilKey is returned when a nil key is wrapped.
	ErrNilKey = errors.New("reference: nil key")

	// ErrInvalidPolicy is returned for a Policy outside Weak, Soft and Phantom.
	ErrInvalidPolicy = errors.New("reference: invalid policy")

	// ErrUnknownSubscription is returned when waiting on a subscription the
	// channel does not know, or one that was unsubscribed while waiting.
	ErrUnknownSubscription = errors.New("reference: unknown subscription")
)
