package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict: subscription already registered")
	ErrInvalidProduct    = errors.New("product id must not be empty")
	ErrInvalidEmail      = errors.New("email must be a valid address")
	ErrInvalidStock      = errors.New("stock values are required")
	ErrInvalidTransition = errors.New("queue item is not in a state that allows this transition")
	ErrInvalidStatus     = errors.New("unknown queue status")
	ErrUnauthorized      = errors.New("identity is not allowed to dispatch notifications")
	ErrDataInvalid       = errors.New("notification data is invalid")
	ErrProcessorBusy     = errors.New("queue processor is already running")
)

// IsRetryable reports whether a delivery failure can succeed on a later
// attempt. Authorization and data errors reproduce on every retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrDataInvalid),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrInvalidProduct):
		return false
	}
	return true
}
