package queue

import "errors"

var (
	// ErrValidation is the class of every rejected-input error. Match with
	// errors.Is; the concrete error is a *ValidationError.
	ErrValidation = errors.New("queue: invalid request")

	// ErrForbidden is returned when the caller is neither the runner nor an admin.
	// A start against someone else's running session also lands here.
	ErrForbidden = errors.New("only the queue runner or an admin can change the running queue")

	// ErrNotRunning is returned by operations that need a running session.
	ErrNotRunning = errors.New("no queue is currently running")

	// ErrSessionNotFound is returned by stores when the record to update is gone.
	ErrSessionNotFound = errors.New("queue: active session not found")
)

// ValidationError carries the human-readable reason a request was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Unwrap enables errors.Is checks against ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(reason string) error {
	return &ValidationError{Reason: reason}
}
