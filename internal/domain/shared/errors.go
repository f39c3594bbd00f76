package shared

// DomainError is a coded error that the HTTP layer maps onto an API status.
// Wrapped copies match their sentinel through errors.Is.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewDomainError creates a DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is compares by code
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && e.Code == t.Code
}

var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidTransition   = NewDomainError("INVALID_STATE_TRANSITION", "Invalid state transition")

	// ErrUnsupportedMsgType rejects a change message of unknown type without
	// touching storage.
	ErrUnsupportedMsgType = NewDomainError("UNSUPPORTED_MSG_TYPE", "Unsupported msg type")

	// ErrLockUnavailable means the creation lock was not acquired before the
	// deadline. The message was not applied and must be redelivered.
	ErrLockUnavailable = NewDomainError("LOCK_UNAVAILABLE", "Creation lock could not be acquired")
)
