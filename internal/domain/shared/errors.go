package shared

import "fmt"

// Domain error codes shared by every aggregate. Aggregates add their own
// codes next to their sentinels.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeInvalidInput = "INVALID_INPUT"
	CodeValidation   = "VALIDATION_ERROR"
)

// DomainError is an error the caller can act on. Code is stable and machine
// readable; Message is safe to show to an API client.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is compares by code, so a DomainError built with a different message still
// matches the sentinel for its code under errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && e.Code == t.Code
}

// NewDomainError creates a DomainError.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Invalidf creates an INVALID_INPUT error with a formatted message.
func Invalidf(format string, args ...any) *DomainError {
	return NewDomainError(CodeInvalidInput, fmt.Sprintf(format, args...))
}

var (
	ErrNotFound     = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidInput = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrValidation   = NewDomainError(CodeValidation, "Validation failed")
)
