package models

import "fmt"

// ErrorKind classifies a processing failure. Every failure crossing the
// router boundary is one of these.
type ErrorKind string

const (
	ErrValidation ErrorKind = "validation_error"
	ErrSecurity   ErrorKind = "security_error"
	ErrNoProvider ErrorKind = "no_provider_available"
	ErrProvider   ErrorKind = "provider_error"
	ErrInternal   ErrorKind = "internal_error"
)

// BrainError is a typed failure raised inside the engine, most often by a
// provider. It never escapes the router; Process converts it into a Response.
type BrainError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *BrainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *BrainError) Unwrap() error {
	return e.Err
}

// NewBrainError builds a typed failure.
func NewBrainError(kind ErrorKind, message string, err error) *BrainError {
	return &BrainError{Kind: kind, Message: message, Err: err}
}
