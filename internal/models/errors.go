package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the stores and the matching engine. Callers
// classify failures with errors.Is / errors.As.
var (
	// ErrInsufficientFunds means a debit would take a balance negative.
	// The balance is left unchanged. Not retryable without new funds.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound means a wallet, order or stats row that provisioning
	// should have created does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError marks malformed or out-of-range caller input. The message
// is safe to surface verbatim.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
