package services

import (
	"errors"
	"fmt"
)

// Error taxonomy for lifecycle/ledger operations. Callers map these to HTTP
// responses; public token-gated endpoints must report ErrNotFound identically
// for absent record, wrong token and wrong state.
var (
	// ErrNotFound covers absent records and invalid tokens alike.
	ErrNotFound = errors.New("not_found")

	// ErrExpired is reported distinctly so the client can display
	// "this quote has expired" rather than "link invalid".
	ErrExpired = errors.New("expired")

	// ErrAlreadySettled: token structurally valid but the guarded flag has
	// already flipped (quote already approved/rejected, fee already paid).
	ErrAlreadySettled = errors.New("already_settled")

	// ErrConflict: an authenticated operation illegal for the current status.
	ErrConflict = errors.New("conflict")
)

// ValidationError reports missing/invalid request fields. Always raised before
// any state mutation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Fields)
}

func validationErr(field, code string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: code}}
}

// AsValidation unwraps a *ValidationError if err is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
