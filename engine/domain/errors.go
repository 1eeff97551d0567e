package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrInvalidQuery       = errors.New("invalid query")
	ErrQueryTooShort      = errors.New("query too short")
	ErrQueryInjection     = errors.New("query contains suspicious content")
	ErrNoDocuments        = errors.New("no documents selected")
	ErrEmptyChunk         = errors.New("chunk has empty text")
	ErrMissingEmbedding   = errors.New("chunk has no embedding")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrDocumentNotFound   = errors.New("document not found")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
