package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Injection patterns: SQL and template fragments that should never appear in a user query.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|EXEC|UNION)\b.*\b(TABLE|FROM|INTO|SELECT|SET)\b`),
	regexp.MustCompile(`(?i)(--|;)\s*(DROP|DELETE|SELECT)`),
	regexp.MustCompile(`(?i)\$\{.*\}`),            // template injection
	regexp.MustCompile(`(?i)\{\s*"\$[a-z]+"\s*:`), // NoSQL operator injection
}

const minQueryLength = 3

// ValidateQuestion validates a user question before it enters the retrieval path.
func ValidateQuestion(q Question) error {
	text := strings.TrimSpace(q.Text)

	if utf8.RuneCountInString(text) < minQueryLength {
		return NewValidationError("text", text, ErrQueryTooShort)
	}

	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewValidationError("text", text, ErrQueryInjection)
		}
	}

	if len(q.DocumentIDs) == 0 {
		return NewValidationError("document_ids", "", ErrNoDocuments)
	}
	return nil
}

// ValidateChunk enforces the chunk invariants before storage: non-empty text
// and an embedding of the expected dimension. Chunks that fail are discarded
// by the pipeline, never persisted with a degenerate vector.
func ValidateChunk(c Chunk, dim int) error {
	if strings.TrimSpace(c.Text) == "" {
		return NewValidationError("text", "", ErrEmptyChunk)
	}
	if len(c.Embedding) == 0 {
		return NewValidationError("embedding", c.ID, ErrMissingEmbedding)
	}
	if dim > 0 && len(c.Embedding) != dim {
		return NewValidationError("embedding", c.ID, ErrDimensionMismatch)
	}
	return nil
}
