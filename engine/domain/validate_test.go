package domain

import (
	"errors"
	"testing"
)

func TestValidateQuestion(t *testing.T) {
	tests := []struct {
		name    string
		q       Question
		wantErr error
	}{
		{"valid", Question{Text: "what causes the conflict?", DocumentIDs: []string{"d1"}}, nil},
		{"too short", Question{Text: "a", DocumentIDs: []string{"d1"}}, ErrQueryTooShort},
		{"whitespace only", Question{Text: "   ", DocumentIDs: []string{"d1"}}, ErrQueryTooShort},
		{"sql injection", Question{Text: "DROP TABLE users; SELECT * FROM chunks", DocumentIDs: []string{"d1"}}, ErrQueryInjection},
		{"template injection", Question{Text: "tell me about ${secret}", DocumentIDs: []string{"d1"}}, ErrQueryInjection},
		{"no documents", Question{Text: "a perfectly fine question", DocumentIDs: nil}, ErrNoDocuments},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuestion(tt.q)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChunk(t *testing.T) {
	ok := Chunk{ID: "c1", DocumentID: "d1", Text: "some substantive text", Embedding: []float32{1, 2, 3}}
	if err := ValidateChunk(ok, 3); err != nil {
		t.Fatalf("valid chunk rejected: %v", err)
	}

	empty := Chunk{ID: "c2", Text: "  ", Embedding: []float32{1}}
	if err := ValidateChunk(empty, 0); !errors.Is(err, ErrEmptyChunk) {
		t.Fatalf("want ErrEmptyChunk, got %v", err)
	}

	noEmb := Chunk{ID: "c3", Text: "text"}
	if err := ValidateChunk(noEmb, 3); !errors.Is(err, ErrMissingEmbedding) {
		t.Fatalf("want ErrMissingEmbedding, got %v", err)
	}

	badDim := Chunk{ID: "c4", Text: "text", Embedding: []float32{1, 2}}
	if err := ValidateChunk(badDim, 3); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("want ErrDimensionMismatch, got %v", err)
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	err := NewValidationError("text", "x", ErrQueryTooShort)
	if !errors.Is(err, ErrQueryTooShort) {
		t.Fatal("ValidationError should unwrap to sentinel")
	}
	if err.Error() == "" {
		t.Fatal("ValidationError should render a message")
	}
}
