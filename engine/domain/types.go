// Package domain defines core domain types, constants, and validation for the
// Docent engine pipeline. It acts as the validation gate at pipeline entry points.
package domain

// Chunk is a bounded span of document text stored with its vector embedding
// and page provenance. Chunks are immutable once embedded; re-embedding a
// document deletes and recreates its chunks.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	PageNumber int               `json:"page_number"`
	Text       string            `json:"text"`
	Embedding  []float32         `json:"embedding,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// DocumentInfo is the engine-side view of an externally owned document.
// Language is a BCP-47-ish tag ("en", "sr") used to select correction and
// retrieval behaviour; Pages is the page count used for structural sampling.
type DocumentInfo struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Language string `json:"language"`
	Pages    int    `json:"pages"`
}

// Question represents a user question against a set of selected documents.
type Question struct {
	Text        string   `json:"text"`
	DocumentIDs []string `json:"document_ids"`
}
