package semantic

// SearchResult represents a single vector search hit.
type SearchResult struct {
	ID         string            `json:"id"`
	Score      float32           `json:"score"`
	Text       string            `json:"text"`
	DocumentID string            `json:"document_id"`
	PageNumber int               `json:"page_number"`
	// Origin tags the retrieval procedure that produced this hit
	// ("vector", "keyword", "adjacent", "early", "band", "balanced-fallback").
	Origin string            `json:"origin,omitempty"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// VectorRecord represents a single vector to store in Qdrant.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // text, document_id, page_number, chunk_index
}
