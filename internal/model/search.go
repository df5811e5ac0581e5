package model

// SearchResult is one retrieved chunk with its normalized similarity score
// in [0,1]. Produced per query, never persisted.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Ordinal    int     `json:"ordinal"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}
