package model

import "fmt"

// Chunk is a bounded span of a document's text, the unit of embedding and
// retrieval. Start and End are rune offsets into the parent document's
// extracted text. Chunks are transient: they live in the vector index as
// entries, not in the relational store.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Ordinal    int    `json:"ordinal"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Text       string `json:"text"`
}

// ChunkID derives the stable chunk identifier from its parent document and
// ordinal position.
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s:%d", documentID, ordinal)
}

// Length returns the chunk length in runes.
func (c Chunk) Length() int {
	return c.End - c.Start
}
