package model

// IngestJob is the queue payload scheduling a pending document for
// processing. The extracted text already lives on the Document row, so the
// job only needs to carry the identifier.
type IngestJob struct {
	DocumentID string `json:"document_id"`
}
