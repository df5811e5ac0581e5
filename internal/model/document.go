package model

import "time"

// Document ingestion statuses.
const (
	DocumentStatusPending   = "pending"
	DocumentStatusProcessed = "processed"
	DocumentStatusFailed    = "failed"
)

// Document is an uploaded source document. Text holds the extracted plain
// text (the processed artifact) and is immutable once Status is "processed".
type Document struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Filename   string    `gorm:"size:256;not null" json:"filename"`
	Format     string    `gorm:"size:16;not null" json:"format"`
	Text       string    `gorm:"type:longtext" json:"-"`
	Status     string    `gorm:"size:16;not null;index" json:"status"`
	FailReason string    `gorm:"size:512" json:"fail_reason,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
