package repository

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"gorm.io/gorm"

	"docuchat/internal/model"
)

const maxFailReason = 512

// truncateReason caps the stored failure reason at the column size without
// cutting a multi-byte rune in half.
func truncateReason(reason string) string {
	if len(reason) <= maxFailReason {
		return reason
	}
	cut := maxFailReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

// GetByID returns nil without error when the document does not exist.
func (r *DocumentRepository) GetByID(id string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) List() ([]model.Document, error) {
	var docs []model.Document
	if err := r.db.Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) MarkProcessed(id string, chunkCount int) error {
	updates := map[string]interface{}{
		"status":      model.DocumentStatusProcessed,
		"chunk_count": chunkCount,
		"fail_reason": "",
	}
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("mark document processed failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) MarkFailed(id string, reason string) error {
	reason = truncateReason(reason)
	updates := map[string]interface{}{
		"status":      model.DocumentStatusFailed,
		"fail_reason": reason,
	}
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("mark document failed failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Delete(id string) error {
	if err := r.db.Where("id = ?", id).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) DeleteAll() error {
	if err := r.db.Where("1 = 1").Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete all documents failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) CountByStatus(status string) (int64, error) {
	var count int64
	if err := r.db.Model(&model.Document{}).Where("status = ?", status).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count documents failed: %w", err)
	}
	return count, nil
}

func (r *DocumentRepository) SumChunkCounts() (int64, error) {
	var total int64
	err := r.db.Model(&model.Document{}).
		Where("status = ?", model.DocumentStatusProcessed).
		Select("COALESCE(SUM(chunk_count), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum chunk counts failed: %w", err)
	}
	return total, nil
}
