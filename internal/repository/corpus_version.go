package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// CorpusVersion is the single-row monotonic counter bumped on every corpus
// change. It feeds cache-key derivation: bumping it invalidates every cached
// answer computed against the previous corpus.
type CorpusVersion struct {
	ID        uint      `gorm:"primaryKey"`
	Version   uint64    `gorm:"not null"`
	UpdatedAt time.Time
}

const corpusVersionRowID = 1

type CorpusVersionRepository struct {
	db *gorm.DB
}

func NewCorpusVersionRepository(db *gorm.DB) *CorpusVersionRepository {
	return &CorpusVersionRepository{db: db}
}

// Current returns the current corpus version, initializing the row at 0 on
// first use.
func (r *CorpusVersionRepository) Current() (uint64, error) {
	var row CorpusVersion
	err := r.db.Where("id = ?", corpusVersionRowID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = CorpusVersion{ID: corpusVersionRowID, Version: 0}
		if err := r.db.Create(&row).Error; err != nil {
			return 0, fmt.Errorf("init corpus version failed: %w", err)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read corpus version failed: %w", err)
	}
	return row.Version, nil
}

// Bump atomically increments the version and returns the new value.
func (r *CorpusVersionRepository) Bump() (uint64, error) {
	if _, err := r.Current(); err != nil {
		return 0, err
	}

	var version uint64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&CorpusVersion{}).
			Where("id = ?", corpusVersionRowID).
			UpdateColumn("version", gorm.Expr("version + 1")).Error; err != nil {
			return err
		}
		var row CorpusVersion
		if err := tx.Where("id = ?", corpusVersionRowID).First(&row).Error; err != nil {
			return err
		}
		version = row.Version
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bump corpus version failed: %w", err)
	}
	return version, nil
}
