package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

// NumberSequenceRepository allocates human-readable sequential numbers per prefix
type NumberSequenceRepository struct {
	db *gorm.DB
}

func NewNumberSequenceRepository(db *gorm.DB) *NumberSequenceRepository {
	return &NumberSequenceRepository{db: db}
}

func (r *NumberSequenceRepository) WithTx(tx *gorm.DB) *NumberSequenceRepository {
	return &NumberSequenceRepository{db: tx}
}

// GetNextNumber atomically increments and returns the sequence for prefix,
// starting at 1. The sequence row is locked (postgres) while it is bumped.
// When the repository is bound to an outer transaction this runs as a
// savepoint and the number is released again if the outer work rolls back.
func (r *NumberSequenceRepository) GetNextNumber(ctx context.Context, prefix string) (int64, error) {
	var next int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq domain.NumberSequence
		err := forUpdate(tx).Where("prefix = ?", prefix).First(&seq).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			seq = domain.NumberSequence{
				Prefix:     prefix,
				LastNumber: 1,
				UpdatedAt:  time.Now(),
			}
			if err := tx.Create(&seq).Error; err != nil {
				return fmt.Errorf("failed to create number sequence: %w", err)
			}
			next = 1
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get number sequence: %w", err)
		}

		next = seq.LastNumber + 1
		if err := tx.Model(&seq).Updates(map[string]interface{}{
			"last_number": next,
			"updated_at":  time.Now(),
		}).Error; err != nil {
			return fmt.Errorf("failed to update number sequence: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return next, nil
}

// GetCurrent returns the last allocated number, or 0 if none was allocated
func (r *NumberSequenceRepository) GetCurrent(ctx context.Context, prefix string) (int64, error) {
	var seq domain.NumberSequence
	err := r.db.WithContext(ctx).Where("prefix = ?", prefix).First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get number sequence: %w", err)
	}
	return seq.LastNumber, nil
}
