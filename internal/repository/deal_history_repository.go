package repository

import (
	"context"

	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

// DealHistoryRepository is the append-only store of deal changes.
// There is no update method: entries are immutable once written.
type DealHistoryRepository struct {
	db *gorm.DB
}

func NewDealHistoryRepository(db *gorm.DB) *DealHistoryRepository {
	return &DealHistoryRepository{db: db}
}

func (r *DealHistoryRepository) WithTx(tx *gorm.DB) *DealHistoryRepository {
	return &DealHistoryRepository{db: tx}
}

// Create appends one entry
func (r *DealHistoryRepository) Create(ctx context.Context, entry *domain.DealHistoryEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// CreateBatch appends several entries in one statement
func (r *DealHistoryRepository) CreateBatch(ctx context.Context, entries []domain.DealHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

// ListByDeal returns a deal's history, newest first
func (r *DealHistoryRepository) ListByDeal(ctx context.Context, dealID int64) ([]domain.DealHistoryEntry, error) {
	var entries []domain.DealHistoryEntry
	err := r.db.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Order("changed_at DESC, id DESC").
		Find(&entries).Error
	return entries, err
}

// DeleteByDeal is only used when the deal itself is deleted
func (r *DealHistoryRepository) DeleteByDeal(ctx context.Context, dealID int64) error {
	return r.db.WithContext(ctx).Delete(&domain.DealHistoryEntry{}, "deal_id = ?", dealID).Error
}
