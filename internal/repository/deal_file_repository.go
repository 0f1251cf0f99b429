package repository

import (
	"context"

	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

type DealFileRepository struct {
	db *gorm.DB
}

func NewDealFileRepository(db *gorm.DB) *DealFileRepository {
	return &DealFileRepository{db: db}
}

func (r *DealFileRepository) WithTx(tx *gorm.DB) *DealFileRepository {
	return &DealFileRepository{db: tx}
}

func (r *DealFileRepository) Create(ctx context.Context, file *domain.DealFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

// GetByID returns a file that has not been soft-deleted
func (r *DealFileRepository) GetByID(ctx context.Context, id int64) (*domain.DealFile, error) {
	var file domain.DealFile
	err := r.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		First(&file, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *DealFileRepository) ListByDeal(ctx context.Context, dealID int64) ([]domain.DealFile, error) {
	var files []domain.DealFile
	err := r.db.WithContext(ctx).
		Where("deal_id = ? AND is_deleted = ?", dealID, false).
		Order("uploaded_at DESC, id DESC").
		Find(&files).Error
	return files, err
}

// GetCurrentByType returns the current version of a document type, if any
func (r *DealFileRepository) GetCurrentByType(ctx context.Context, dealID int64, fileType domain.FileType) (*domain.DealFile, error) {
	var file domain.DealFile
	err := forUpdate(r.db.WithContext(ctx)).
		Where("deal_id = ? AND file_type = ? AND is_current = ? AND is_deleted = ?", dealID, fileType, true, false).
		Order("version_number DESC").
		First(&file).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *DealFileRepository) MarkNotCurrent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&domain.DealFile{}).
		Where("id = ?", id).
		Update("is_current", false).Error
}

func (r *DealFileRepository) SoftDelete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&domain.DealFile{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_deleted": true, "is_current": false}).Error
}

func (r *DealFileRepository) DeleteByDeal(ctx context.Context, dealID int64) error {
	return r.db.WithContext(ctx).Delete(&domain.DealFile{}, "deal_id = ?", dealID).Error
}
