package repository

import (
	"context"

	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

type DealCommentRepository struct {
	db *gorm.DB
}

func NewDealCommentRepository(db *gorm.DB) *DealCommentRepository {
	return &DealCommentRepository{db: db}
}

func (r *DealCommentRepository) WithTx(tx *gorm.DB) *DealCommentRepository {
	return &DealCommentRepository{db: tx}
}

func (r *DealCommentRepository) Create(ctx context.Context, comment *domain.DealComment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *DealCommentRepository) GetByID(ctx context.Context, id int64) (*domain.DealComment, error) {
	var comment domain.DealComment
	err := r.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		First(&comment, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// ListByDeal returns visible comments, oldest first
func (r *DealCommentRepository) ListByDeal(ctx context.Context, dealID int64) ([]domain.DealComment, error) {
	var comments []domain.DealComment
	err := r.db.WithContext(ctx).
		Where("deal_id = ? AND is_deleted = ?", dealID, false).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	return comments, err
}

func (r *DealCommentRepository) SoftDelete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&domain.DealComment{}).
		Where("id = ?", id).
		Update("is_deleted", true).Error
}

func (r *DealCommentRepository) DeleteByDeal(ctx context.Context, dealID int64) error {
	return r.db.WithContext(ctx).Delete(&domain.DealComment{}, "deal_id = ?", dealID).Error
}
