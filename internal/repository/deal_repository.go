package repository

import (
	"context"
	"strings"

	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DealRepository struct {
	db *gorm.DB
}

func NewDealRepository(db *gorm.DB) *DealRepository {
	return &DealRepository{db: db}
}

func (r *DealRepository) WithTx(tx *gorm.DB) *DealRepository {
	return &DealRepository{db: tx}
}

func (r *DealRepository) Create(ctx context.Context, deal *domain.Deal) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(deal).Error
}

func (r *DealRepository) GetByID(ctx context.Context, id int64) (*domain.Deal, error) {
	var deal domain.Deal
	err := r.db.WithContext(ctx).First(&deal, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

// GetByIDForUpdate loads the deal and locks its row until the transaction ends
func (r *DealRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Deal, error) {
	var deal domain.Deal
	err := forUpdate(r.db.WithContext(ctx)).First(&deal, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

func (r *DealRepository) List(ctx context.Context, page, pageSize int, filters *domain.DealFilters) ([]domain.Deal, int64, error) {
	var deals []domain.Deal
	var total int64

	query := r.applyFilters(r.db.WithContext(ctx).Model(&domain.Deal{}), filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&deals).Error

	return deals, total, err
}

func (r *DealRepository) applyFilters(query *gorm.DB, filters *domain.DealFilters) *gorm.DB {
	if filters == nil {
		return query
	}
	if filters.FunnelID != nil {
		query = query.Where("funnel_id = ?", *filters.FunnelID)
	}
	if filters.StageID != nil {
		query = query.Where("stage_id = ?", *filters.StageID)
	}
	if filters.ResponsibleUserID != nil {
		query = query.Where("responsible_user_id = ?", *filters.ResponsibleUserID)
	}
	if filters.IsClosed != nil {
		query = query.Where("is_closed = ?", *filters.IsClosed)
	}
	if search := strings.TrimSpace(filters.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(deal_number) LIKE ?", pattern, pattern)
	}
	return query
}

// ListByStage returns the deals currently placed on a stage
func (r *DealRepository) ListByStage(ctx context.Context, stageID int64) ([]domain.Deal, error) {
	var deals []domain.Deal
	err := r.db.WithContext(ctx).
		Where("stage_id = ?", stageID).
		Order("id ASC").
		Find(&deals).Error
	return deals, err
}

// ListByFunnel returns every deal of a funnel
func (r *DealRepository) ListByFunnel(ctx context.Context, funnelID int64) ([]domain.Deal, error) {
	var deals []domain.Deal
	err := r.db.WithContext(ctx).
		Where("funnel_id = ?", funnelID).
		Find(&deals).Error
	return deals, err
}

func (r *DealRepository) CountByFunnel(ctx context.Context, funnelID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Deal{}).
		Where("funnel_id = ?", funnelID).
		Count(&count).Error
	return count, err
}

func (r *DealRepository) CountByStage(ctx context.Context, stageID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Deal{}).
		Where("stage_id = ?", stageID).
		Count(&count).Error
	return count, err
}

// Update applies the column map in a single UPDATE
func (r *DealRepository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&domain.Deal{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *DealRepository) Delete(ctx context.Context, id int64) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&domain.Deal{}, "id = ?", id)
	return result.RowsAffected > 0, result.Error
}
