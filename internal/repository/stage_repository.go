package repository

import (
	"context"
	"fmt"

	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

// reorderPlaceholderOffset keeps phase-one placeholders clear of every real
// order index and of each other
const reorderPlaceholderOffset = 10000

type StageRepository struct {
	db *gorm.DB
}

func NewStageRepository(db *gorm.DB) *StageRepository {
	return &StageRepository{db: db}
}

func (r *StageRepository) WithTx(tx *gorm.DB) *StageRepository {
	return &StageRepository{db: tx}
}

func (r *StageRepository) Create(ctx context.Context, stage *domain.Stage) error {
	return r.db.WithContext(ctx).Create(stage).Error
}

func (r *StageRepository) GetByID(ctx context.Context, id int64) (*domain.Stage, error) {
	var stage domain.Stage
	err := r.db.WithContext(ctx).First(&stage, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

// ListByFunnel returns the funnel's stages in pipeline order
func (r *StageRepository) ListByFunnel(ctx context.Context, funnelID int64) ([]domain.Stage, error) {
	var stages []domain.Stage
	err := r.db.WithContext(ctx).
		Where("funnel_id = ?", funnelID).
		Order("order_index ASC").
		Find(&stages).Error
	return stages, err
}

// ListByIDs returns the stages with the given ids in any order
func (r *StageRepository) ListByIDs(ctx context.Context, ids []int64) ([]domain.Stage, error) {
	var stages []domain.Stage
	if len(ids) == 0 {
		return stages, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&stages).Error
	return stages, err
}

// GetFirst returns the funnel stage with the smallest order index,
// skipping excludeID (pass 0 to skip nothing)
func (r *StageRepository) GetFirst(ctx context.Context, funnelID, excludeID int64) (*domain.Stage, error) {
	var stage domain.Stage
	err := r.db.WithContext(ctx).
		Where("funnel_id = ? AND id <> ?", funnelID, excludeID).
		Order("order_index ASC").
		First(&stage).Error
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

// GetMaxOrderIndex returns the highest order index, or -1 for an empty funnel
func (r *StageRepository) GetMaxOrderIndex(ctx context.Context, funnelID int64) (int, error) {
	var maxOrder *int
	err := r.db.WithContext(ctx).
		Model(&domain.Stage{}).
		Where("funnel_id = ?", funnelID).
		Select("MAX(order_index)").
		Scan(&maxOrder).Error
	if err != nil {
		return 0, err
	}
	if maxOrder == nil {
		return -1, nil
	}
	return *maxOrder, nil
}

func (r *StageRepository) ExistsKey(ctx context.Context, funnelID int64, key string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Stage{}).
		Where("funnel_id = ? AND stage_key = ?", funnelID, key).
		Count(&count).Error
	return count > 0, err
}

func (r *StageRepository) ExistsOrderIndex(ctx context.Context, funnelID int64, orderIndex int) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Stage{}).
		Where("funnel_id = ? AND order_index = ?", funnelID, orderIndex).
		Count(&count).Error
	return count > 0, err
}

func (r *StageRepository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&domain.Stage{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *StageRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&domain.Stage{}, "id = ?", id).Error
}

func (r *StageRepository) DeleteByFunnel(ctx context.Context, funnelID int64) error {
	return r.db.WithContext(ctx).Delete(&domain.Stage{}, "funnel_id = ?", funnelID).Error
}

// Reorder assigns order indexes 0..N-1 following orderedIDs. It runs in two
// phases so that (funnel_id, order_index) stays unique after every statement:
// first every stage is parked on a distinct negative placeholder, then the
// final indexes are written. Callers must run it inside a transaction.
func (r *StageRepository) Reorder(ctx context.Context, funnelID int64, orderedIDs []int64) error {
	db := r.db.WithContext(ctx)

	for _, id := range orderedIDs {
		result := db.Model(&domain.Stage{}).
			Where("id = ? AND funnel_id = ?", id, funnelID).
			Update("order_index", -id-reorderPlaceholderOffset)
		if result.Error != nil {
			return fmt.Errorf("failed to park stage %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("stage %d not found in funnel %d", id, funnelID)
		}
	}

	for i, id := range orderedIDs {
		if err := db.Model(&domain.Stage{}).
			Where("id = ? AND funnel_id = ?", id, funnelID).
			Update("order_index", i).Error; err != nil {
			return fmt.Errorf("failed to position stage %d: %w", id, err)
		}
	}

	return nil
}
