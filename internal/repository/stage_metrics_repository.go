package repository

import (
	"context"

	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

type StageMetricsRepository struct {
	db *gorm.DB
}

func NewStageMetricsRepository(db *gorm.DB) *StageMetricsRepository {
	return &StageMetricsRepository{db: db}
}

func (r *StageMetricsRepository) WithTx(tx *gorm.DB) *StageMetricsRepository {
	return &StageMetricsRepository{db: tx}
}

func (r *StageMetricsRepository) Create(ctx context.Context, metrics *domain.StageMetrics) error {
	return r.db.WithContext(ctx).Create(metrics).Error
}

func (r *StageMetricsRepository) ListByStageIDs(ctx context.Context, stageIDs []int64) ([]domain.StageMetrics, error) {
	var metrics []domain.StageMetrics
	if len(stageIDs) == 0 {
		return metrics, nil
	}
	err := r.db.WithContext(ctx).Where("stage_id IN ?", stageIDs).Find(&metrics).Error
	return metrics, err
}

// Save overwrites the aggregate for a stage, creating the row if it is missing
func (r *StageMetricsRepository) Save(ctx context.Context, metrics *domain.StageMetrics) error {
	db := r.db.WithContext(ctx)
	result := db.Model(&domain.StageMetrics{}).
		Where("stage_id = ?", metrics.StageID).
		Updates(map[string]interface{}{
			"deals_count":        metrics.DealsCount,
			"total_amount":       metrics.TotalAmount,
			"avg_days_in_stage":  metrics.AvgDaysInStage,
			"conversion_percent": metrics.ConversionPercent,
			"refreshed_at":       metrics.RefreshedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return db.Create(metrics).Error
	}
	return nil
}

func (r *StageMetricsRepository) DeleteByStage(ctx context.Context, stageID int64) error {
	return r.db.WithContext(ctx).Delete(&domain.StageMetrics{}, "stage_id = ?", stageID).Error
}

func (r *StageMetricsRepository) DeleteByFunnel(ctx context.Context, funnelID int64) error {
	stageIDs := r.db.Model(&domain.Stage{}).Select("id").Where("funnel_id = ?", funnelID)
	return r.db.WithContext(ctx).Delete(&domain.StageMetrics{}, "stage_id IN (?)", stageIDs).Error
}
