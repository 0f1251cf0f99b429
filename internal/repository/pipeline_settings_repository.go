package repository

import (
	"context"
	"errors"

	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

// PipelineSettingsRepository owns the single settings row holding the
// default funnel pointer
type PipelineSettingsRepository struct {
	db *gorm.DB
}

func NewPipelineSettingsRepository(db *gorm.DB) *PipelineSettingsRepository {
	return &PipelineSettingsRepository{db: db}
}

func (r *PipelineSettingsRepository) WithTx(tx *gorm.DB) *PipelineSettingsRepository {
	return &PipelineSettingsRepository{db: tx}
}

// Get returns the settings row, or an empty value when it was never written
func (r *PipelineSettingsRepository) Get(ctx context.Context) (*domain.PipelineSettings, error) {
	var settings domain.PipelineSettings
	err := r.db.WithContext(ctx).First(&settings, "id = ?", domain.PipelineSettingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.PipelineSettings{ID: domain.PipelineSettingsID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// LockForUpdate returns the settings row locked for the rest of the
// transaction, creating it on first use
func (r *PipelineSettingsRepository) LockForUpdate(ctx context.Context) (*domain.PipelineSettings, error) {
	var settings domain.PipelineSettings
	err := forUpdate(r.db.WithContext(ctx)).First(&settings, "id = ?", domain.PipelineSettingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = domain.PipelineSettings{ID: domain.PipelineSettingsID}
		if err := r.db.WithContext(ctx).Create(&settings).Error; err != nil {
			return nil, err
		}
		return &settings, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// SetDefaultFunnel writes the default pointer; nil clears it
func (r *PipelineSettingsRepository) SetDefaultFunnel(ctx context.Context, funnelID *int64) error {
	return r.db.WithContext(ctx).Model(&domain.PipelineSettings{}).
		Where("id = ?", domain.PipelineSettingsID).
		Update("default_funnel_id", funnelID).Error
}
