package repository

import (
	"context"

	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

type FunnelRepository struct {
	db *gorm.DB
}

func NewFunnelRepository(db *gorm.DB) *FunnelRepository {
	return &FunnelRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *FunnelRepository) WithTx(tx *gorm.DB) *FunnelRepository {
	return &FunnelRepository{db: tx}
}

func (r *FunnelRepository) Create(ctx context.Context, funnel *domain.Funnel) error {
	return r.db.WithContext(ctx).Create(funnel).Error
}

func (r *FunnelRepository) GetByID(ctx context.Context, id int64) (*domain.Funnel, error) {
	var funnel domain.Funnel
	err := r.db.WithContext(ctx).First(&funnel, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &funnel, nil
}

// ExistsByName reports whether another funnel already uses the name
func (r *FunnelRepository) ExistsByName(ctx context.Context, name string, excludeID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Funnel{}).
		Where("name = ? AND id <> ?", name, excludeID).
		Count(&count).Error
	return count > 0, err
}

// List returns funnels with the default first, then newest first
func (r *FunnelRepository) List(ctx context.Context) ([]domain.Funnel, error) {
	var funnels []domain.Funnel
	err := r.db.WithContext(ctx).
		Order("is_default DESC, created_at DESC, id DESC").
		Find(&funnels).Error
	return funnels, err
}

func (r *FunnelRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Funnel{}).Count(&count).Error
	return count, err
}

// GetOldest returns the first funnel ever created
func (r *FunnelRepository) GetOldest(ctx context.Context) (*domain.Funnel, error) {
	var funnel domain.Funnel
	err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").First(&funnel).Error
	if err != nil {
		return nil, err
	}
	return &funnel, nil
}

func (r *FunnelRepository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&domain.Funnel{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// SetDefaultFlag clears is_default everywhere and sets it on id
func (r *FunnelRepository) SetDefaultFlag(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Model(&domain.Funnel{}).
		Where("is_default = ? AND id <> ?", true, id).
		Update("is_default", false).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&domain.Funnel{}).
		Where("id = ?", id).
		Update("is_default", true).Error
}

func (r *FunnelRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&domain.Funnel{}, "id = ?", id).Error
}
