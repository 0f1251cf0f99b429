package repository

import (
	"context"

	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

type DealParticipantRepository struct {
	db *gorm.DB
}

func NewDealParticipantRepository(db *gorm.DB) *DealParticipantRepository {
	return &DealParticipantRepository{db: db}
}

func (r *DealParticipantRepository) WithTx(tx *gorm.DB) *DealParticipantRepository {
	return &DealParticipantRepository{db: tx}
}

func (r *DealParticipantRepository) Create(ctx context.Context, participant *domain.DealParticipant) error {
	return r.db.WithContext(ctx).Create(participant).Error
}

func (r *DealParticipantRepository) GetByID(ctx context.Context, id int64) (*domain.DealParticipant, error) {
	var participant domain.DealParticipant
	err := r.db.WithContext(ctx).First(&participant, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *DealParticipantRepository) ListByDeal(ctx context.Context, dealID int64) ([]domain.DealParticipant, error) {
	var participants []domain.DealParticipant
	err := r.db.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Order("joined_at ASC, id ASC").
		Find(&participants).Error
	return participants, err
}

func (r *DealParticipantRepository) ExistsContact(ctx context.Context, dealID, contactID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.DealParticipant{}).
		Where("deal_id = ? AND contact_id = ?", dealID, contactID).
		Count(&count).Error
	return count > 0, err
}

func (r *DealParticipantRepository) ExistsUser(ctx context.Context, dealID, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.DealParticipant{}).
		Where("deal_id = ? AND user_id = ?", dealID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *DealParticipantRepository) Delete(ctx context.Context, id int64) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&domain.DealParticipant{}, "id = ?", id)
	return result.RowsAffected > 0, result.Error
}

func (r *DealParticipantRepository) DeleteByDeal(ctx context.Context, dealID int64) error {
	return r.db.WithContext(ctx).Delete(&domain.DealParticipant{}, "deal_id = ?", dealID).Error
}
