package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DealParticipantService is the participant registry of a deal. A contact or
// a user can be attached to a deal at most once.
type DealParticipantService struct {
	dealRepo        *repository.DealRepository
	participantRepo *repository.DealParticipantRepository
	names           displayNames
	locks           *dealLocks
	logger          *zap.Logger
	db              *gorm.DB
}

func NewDealParticipantService(
	dealRepo *repository.DealRepository,
	participantRepo *repository.DealParticipantRepository,
	users UserResolver,
	contacts ContactResolver,
	logger *zap.Logger,
	db *gorm.DB,
) *DealParticipantService {
	return &DealParticipantService{
		dealRepo:        dealRepo,
		participantRepo: participantRepo,
		names:           displayNames{users: users, contacts: contacts, logger: logger},
		locks:           newDealLocks(),
		logger:          logger,
		db:              db,
	}
}

// Add attaches exactly one contact or user to the deal
func (s *DealParticipantService) Add(ctx context.Context, dealID int64, req *domain.AddParticipantRequest) (*domain.DealParticipantDTO, error) {
	contactID := positiveID(req.ContactID)
	userID := positiveID(req.UserID)
	if (contactID == nil) == (userID == nil) {
		return nil, ErrParticipantTarget
	}

	role := req.ParticipantType
	if role == "" {
		role = domain.ParticipantTypeParticipant
	}
	if !role.IsValid() {
		return nil, ErrInvalidRole
	}

	unlock := s.locks.lock(dealID)
	defer unlock()

	participant := &domain.DealParticipant{
		DealID:          dealID,
		ContactID:       contactID,
		UserID:          userID,
		ParticipantType: role,
		JoinedAt:        time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.dealRepo.WithTx(tx).GetByIDForUpdate(ctx, dealID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDealNotFound
			}
			return fmt.Errorf("failed to get deal: %w", err)
		}

		participantRepo := s.participantRepo.WithTx(tx)

		var exists bool
		var err error
		if contactID != nil {
			exists, err = participantRepo.ExistsContact(ctx, dealID, *contactID)
		} else {
			exists, err = participantRepo.ExistsUser(ctx, dealID, *userID)
		}
		if err != nil {
			return fmt.Errorf("failed to check participant: %w", err)
		}
		if exists {
			return ErrDuplicateParticipant
		}

		if err := participantRepo.Create(ctx, participant); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateParticipant
			}
			return fmt.Errorf("failed to add participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("deal participant added",
		zap.Int64("deal_id", dealID),
		zap.Int64("participant_id", participant.ID),
		zap.String("participant_type", string(role)))

	dto := mapper.ToDealParticipantDTO(participant, s.names.participant(ctx, participant))
	return &dto, nil
}

// Remove detaches a participant from the deal
func (s *DealParticipantService) Remove(ctx context.Context, dealID, participantID int64) (bool, error) {
	unlock := s.locks.lock(dealID)
	defer unlock()

	participant, err := s.participantRepo.GetByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrParticipantNotFound
		}
		return false, fmt.Errorf("failed to get participant: %w", err)
	}
	if participant.DealID != dealID {
		return false, ErrParticipantNotFound
	}

	removed, err := s.participantRepo.Delete(ctx, participantID)
	if err != nil {
		return false, fmt.Errorf("failed to remove participant: %w", err)
	}

	s.logger.Info("deal participant removed", zap.Int64("deal_id", dealID), zap.Int64("participant_id", participantID))
	return removed, nil
}

// List returns the deal's participants with resolved display names
func (s *DealParticipantService) List(ctx context.Context, dealID int64) ([]domain.DealParticipantDTO, error) {
	if _, err := s.dealRepo.GetByID(ctx, dealID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}

	participants, err := s.participantRepo.ListByDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	dtos := make([]domain.DealParticipantDTO, len(participants))
	for i := range participants {
		dtos[i] = mapper.ToDealParticipantDTO(&participants[i], s.names.participant(ctx, &participants[i]))
	}
	return dtos, nil
}
