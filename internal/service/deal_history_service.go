package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Field names used for history entries that are not plain column changes
const (
	historyFieldDealCreated    = "deal_created"
	historyFieldDealDeleted    = "deal_deleted"
	historyFieldStage          = "stage"
	historyFieldProductAdded   = "product_added"
	historyFieldProductRemoved = "product_removed"
	historyFieldFileUploaded   = "file_uploaded"
)

// DealHistoryService exposes the read side of the history log.
// Writes happen inside the transactions of the services that change deals.
type DealHistoryService struct {
	dealRepo    *repository.DealRepository
	historyRepo *repository.DealHistoryRepository
	logger      *zap.Logger
}

func NewDealHistoryService(dealRepo *repository.DealRepository, historyRepo *repository.DealHistoryRepository, logger *zap.Logger) *DealHistoryService {
	return &DealHistoryService{
		dealRepo:    dealRepo,
		historyRepo: historyRepo,
		logger:      logger,
	}
}

// ListByDeal returns the deal's history, newest first
func (s *DealHistoryService) ListByDeal(ctx context.Context, dealID int64) ([]domain.DealHistoryDTO, error) {
	if _, err := s.dealRepo.GetByID(ctx, dealID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}

	entries, err := s.historyRepo.ListByDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deal history: %w", err)
	}

	dtos := make([]domain.DealHistoryDTO, len(entries))
	for i := range entries {
		dtos[i] = mapper.ToDealHistoryDTO(&entries[i])
	}
	return dtos, nil
}

func newHistoryEntry(dealID int64, field string, changeType domain.ChangeType, oldValue, newValue *string, actor int64, at time.Time) domain.DealHistoryEntry {
	return domain.DealHistoryEntry{
		DealID:     dealID,
		FieldName:  field,
		OldValue:   oldValue,
		NewValue:   newValue,
		ChangeType: changeType,
		ChangedBy:  actor,
		ChangedAt:  at,
	}
}

// recordHistory appends entries and fails the surrounding operation on error
func recordHistory(ctx context.Context, repo *repository.DealHistoryRepository, entries ...domain.DealHistoryEntry) error {
	if err := repo.CreateBatch(ctx, entries); err != nil {
		return fmt.Errorf("failed to record deal history: %w", err)
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}

func idString(id int64) *string {
	return strPtr(strconv.FormatInt(id, 10))
}
