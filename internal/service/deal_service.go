package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/metrics"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	dealNumberPrefix = "DEAL"
	dealNumberFormat = "DEAL-%05d"

	// savepoint guarding the best-effort history write on deletion
	deleteHistorySavepoint = "deal_delete_history"
)

// DealService is the deal lifecycle manager: it creates, updates, moves and
// deletes deals and records every change in the history log
type DealService struct {
	dealRepo        *repository.DealRepository
	funnelRepo      *repository.FunnelRepository
	stageRepo       *repository.StageRepository
	settingsRepo    *repository.PipelineSettingsRepository
	productRepo     *repository.DealProductRepository
	historyRepo     *repository.DealHistoryRepository
	participantRepo *repository.DealParticipantRepository
	fileRepo        *repository.DealFileRepository
	commentRepo     *repository.DealCommentRepository
	sequenceRepo    *repository.NumberSequenceRepository
	names           displayNames
	metrics         *metrics.PipelineMetrics
	logger          *zap.Logger
	db              *gorm.DB
}

func NewDealService(
	dealRepo *repository.DealRepository,
	funnelRepo *repository.FunnelRepository,
	stageRepo *repository.StageRepository,
	settingsRepo *repository.PipelineSettingsRepository,
	productRepo *repository.DealProductRepository,
	historyRepo *repository.DealHistoryRepository,
	participantRepo *repository.DealParticipantRepository,
	fileRepo *repository.DealFileRepository,
	commentRepo *repository.DealCommentRepository,
	sequenceRepo *repository.NumberSequenceRepository,
	users UserResolver,
	contacts ContactResolver,
	pipelineMetrics *metrics.PipelineMetrics,
	logger *zap.Logger,
	db *gorm.DB,
) *DealService {
	return &DealService{
		dealRepo:        dealRepo,
		funnelRepo:      funnelRepo,
		stageRepo:       stageRepo,
		settingsRepo:    settingsRepo,
		productRepo:     productRepo,
		historyRepo:     historyRepo,
		participantRepo: participantRepo,
		fileRepo:        fileRepo,
		commentRepo:     commentRepo,
		sequenceRepo:    sequenceRepo,
		names:           displayNames{users: users, contacts: contacts, logger: logger},
		metrics:         pipelineMetrics,
		logger:          logger,
		db:              db,
	}
}

// Create places a new deal on a funnel stage and allocates its number.
// Without an explicit funnel the default funnel is used; without an explicit
// stage the funnel's first stage.
func (s *DealService) Create(ctx context.Context, req *domain.CreateDealRequest, actor int64) (*domain.DealDTO, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	dealType := req.DealType
	if dealType == "" {
		dealType = domain.DealTypeSale
	}
	if !dealType.IsValid() {
		return nil, ErrInvalidDealType
	}
	startDate, err := parseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	closeDate, err := parseDate(req.CloseDate)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	probability := domain.DefaultProbability
	if req.ProbabilityPercent != nil {
		probability = *req.ProbabilityPercent
	}
	responsible := actor
	if req.ResponsibleUserID != nil && *req.ResponsibleUserID > 0 {
		responsible = *req.ResponsibleUserID
	}
	// A derived amount starts at zero and follows the line items
	amount := decimal.Zero
	if req.IsManualAmount && req.Amount != nil {
		amount = decimal.NewFromFloat(*req.Amount).Round(2)
	}
	taxValue := decimal.Zero
	if req.TaxValue != nil {
		taxValue = decimal.NewFromFloat(*req.TaxValue).Round(2)
	}

	deal := &domain.Deal{
		Title:              title,
		Description:        req.Description,
		DealType:           dealType,
		Amount:             amount,
		Currency:           currency,
		IsManualAmount:     req.IsManualAmount,
		ProbabilityPercent: probability,
		TaxValue:           taxValue,
		StartDate:          startDate,
		CloseDate:          closeDate,
		ResponsibleUserID:  responsible,
		CompanyID:          positiveID(req.CompanyID),
		PrimaryContactID:   positiveID(req.PrimaryContactID),
		IsNew:              true,
		IsPublic:           req.IsPublic,
		IsRecurring:        req.IsRecurring,
		RecurrencePattern:  req.RecurrencePattern,
		SourceID:           positiveID(req.SourceID),
		SourceDescription:  req.SourceDescription,
		UTMSource:          req.UTMSource,
		UTMMedium:          req.UTMMedium,
		UTMCampaign:        req.UTMCampaign,
		CreatedBy:          actor,
		ModifiedBy:         actor,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		funnel, stage, err := s.resolvePlacement(ctx, tx, req.FunnelID, req.StageID)
		if err != nil {
			return err
		}
		deal.FunnelID = funnel.ID
		deal.StageID = stage.ID

		number, err := s.sequenceRepo.WithTx(tx).GetNextNumber(ctx, dealNumberPrefix)
		if err != nil {
			return fmt.Errorf("failed to allocate deal number: %w", err)
		}
		deal.DealNumber = fmt.Sprintf(dealNumberFormat, number)

		if err := s.dealRepo.WithTx(tx).Create(ctx, deal); err != nil {
			return fmt.Errorf("failed to create deal: %w", err)
		}

		return recordHistory(ctx, s.historyRepo.WithTx(tx),
			newHistoryEntry(deal.ID, historyFieldDealCreated, domain.ChangeTypeCreate, nil, strPtr(deal.Title), actor, time.Now().UTC()))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DealOperation("create")
	s.logger.Info("deal created",
		zap.Int64("deal_id", deal.ID),
		zap.String("deal_number", deal.DealNumber),
		zap.Int64("funnel_id", deal.FunnelID),
		zap.Int64("stage_id", deal.StageID),
		zap.Int64("actor_id", actor))

	return s.GetByID(ctx, deal.ID)
}

// resolvePlacement picks the funnel and stage for a new deal and checks the
// stage belongs to the funnel
func (s *DealService) resolvePlacement(ctx context.Context, tx *gorm.DB, funnelID, stageID *int64) (*domain.Funnel, *domain.Stage, error) {
	funnelRepo := s.funnelRepo.WithTx(tx)
	stageRepo := s.stageRepo.WithTx(tx)

	var funnel *domain.Funnel
	var err error
	if funnelID != nil {
		funnel, err = funnelRepo.GetByID(ctx, *funnelID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrFunnelNotFound
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get funnel: %w", err)
		}
	} else {
		funnel, err = loadDefaultFunnel(ctx, s.settingsRepo.WithTx(tx), funnelRepo)
		if errors.Is(err, ErrFunnelNotFound) {
			return nil, nil, ErrNoFunnelConfigured
		}
		if err != nil {
			return nil, nil, err
		}
	}

	if stageID == nil {
		stage, err := stageRepo.GetFirst(ctx, funnel.ID, 0)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrFunnelHasNoStages
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get first stage: %w", err)
		}
		return funnel, stage, nil
	}

	stage, err := stageRepo.GetByID(ctx, *stageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrStageNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get stage: %w", err)
	}
	if stage.FunnelID != funnel.ID {
		return nil, nil, ErrStageNotInFunnel
	}
	return funnel, stage, nil
}

// Update diffs the request against the stored deal, writes every changed
// whitelisted field in one statement and appends one UPDATE entry per field.
// A derived amount is recomputed from the line items.
func (s *DealService) Update(ctx context.Context, id int64, req *domain.UpdateDealRequest, actor int64) (*domain.DealDTO, error) {
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return nil, ErrTitleRequired
	}
	if req.DealType != nil && !req.DealType.IsValid() {
		return nil, ErrInvalidDealType
	}
	if req.Currency != nil {
		upper := strings.ToUpper(strings.TrimSpace(*req.Currency))
		req.Currency = &upper
	}
	startDate, err := parseDateUpdate(req.StartDate)
	if err != nil {
		return nil, err
	}
	closeDate, err := parseDateUpdate(req.CloseDate)
	if err != nil {
		return nil, err
	}

	var changed int

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dealRepo := s.dealRepo.WithTx(tx)

		deal, err := dealRepo.GetByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDealNotFound
			}
			return fmt.Errorf("failed to get deal: %w", err)
		}

		diff := diffDeal(deal, req, startDate, closeDate)

		if err := s.diffPlacement(ctx, tx, deal, req, diff); err != nil {
			return err
		}
		if err := s.diffAmount(ctx, tx, deal, req, diff); err != nil {
			return err
		}

		if len(diff.changes) == 0 {
			return nil
		}

		now := time.Now().UTC()
		updates := make(map[string]interface{}, len(diff.changes)+4)
		entries := make([]domain.DealHistoryEntry, 0, len(diff.changes))
		for _, c := range diff.changes {
			updates[c.field] = c.value
			entries = append(entries, newHistoryEntry(deal.ID, c.field, domain.ChangeTypeUpdate, c.oldValue, c.newValue, actor, now))
		}
		updates["modified_by"] = actor

		if diff.has("stage_id") {
			updates["moved_at"] = now
			updates["moved_by"] = actor
		}
		if diff.has("is_closed") {
			if req.IsClosed != nil && *req.IsClosed {
				updates["closed_at"] = now
			} else {
				updates["closed_at"] = nil
			}
		}

		if err := dealRepo.Update(ctx, deal.ID, updates); err != nil {
			return fmt.Errorf("failed to update deal: %w", err)
		}
		changed = len(diff.changes)
		return recordHistory(ctx, s.historyRepo.WithTx(tx), entries...)
	})
	if err != nil {
		return nil, err
	}

	if changed > 0 {
		s.metrics.DealOperation("update")
		s.logger.Info("deal updated",
			zap.Int64("deal_id", id),
			zap.Int("changed_fields", changed),
			zap.Int64("actor_id", actor))
	}

	return s.GetByID(ctx, id)
}

// diffPlacement validates funnel and stage changes. Switching funnels without
// naming a stage lands the deal on the new funnel's first stage.
func (s *DealService) diffPlacement(ctx context.Context, tx *gorm.DB, deal *domain.Deal, req *domain.UpdateDealRequest, diff *dealDiff) error {
	funnelChanged := req.FunnelID != nil && *req.FunnelID != deal.FunnelID
	stageChanged := req.StageID != nil && *req.StageID != deal.StageID
	if !funnelChanged && !stageChanged {
		return nil
	}

	funnelID := deal.FunnelID
	if funnelChanged {
		funnelID = *req.FunnelID
	}
	stageID := req.StageID
	if funnelChanged && !stageChanged {
		stageID = nil
	}

	funnelIDCopy := funnelID
	funnel, stage, err := s.resolvePlacement(ctx, tx, &funnelIDCopy, stageID)
	if err != nil {
		return err
	}

	diff.id("funnel_id", deal.FunnelID, &funnel.ID)
	diff.id("stage_id", deal.StageID, &stage.ID)
	return nil
}

// diffAmount applies the amount rule: a manual amount only changes when asked
// to, a derived amount always equals the sum of the line totals
func (s *DealService) diffAmount(ctx context.Context, tx *gorm.DB, deal *domain.Deal, req *domain.UpdateDealRequest, diff *dealDiff) error {
	manual := deal.IsManualAmount
	if req.IsManualAmount != nil {
		manual = *req.IsManualAmount
	}

	if manual {
		diff.money("amount", deal.Amount, optionalMoney(req.Amount))
		return nil
	}

	total, err := s.productRepo.WithTx(tx).SumLineTotals(ctx, deal.ID)
	if err != nil {
		return fmt.Errorf("failed to sum line items: %w", err)
	}
	diff.money("amount", deal.Amount, &total)
	return nil
}

// MoveToStage moves the deal within its funnel. Moving to the current stage
// is a no-op and records nothing.
func (s *DealService) MoveToStage(ctx context.Context, id, stageID, actor int64) (*domain.DealDTO, error) {
	var moved bool
	var funnelID int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dealRepo := s.dealRepo.WithTx(tx)

		deal, err := dealRepo.GetByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDealNotFound
			}
			return fmt.Errorf("failed to get deal: %w", err)
		}
		if deal.StageID == stageID {
			return nil
		}

		stage, err := s.stageRepo.WithTx(tx).GetByID(ctx, stageID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStageNotFound
			}
			return fmt.Errorf("failed to get stage: %w", err)
		}
		if stage.FunnelID != deal.FunnelID {
			return ErrStageNotInFunnel
		}

		now := time.Now().UTC()
		if err := dealRepo.Update(ctx, deal.ID, map[string]interface{}{
			"stage_id":    stage.ID,
			"moved_at":    now,
			"moved_by":    actor,
			"modified_by": actor,
		}); err != nil {
			return fmt.Errorf("failed to move deal: %w", err)
		}

		moved = true
		funnelID = deal.FunnelID
		return recordHistory(ctx, s.historyRepo.WithTx(tx),
			newHistoryEntry(deal.ID, historyFieldStage, domain.ChangeTypeStageChange, idString(deal.StageID), idString(stage.ID), actor, now))
	})
	if err != nil {
		return nil, err
	}

	if moved {
		s.metrics.StageMove(funnelID)
		s.logger.Info("deal moved",
			zap.Int64("deal_id", id),
			zap.Int64("stage_id", stageID),
			zap.Int64("actor_id", actor))
	}

	return s.GetByID(ctx, id)
}

// Delete removes the deal and everything attached to it. The DELETE history
// entry is written first on a best-effort basis: a failure there is logged
// and does not stop the deletion.
func (s *DealService) Delete(ctx context.Context, id, actor int64) (bool, error) {
	var title string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dealRepo := s.dealRepo.WithTx(tx)

		deal, err := dealRepo.GetByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDealNotFound
			}
			return fmt.Errorf("failed to get deal: %w", err)
		}
		title = deal.Title

		s.recordDeletion(ctx, tx, deal, actor)

		if err := s.productRepo.WithTx(tx).DeleteByDeal(ctx, id); err != nil {
			return fmt.Errorf("failed to delete deal products: %w", err)
		}
		if err := s.fileRepo.WithTx(tx).DeleteByDeal(ctx, id); err != nil {
			return fmt.Errorf("failed to delete deal files: %w", err)
		}
		if err := s.commentRepo.WithTx(tx).DeleteByDeal(ctx, id); err != nil {
			return fmt.Errorf("failed to delete deal comments: %w", err)
		}
		if err := s.participantRepo.WithTx(tx).DeleteByDeal(ctx, id); err != nil {
			return fmt.Errorf("failed to delete deal participants: %w", err)
		}
		if err := s.historyRepo.WithTx(tx).DeleteByDeal(ctx, id); err != nil {
			return fmt.Errorf("failed to delete deal history: %w", err)
		}
		if _, err := dealRepo.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete deal: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	s.metrics.DealOperation("delete")
	s.logger.Info("deal deleted",
		zap.Int64("deal_id", id),
		zap.String("title", title),
		zap.Int64("actor_id", actor))
	return true, nil
}

// recordDeletion writes the DELETE entry inside a savepoint so that a failed
// insert does not abort the surrounding transaction
func (s *DealService) recordDeletion(ctx context.Context, tx *gorm.DB, deal *domain.Deal, actor int64) {
	entry := newHistoryEntry(deal.ID, historyFieldDealDeleted, domain.ChangeTypeDelete, strPtr(deal.Title), nil, actor, time.Now().UTC())

	if err := tx.SavePoint(deleteHistorySavepoint).Error; err != nil {
		s.logger.Warn("failed to open savepoint for deletion history", zap.Int64("deal_id", deal.ID), zap.Error(err))
		s.metrics.HistoryWriteSkipped()
		return
	}
	if err := s.historyRepo.WithTx(tx).Create(ctx, &entry); err != nil {
		if rbErr := tx.RollbackTo(deleteHistorySavepoint).Error; rbErr != nil {
			s.logger.Warn("failed to roll back deletion history savepoint", zap.Error(rbErr))
		}
		s.logger.Warn("skipping deletion history entry",
			zap.Int64("deal_id", deal.ID),
			zap.Error(err))
		s.metrics.HistoryWriteSkipped()
	}
}

// GetByID returns the fully hydrated deal read model
func (s *DealService) GetByID(ctx context.Context, id int64) (*domain.DealDTO, error) {
	deal, err := s.dealRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}

	dto := mapper.ToDealDTO(deal)
	dto.ResponsibleUserName = s.names.user(ctx, deal.ResponsibleUserID)

	if stage, err := s.stageRepo.GetByID(ctx, deal.StageID); err == nil {
		dto.Stage = mapper.ToStageSummaryDTO(stage)
	} else {
		s.logger.Warn("deal references missing stage", zap.Int64("deal_id", id), zap.Int64("stage_id", deal.StageID), zap.Error(err))
	}
	if funnel, err := s.funnelRepo.GetByID(ctx, deal.FunnelID); err == nil {
		dto.Funnel = mapper.ToFunnelSummaryDTO(funnel)
	} else {
		s.logger.Warn("deal references missing funnel", zap.Int64("deal_id", id), zap.Int64("funnel_id", deal.FunnelID), zap.Error(err))
	}

	products, err := s.productRepo.ListByDeal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list deal products: %w", err)
	}
	dto.Products = make([]domain.DealProductDTO, len(products))
	for i := range products {
		dto.Products[i] = mapper.ToDealProductDTO(&products[i])
	}

	participants, err := s.participantRepo.ListByDeal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list deal participants: %w", err)
	}
	dto.Participants = make([]domain.DealParticipantDTO, len(participants))
	for i := range participants {
		dto.Participants[i] = mapper.ToDealParticipantDTO(&participants[i], s.names.participant(ctx, &participants[i]))
	}

	history, err := s.historyRepo.ListByDeal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list deal history: %w", err)
	}
	dto.History = make([]domain.DealHistoryDTO, len(history))
	for i := range history {
		dto.History[i] = mapper.ToDealHistoryDTO(&history[i])
	}

	return &dto, nil
}

// List returns a page of deals without their related collections
func (s *DealService) List(ctx context.Context, filters *domain.DealFilters, page, pageSize int) (*domain.PaginatedResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}

	deals, total, err := s.dealRepo.List(ctx, page, pageSize, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}

	dtos := make([]domain.DealDTO, len(deals))
	for i := range deals {
		dtos[i] = mapper.ToDealDTO(&deals[i])
	}

	return &domain.PaginatedResponse{
		Data:       dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

func positiveID(id *int64) *int64 {
	if id == nil || *id <= 0 {
		return nil
	}
	return id
}
