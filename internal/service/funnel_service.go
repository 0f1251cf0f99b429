package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type systemStage struct {
	key         string
	name        string
	textColor   string
	bgColor     string
	borderColor string
	semantic    domain.SemanticID
}

// systemStages is seeded into the first funnel and every funnel created as default.
// Order indexes follow slice positions.
var systemStages = []systemStage{
	{"prospect", "Prospect", "text-slate-800", "bg-slate-100", "border-slate-400", domain.SemanticInProgress},
	{"negotiation", "Negotiation", "text-blue-800", "bg-blue-100", "border-blue-400", domain.SemanticInProgress},
	{"decision", "Decision", "text-amber-800", "bg-amber-100", "border-amber-400", domain.SemanticInProgress},
	{"payment", "Payment", "text-purple-800", "bg-purple-100", "border-purple-400", domain.SemanticInProgress},
	{"done", "Done", "text-green-800", "bg-green-100", "border-green-400", domain.SemanticSuccess},
}

// FunnelService owns funnels, their stage tables and the default funnel pointer
type FunnelService struct {
	funnelRepo   *repository.FunnelRepository
	stageRepo    *repository.StageRepository
	metricsRepo  *repository.StageMetricsRepository
	settingsRepo *repository.PipelineSettingsRepository
	dealRepo     *repository.DealRepository
	historyRepo  *repository.DealHistoryRepository
	logger       *zap.Logger
	db           *gorm.DB
}

func NewFunnelService(
	funnelRepo *repository.FunnelRepository,
	stageRepo *repository.StageRepository,
	metricsRepo *repository.StageMetricsRepository,
	settingsRepo *repository.PipelineSettingsRepository,
	dealRepo *repository.DealRepository,
	historyRepo *repository.DealHistoryRepository,
	logger *zap.Logger,
	db *gorm.DB,
) *FunnelService {
	return &FunnelService{
		funnelRepo:   funnelRepo,
		stageRepo:    stageRepo,
		metricsRepo:  metricsRepo,
		settingsRepo: settingsRepo,
		dealRepo:     dealRepo,
		historyRepo:  historyRepo,
		logger:       logger,
		db:           db,
	}
}

// Create creates a funnel. The first funnel in the system becomes the default.
// The first funnel and any funnel created as default get the system stages.
func (s *FunnelService) Create(ctx context.Context, req *domain.CreateFunnelRequest, actor int64) (*domain.FunnelDTO, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	taken, err := s.funnelRepo.ExistsByName(ctx, name, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to check funnel name: %w", err)
	}
	if taken {
		return nil, ErrFunnelNameTaken
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	funnel := &domain.Funnel{
		Name:        name,
		Description: req.Description,
		IsActive:    isActive,
		CreatedBy:   &actor,
	}
	var stages []domain.Stage

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serializes concurrent creation of the first funnel
		if _, err := s.settingsRepo.WithTx(tx).LockForUpdate(ctx); err != nil {
			return fmt.Errorf("failed to lock pipeline settings: %w", err)
		}

		count, err := s.funnelRepo.WithTx(tx).Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count funnels: %w", err)
		}
		first := count == 0

		if err := s.funnelRepo.WithTx(tx).Create(ctx, funnel); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrFunnelNameTaken
			}
			return fmt.Errorf("failed to create funnel: %w", err)
		}

		if first || req.IsDefault {
			if err := s.setDefaultTx(ctx, tx, funnel.ID); err != nil {
				return err
			}
			funnel.IsDefault = true

			stages, err = s.seedSystemStages(ctx, tx, funnel.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("funnel created",
		zap.Int64("funnel_id", funnel.ID),
		zap.String("name", funnel.Name),
		zap.Bool("is_default", funnel.IsDefault),
		zap.Int("seeded_stages", len(stages)))

	dto := mapper.ToFunnelDTO(funnel, stages)
	return &dto, nil
}

func (s *FunnelService) seedSystemStages(ctx context.Context, tx *gorm.DB, funnelID int64) ([]domain.Stage, error) {
	stageRepo := s.stageRepo.WithTx(tx)
	metricsRepo := s.metricsRepo.WithTx(tx)

	stages := make([]domain.Stage, 0, len(systemStages))
	for i, tmpl := range systemStages {
		stage := domain.Stage{
			FunnelID:    funnelID,
			StageKey:    tmpl.key,
			Name:        tmpl.name,
			Label:       tmpl.name,
			TextColor:   tmpl.textColor,
			BgColor:     tmpl.bgColor,
			BorderColor: tmpl.borderColor,
			OrderIndex:  i,
			IsSystem:    true,
			SemanticID:  tmpl.semantic,
		}
		if err := stageRepo.Create(ctx, &stage); err != nil {
			return nil, fmt.Errorf("failed to seed stage %s: %w", tmpl.key, err)
		}
		if err := metricsRepo.Create(ctx, &domain.StageMetrics{StageID: stage.ID}); err != nil {
			return nil, fmt.Errorf("failed to create metrics for stage %s: %w", tmpl.key, err)
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// setDefaultTx moves the default pointer to funnelID. The settings row lock
// makes concurrent switches queue up, so at most one funnel carries the flag.
func (s *FunnelService) setDefaultTx(ctx context.Context, tx *gorm.DB, funnelID int64) error {
	settingsRepo := s.settingsRepo.WithTx(tx)
	if _, err := settingsRepo.LockForUpdate(ctx); err != nil {
		return fmt.Errorf("failed to lock pipeline settings: %w", err)
	}
	if err := s.funnelRepo.WithTx(tx).SetDefaultFlag(ctx, funnelID); err != nil {
		return fmt.Errorf("failed to set default flag: %w", err)
	}
	if err := settingsRepo.SetDefaultFunnel(ctx, &funnelID); err != nil {
		return fmt.Errorf("failed to set default funnel: %w", err)
	}
	return nil
}

// SetDefault makes the funnel the default one. Idempotent.
func (s *FunnelService) SetDefault(ctx context.Context, id int64) (*domain.FunnelDTO, error) {
	if _, err := s.getFunnel(ctx, id); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.setDefaultTx(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("default funnel changed", zap.Int64("funnel_id", id))
	return s.GetByID(ctx, id)
}

// Update applies a partial update. Setting isDefault to true moves the default
// here; clearing it on the default funnel is rejected.
func (s *FunnelService) Update(ctx context.Context, id int64, req *domain.UpdateFunnelRequest) (*domain.FunnelDTO, error) {
	funnel, err := s.getFunnel(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		if name != funnel.Name {
			taken, err := s.funnelRepo.ExistsByName(ctx, name, id)
			if err != nil {
				return nil, fmt.Errorf("failed to check funnel name: %w", err)
			}
			if taken {
				return nil, ErrFunnelNameTaken
			}
			updates["name"] = name
		}
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.IsDefault != nil && !*req.IsDefault && funnel.IsDefault {
		return nil, ErrDefaultFunnelUnset
	}
	makeDefault := req.IsDefault != nil && *req.IsDefault && !funnel.IsDefault

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := s.funnelRepo.WithTx(tx).Update(ctx, id, updates); err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrFunnelNameTaken
				}
				return fmt.Errorf("failed to update funnel: %w", err)
			}
		}
		if makeDefault {
			return s.setDefaultTx(ctx, tx, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetByID(ctx, id)
}

// Delete removes a funnel together with its stages and their metrics.
// The default funnel and funnels that still hold deals cannot be deleted.
func (s *FunnelService) Delete(ctx context.Context, id int64) error {
	if _, err := s.getFunnel(ctx, id); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		settings, err := s.settingsRepo.WithTx(tx).LockForUpdate(ctx)
		if err != nil {
			return fmt.Errorf("failed to lock pipeline settings: %w", err)
		}

		funnel, err := s.funnelRepo.WithTx(tx).GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get funnel: %w", err)
		}
		if funnel.IsDefault || (settings.DefaultFunnelID != nil && *settings.DefaultFunnelID == id) {
			return ErrDefaultFunnelDelete
		}

		deals, err := s.dealRepo.WithTx(tx).CountByFunnel(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to count funnel deals: %w", err)
		}
		if deals > 0 {
			return ErrFunnelHasDeals
		}

		if err := s.metricsRepo.WithTx(tx).DeleteByFunnel(ctx, id); err != nil {
			return fmt.Errorf("failed to delete stage metrics: %w", err)
		}
		if err := s.stageRepo.WithTx(tx).DeleteByFunnel(ctx, id); err != nil {
			return fmt.Errorf("failed to delete stages: %w", err)
		}
		if err := s.funnelRepo.WithTx(tx).Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete funnel: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("funnel deleted", zap.Int64("funnel_id", id))
	return nil
}

// GetByID returns the funnel with its stages in order
func (s *FunnelService) GetByID(ctx context.Context, id int64) (*domain.FunnelDTO, error) {
	funnel, err := s.getFunnel(ctx, id)
	if err != nil {
		return nil, err
	}
	stages, err := s.stageRepo.ListByFunnel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	dto := mapper.ToFunnelDTO(funnel, stages)
	return &dto, nil
}

// List returns all funnels, default first
func (s *FunnelService) List(ctx context.Context) ([]domain.FunnelDTO, error) {
	funnels, err := s.funnelRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list funnels: %w", err)
	}

	dtos := make([]domain.FunnelDTO, 0, len(funnels))
	for i := range funnels {
		stages, err := s.stageRepo.ListByFunnel(ctx, funnels[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list stages: %w", err)
		}
		dtos = append(dtos, mapper.ToFunnelDTO(&funnels[i], stages))
	}
	return dtos, nil
}

// GetDefault returns the default funnel, falling back to the oldest funnel
// when no default was ever set
func (s *FunnelService) GetDefault(ctx context.Context) (*domain.FunnelDTO, error) {
	funnel, err := loadDefaultFunnel(ctx, s.settingsRepo, s.funnelRepo)
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, funnel.ID)
}

// loadDefaultFunnel resolves the default pointer, falling back to the oldest funnel
func loadDefaultFunnel(ctx context.Context, settingsRepo *repository.PipelineSettingsRepository, funnelRepo *repository.FunnelRepository) (*domain.Funnel, error) {
	settings, err := settingsRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline settings: %w", err)
	}

	if settings.DefaultFunnelID != nil {
		funnel, err := funnelRepo.GetByID(ctx, *settings.DefaultFunnelID)
		if err == nil {
			return funnel, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to get default funnel: %w", err)
		}
	}

	funnel, err := funnelRepo.GetOldest(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFunnelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oldest funnel: %w", err)
	}
	return funnel, nil
}

// AddStage appends a stage to the funnel, or places it at the requested order index
func (s *FunnelService) AddStage(ctx context.Context, funnelID int64, req *domain.CreateStageRequest) (*domain.StageDTO, error) {
	key := strings.TrimSpace(req.StageKey)
	if key == "" {
		return nil, ErrStageKeyRequired
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	semantic := req.SemanticID
	if semantic == "" {
		semantic = domain.SemanticInProgress
	}
	if !semantic.IsValid() {
		return nil, ErrInvalidSemanticID
	}
	if req.OrderIndex != nil && *req.OrderIndex < 0 {
		return nil, ErrInvalidOrderIndex
	}

	if _, err := s.getFunnel(ctx, funnelID); err != nil {
		return nil, err
	}

	stage := &domain.Stage{
		FunnelID:    funnelID,
		StageKey:    key,
		Name:        name,
		Label:       req.Label,
		TextColor:   req.TextColor,
		BgColor:     req.BgColor,
		BorderColor: req.BorderColor,
		SemanticID:  semantic,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stageRepo := s.stageRepo.WithTx(tx)

		keyTaken, err := stageRepo.ExistsKey(ctx, funnelID, key)
		if err != nil {
			return fmt.Errorf("failed to check stage key: %w", err)
		}
		if keyTaken {
			return ErrStageKeyTaken
		}

		if req.OrderIndex == nil {
			maxOrder, err := stageRepo.GetMaxOrderIndex(ctx, funnelID)
			if err != nil {
				return fmt.Errorf("failed to get max order index: %w", err)
			}
			stage.OrderIndex = maxOrder + 1
		} else {
			stage.OrderIndex = *req.OrderIndex
			orderTaken, err := stageRepo.ExistsOrderIndex(ctx, funnelID, stage.OrderIndex)
			if err != nil {
				return fmt.Errorf("failed to check order index: %w", err)
			}
			if orderTaken {
				return ErrStageOrderTaken
			}
		}

		if err := stageRepo.Create(ctx, stage); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: stage key or order index already used", ErrConflict)
			}
			return fmt.Errorf("failed to create stage: %w", err)
		}
		if err := s.metricsRepo.WithTx(tx).Create(ctx, &domain.StageMetrics{StageID: stage.ID}); err != nil {
			return fmt.Errorf("failed to create stage metrics: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stage added",
		zap.Int64("funnel_id", funnelID),
		zap.Int64("stage_id", stage.ID),
		zap.String("stage_key", key),
		zap.Int("order_index", stage.OrderIndex))

	dto := mapper.ToStageDTO(stage)
	return &dto, nil
}

// UpdateStage changes a stage's presentation and semantic classification.
// Ordering only changes through ReorderStages.
func (s *FunnelService) UpdateStage(ctx context.Context, funnelID, stageID int64, req *domain.UpdateStageRequest) (*domain.StageDTO, error) {
	stage, err := s.getStage(ctx, s.stageRepo, funnelID, stageID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		updates["name"] = name
	}
	if req.Label != nil {
		updates["label"] = *req.Label
	}
	if req.TextColor != nil {
		updates["text_color"] = *req.TextColor
	}
	if req.BgColor != nil {
		updates["bg_color"] = *req.BgColor
	}
	if req.BorderColor != nil {
		updates["border_color"] = *req.BorderColor
	}
	if req.SemanticID != nil {
		if !req.SemanticID.IsValid() {
			return nil, ErrInvalidSemanticID
		}
		updates["semantic_id"] = *req.SemanticID
	}

	if len(updates) > 0 {
		if err := s.stageRepo.Update(ctx, stage.ID, updates); err != nil {
			return nil, fmt.Errorf("failed to update stage: %w", err)
		}
		stage, err = s.stageRepo.GetByID(ctx, stage.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload stage: %w", err)
		}
	}

	dto := mapper.ToStageDTO(stage)
	return &dto, nil
}

// DeleteStage moves every deal on the stage to the funnel's first remaining
// stage, recording a stage change for each, then removes the stage and its metrics
func (s *FunnelService) DeleteStage(ctx context.Context, funnelID, stageID, actor int64) error {
	var migrated int

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stageRepo := s.stageRepo.WithTx(tx)
		dealRepo := s.dealRepo.WithTx(tx)

		stage, err := s.getStage(ctx, stageRepo, funnelID, stageID)
		if err != nil {
			return err
		}

		deals, err := dealRepo.ListByStage(ctx, stage.ID)
		if err != nil {
			return fmt.Errorf("failed to list stage deals: %w", err)
		}

		target, err := stageRepo.GetFirst(ctx, funnelID, stage.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to find target stage: %w", err)
		}
		if target == nil && len(deals) > 0 {
			return ErrLastStageHasDeals
		}

		if len(deals) > 0 {
			now := time.Now().UTC()
			entries := make([]domain.DealHistoryEntry, 0, len(deals))
			for _, deal := range deals {
				if err := dealRepo.Update(ctx, deal.ID, map[string]interface{}{
					"stage_id":    target.ID,
					"moved_at":    now,
					"moved_by":    actor,
					"modified_by": actor,
				}); err != nil {
					return fmt.Errorf("failed to move deal %d: %w", deal.ID, err)
				}
				entries = append(entries, newHistoryEntry(deal.ID, historyFieldStage, domain.ChangeTypeStageChange,
					idString(stage.ID), idString(target.ID), actor, now))
			}
			if err := recordHistory(ctx, s.historyRepo.WithTx(tx), entries...); err != nil {
				return err
			}
			migrated = len(deals)
		}

		if err := s.metricsRepo.WithTx(tx).DeleteByStage(ctx, stage.ID); err != nil {
			return fmt.Errorf("failed to delete stage metrics: %w", err)
		}
		if err := stageRepo.Delete(ctx, stage.ID); err != nil {
			return fmt.Errorf("failed to delete stage: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("stage deleted",
		zap.Int64("funnel_id", funnelID),
		zap.Int64("stage_id", stageID),
		zap.Int("migrated_deals", migrated))
	return nil
}

// ReorderStages assigns order indexes 0..N-1 following orderedIDs, which
// must name every stage of the funnel exactly once
func (s *FunnelService) ReorderStages(ctx context.Context, funnelID int64, orderedIDs []int64) ([]domain.StageDTO, error) {
	if _, err := s.getFunnel(ctx, funnelID); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stageRepo := s.stageRepo.WithTx(tx)

		stages, err := stageRepo.ListByFunnel(ctx, funnelID)
		if err != nil {
			return fmt.Errorf("failed to list stages: %w", err)
		}
		if len(stages) != len(orderedIDs) {
			return ErrReorderMismatch
		}

		pending := make(map[int64]bool, len(stages))
		for _, st := range stages {
			pending[st.ID] = true
		}
		for _, id := range orderedIDs {
			if !pending[id] {
				return ErrReorderMismatch
			}
			delete(pending, id)
		}

		return stageRepo.Reorder(ctx, funnelID, orderedIDs)
	})
	if err != nil {
		return nil, err
	}

	stages, err := s.stageRepo.ListByFunnel(ctx, funnelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}

	s.logger.Info("stages reordered", zap.Int64("funnel_id", funnelID), zap.Int("count", len(stages)))

	dtos := make([]domain.StageDTO, len(stages))
	for i := range stages {
		dtos[i] = mapper.ToStageDTO(&stages[i])
	}
	return dtos, nil
}

func (s *FunnelService) getFunnel(ctx context.Context, id int64) (*domain.Funnel, error) {
	funnel, err := s.funnelRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFunnelNotFound
		}
		return nil, fmt.Errorf("failed to get funnel: %w", err)
	}
	return funnel, nil
}

// getStage loads a stage and checks it belongs to the funnel
func (s *FunnelService) getStage(ctx context.Context, repo *repository.StageRepository, funnelID, stageID int64) (*domain.Stage, error) {
	stage, err := repo.GetByID(ctx, stageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStageNotFound
		}
		return nil, fmt.Errorf("failed to get stage: %w", err)
	}
	if stage.FunnelID != funnelID {
		return nil, ErrStageNotFound
	}
	return stage, nil
}
