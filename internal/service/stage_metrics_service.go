package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/metrics"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StageMetricsService recomputes the per-stage aggregate cache. Nothing
// refreshes the cache implicitly; callers or the scheduled job do.
type StageMetricsService struct {
	funnelRepo  *repository.FunnelRepository
	stageRepo   *repository.StageRepository
	dealRepo    *repository.DealRepository
	metricsRepo *repository.StageMetricsRepository
	metrics     *metrics.PipelineMetrics
	logger      *zap.Logger
	db          *gorm.DB
	now         func() time.Time
}

func NewStageMetricsService(
	funnelRepo *repository.FunnelRepository,
	stageRepo *repository.StageRepository,
	dealRepo *repository.DealRepository,
	metricsRepo *repository.StageMetricsRepository,
	pipelineMetrics *metrics.PipelineMetrics,
	logger *zap.Logger,
	db *gorm.DB,
) *StageMetricsService {
	return &StageMetricsService{
		funnelRepo:  funnelRepo,
		stageRepo:   stageRepo,
		dealRepo:    dealRepo,
		metricsRepo: metricsRepo,
		metrics:     pipelineMetrics,
		logger:      logger,
		db:          db,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RefreshFunnel recomputes the aggregates of every stage of the funnel
func (s *StageMetricsService) RefreshFunnel(ctx context.Context, funnelID int64) ([]domain.StageMetricsDTO, error) {
	if _, err := s.funnelRepo.GetByID(ctx, funnelID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFunnelNotFound
		}
		return nil, fmt.Errorf("failed to get funnel: %w", err)
	}

	refreshedAt := s.now()
	var stages []domain.Stage
	var rows []domain.StageMetrics

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		stages, err = s.stageRepo.WithTx(tx).ListByFunnel(ctx, funnelID)
		if err != nil {
			return fmt.Errorf("failed to list stages: %w", err)
		}
		deals, err := s.dealRepo.WithTx(tx).ListByFunnel(ctx, funnelID)
		if err != nil {
			return fmt.Errorf("failed to list deals: %w", err)
		}

		rows = computeStageMetrics(stages, deals, refreshedAt)

		metricsRepo := s.metricsRepo.WithTx(tx)
		for i := range rows {
			if err := metricsRepo.Save(ctx, &rows[i]); err != nil {
				return fmt.Errorf("failed to save stage metrics: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("stage metrics refreshed", zap.Int64("funnel_id", funnelID), zap.Int("stages", len(stages)))

	dtos := make([]domain.StageMetricsDTO, len(stages))
	for i := range stages {
		dtos[i] = mapper.ToStageMetricsDTO(&stages[i], &rows[i])
	}
	return dtos, nil
}

// RefreshAll refreshes every funnel. A failing funnel does not stop the others.
func (s *StageMetricsService) RefreshAll(ctx context.Context) error {
	start := time.Now()
	defer func() { s.metrics.ObserveMetricsRefresh(time.Since(start)) }()

	funnels, err := s.funnelRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list funnels: %w", err)
	}

	var errs []error
	for _, funnel := range funnels {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.RefreshFunnel(ctx, funnel.ID); err != nil {
			s.logger.Warn("failed to refresh funnel metrics", zap.Int64("funnel_id", funnel.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("funnel %d: %w", funnel.ID, err))
		}
	}

	s.logger.Info("stage metrics refresh completed",
		zap.Int("funnels", len(funnels)),
		zap.Int("failed", len(errs)),
		zap.Duration("duration", time.Since(start)))

	return errors.Join(errs...)
}

// GetFunnelMetrics returns the cached aggregates in stage order. Stages that
// were never refreshed come back empty.
func (s *StageMetricsService) GetFunnelMetrics(ctx context.Context, funnelID int64) ([]domain.StageMetricsDTO, error) {
	if _, err := s.funnelRepo.GetByID(ctx, funnelID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFunnelNotFound
		}
		return nil, fmt.Errorf("failed to get funnel: %w", err)
	}

	stages, err := s.stageRepo.ListByFunnel(ctx, funnelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}

	ids := make([]int64, len(stages))
	for i, stage := range stages {
		ids[i] = stage.ID
	}
	rows, err := s.metricsRepo.ListByStageIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage metrics: %w", err)
	}
	byStage := make(map[int64]*domain.StageMetrics, len(rows))
	for i := range rows {
		byStage[rows[i].StageID] = &rows[i]
	}

	dtos := make([]domain.StageMetricsDTO, len(stages))
	for i := range stages {
		dtos[i] = mapper.ToStageMetricsDTO(&stages[i], byStage[stages[i].ID])
	}
	return dtos, nil
}

// computeStageMetrics aggregates deals per stage. Stages must be ordered by
// order index; the result is aligned with them.
func computeStageMetrics(stages []domain.Stage, deals []domain.Deal, now time.Time) []domain.StageMetrics {
	orderOf := make(map[int64]int, len(stages))
	for _, stage := range stages {
		orderOf[stage.ID] = stage.OrderIndex
	}

	type bucket struct {
		count    int
		total    decimal.Decimal
		dwellSum float64
	}
	buckets := make(map[int64]*bucket, len(stages))
	for _, stage := range stages {
		buckets[stage.ID] = &bucket{total: decimal.Zero}
	}

	for _, deal := range deals {
		b, ok := buckets[deal.StageID]
		if !ok {
			continue
		}
		b.count++
		b.total = b.total.Add(deal.Amount)

		since := deal.CreatedAt
		if deal.MovedAt != nil {
			since = *deal.MovedAt
		}
		if days := now.Sub(since).Hours() / 24; days > 0 {
			b.dwellSum += days
		}
	}

	total := len(deals)
	rows := make([]domain.StageMetrics, len(stages))
	for i, stage := range stages {
		b := buckets[stage.ID]

		reached := 0
		for _, deal := range deals {
			if order, ok := orderOf[deal.StageID]; ok && order >= stage.OrderIndex {
				reached++
			}
		}

		row := domain.StageMetrics{
			StageID:     stage.ID,
			DealsCount:  b.count,
			TotalAmount: b.total,
			RefreshedAt: &now,
		}
		if b.count > 0 {
			row.AvgDaysInStage = round2(b.dwellSum / float64(b.count))
		}
		if total > 0 {
			row.ConversionPercent = round2(float64(reached) * 100 / float64(total))
		}
		rows[i] = row
	}
	return rows
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
