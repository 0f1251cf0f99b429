package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/metrics"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testActor int64 = 7

// testServices wires every pipeline service against one sqlite database
type testServices struct {
	db           *gorm.DB
	metrics      *metrics.PipelineMetrics
	funnels      *FunnelService
	deals        *DealService
	products     *DealProductService
	participants *DealParticipantService
	history      *DealHistoryService
	files        *DealFileService
	comments     *DealCommentService
	stageMetrics *StageMetricsService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.NewRegistry())

	funnelRepo := repository.NewFunnelRepository(db)
	stageRepo := repository.NewStageRepository(db)
	settingsRepo := repository.NewPipelineSettingsRepository(db)
	stageMetricsRepo := repository.NewStageMetricsRepository(db)
	dealRepo := repository.NewDealRepository(db)
	productRepo := repository.NewDealProductRepository(db)
	historyRepo := repository.NewDealHistoryRepository(db)
	participantRepo := repository.NewDealParticipantRepository(db)
	fileRepo := repository.NewDealFileRepository(db)
	commentRepo := repository.NewDealCommentRepository(db)
	sequenceRepo := repository.NewNumberSequenceRepository(db)
	directory := NewDirectoryResolver(repository.NewUserRepository(db), repository.NewContactRepository(db))

	return &testServices{
		db:      db,
		metrics: pipelineMetrics,
		funnels: NewFunnelService(funnelRepo, stageRepo, stageMetricsRepo, settingsRepo, dealRepo, historyRepo, logger, db),
		deals: NewDealService(dealRepo, funnelRepo, stageRepo, settingsRepo, productRepo, historyRepo,
			participantRepo, fileRepo, commentRepo, sequenceRepo, directory, directory, pipelineMetrics, logger, db),
		products:     NewDealProductService(dealRepo, productRepo, historyRepo, pipelineMetrics, logger, db),
		participants: NewDealParticipantService(dealRepo, participantRepo, directory, directory, logger, db),
		history:      NewDealHistoryService(dealRepo, historyRepo, logger),
		files:        NewDealFileService(dealRepo, fileRepo, historyRepo, logger, db),
		comments:     NewDealCommentService(dealRepo, commentRepo, logger),
		stageMetrics: NewStageMetricsService(funnelRepo, stageRepo, dealRepo, stageMetricsRepo, pipelineMetrics, logger, db),
	}
}

// createDefaultFunnel creates the first funnel, which becomes the default
// and receives the five system stages
func (s *testServices) createDefaultFunnel(t *testing.T, name string) *domain.FunnelDTO {
	t.Helper()
	funnel, err := s.funnels.Create(context.Background(), &domain.CreateFunnelRequest{Name: name}, testActor)
	require.NoError(t, err)
	require.True(t, funnel.IsDefault)
	require.Len(t, funnel.Stages, len(systemStages))
	return funnel
}

func (s *testServices) createDeal(t *testing.T, title string) *domain.DealDTO {
	t.Helper()
	deal, err := s.deals.Create(context.Background(), &domain.CreateDealRequest{Title: title}, testActor)
	require.NoError(t, err)
	return deal
}

func (s *testServices) historyOf(t *testing.T, dealID int64) []domain.DealHistoryEntry {
	t.Helper()
	var entries []domain.DealHistoryEntry
	require.NoError(t, s.db.Where("deal_id = ?", dealID).Order("id ASC").Find(&entries).Error)
	return entries
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(model).Where(query, args...).Count(&count).Error)
	return count
}

func int64Ptr(v int64) *int64 { return &v }

func boolPtr(v bool) *bool { return &v }

func float64Ptr(v float64) *float64 { return &v }

func stringPtr(v string) *string { return &v }
