package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/http/handler"
	"github.com/straye-as/pipeline-api/internal/metrics"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testActor int64 = 42

type testAPI struct {
	db     *gorm.DB
	router chi.Router
}

// newTestAPI wires both handlers on a fresh database and mounts them the
// same way the production router does
func newTestAPI(t *testing.T) *testAPI {
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
	directory := service.NewDirectoryResolver(repository.NewUserRepository(db), repository.NewContactRepository(db))

	funnelService := service.NewFunnelService(funnelRepo, stageRepo, stageMetricsRepo, settingsRepo, dealRepo, historyRepo, logger, db)
	metricsService := service.NewStageMetricsService(funnelRepo, stageRepo, dealRepo, stageMetricsRepo, pipelineMetrics, logger, db)
	dealService := service.NewDealService(dealRepo, funnelRepo, stageRepo, settingsRepo, productRepo, historyRepo,
		participantRepo, fileRepo, commentRepo, sequenceRepo, directory, directory, pipelineMetrics, logger, db)

	funnels := handler.NewFunnelHandler(funnelService, metricsService, logger)
	deals := handler.NewDealHandler(
		dealService,
		service.NewDealProductService(dealRepo, productRepo, historyRepo, pipelineMetrics, logger, db),
		service.NewDealParticipantService(dealRepo, participantRepo, directory, directory, logger, db),
		service.NewDealHistoryService(dealRepo, historyRepo, logger),
		service.NewDealFileService(dealRepo, fileRepo, historyRepo, logger, db),
		service.NewDealCommentService(dealRepo, commentRepo, logger),
		logger,
	)

	r := chi.NewRouter()
	r.Route("/funnels", func(r chi.Router) {
		r.Get("/", funnels.List)
		r.Post("/", funnels.Create)
		r.Get("/default", funnels.GetDefault)
		r.Get("/{id}", funnels.GetByID)
		r.Put("/{id}", funnels.Update)
		r.Delete("/{id}", funnels.Delete)
		r.Post("/{id}/default", funnels.SetDefault)
		r.Post("/{id}/stages", funnels.AddStage)
		r.Put("/{id}/stages/order", funnels.ReorderStages)
		r.Put("/{id}/stages/{stageId}", funnels.UpdateStage)
		r.Delete("/{id}/stages/{stageId}", funnels.DeleteStage)
		r.Get("/{id}/metrics", funnels.GetMetrics)
		r.Post("/{id}/metrics/refresh", funnels.RefreshMetrics)
	})
	r.Route("/deals", func(r chi.Router) {
		r.Get("/", deals.List)
		r.Post("/", deals.Create)
		r.Get("/{id}", deals.GetByID)
		r.Put("/{id}", deals.Update)
		r.Delete("/{id}", deals.Delete)
		r.Post("/{id}/move", deals.Move)
		r.Get("/{id}/history", deals.History)
		r.Get("/{id}/products", deals.ListProducts)
		r.Post("/{id}/products", deals.AddProduct)
		r.Delete("/{id}/products/{productId}", deals.RemoveProduct)
		r.Get("/{id}/participants", deals.ListParticipants)
		r.Post("/{id}/participants", deals.AddParticipant)
		r.Delete("/{id}/participants/{participantId}", deals.RemoveParticipant)
		r.Get("/{id}/files", deals.ListFiles)
		r.Post("/{id}/files", deals.AddFile)
		r.Delete("/{id}/files/{fileId}", deals.DeleteFile)
		r.Get("/{id}/comments", deals.ListComments)
		r.Post("/{id}/comments", deals.AddComment)
		r.Delete("/{id}/comments/{commentId}", deals.DeleteComment)
	})

	return &testAPI{db: db, router: r}
}

// do sends a request as testActor. A nil body sends no payload; a string is
// sent verbatim; anything else is JSON encoded.
func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return a.doAs(t, testActor, method, path, body)
}

func (a *testAPI) doAs(t *testing.T, actor int64, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		var err error
		payload, err = json.Marshal(b)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if actor > 0 {
		req = req.WithContext(auth.WithActor(context.Background(), &auth.Actor{UserID: actor}))
	}

	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func requireStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rr.Code, rr.Body.String())
}
