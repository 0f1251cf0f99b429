package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/database"
	"github.com/straye-as/pipeline-api/internal/http/handler"
	"github.com/straye-as/pipeline-api/internal/http/middleware"
	"github.com/straye-as/pipeline-api/internal/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Router struct {
	cfg            *config.Config
	logger         *zap.Logger
	db             *gorm.DB
	gatherer       prometheus.Gatherer
	metrics        *metrics.PipelineMetrics
	authMiddleware *auth.Middleware
	rateLimiter    *middleware.RateLimiter
	funnelHandler  *handler.FunnelHandler
	dealHandler    *handler.DealHandler
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	gatherer prometheus.Gatherer,
	pipelineMetrics *metrics.PipelineMetrics,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	funnelHandler *handler.FunnelHandler,
	dealHandler *handler.DealHandler,
) *Router {
	return &Router{
		cfg:            cfg,
		logger:         logger,
		db:             db,
		gatherer:       gatherer,
		metrics:        pipelineMetrics,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		funnelHandler:  funnelHandler,
		dealHandler:    dealHandler,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer(rt.logger))
	r.Use(middleware.Logging(rt.logger, rt.metrics))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP)

	// Liveness
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Readiness with connection pool stats
	r.Get("/health/db", rt.databaseHealth)

	if rt.cfg.Server.EnableMetrics && rt.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authMiddleware.Authenticate)
		r.Use(rt.rateLimiter.LimitByActor)

		r.Route("/funnels", func(r chi.Router) {
			r.Get("/", rt.funnelHandler.List)
			r.Post("/", rt.funnelHandler.Create)
			r.Get("/default", rt.funnelHandler.GetDefault)
			r.Get("/{id}", rt.funnelHandler.GetByID)
			r.Put("/{id}", rt.funnelHandler.Update)
			r.Delete("/{id}", rt.funnelHandler.Delete)
			r.Post("/{id}/default", rt.funnelHandler.SetDefault)

			// Stages
			r.Post("/{id}/stages", rt.funnelHandler.AddStage)
			r.Put("/{id}/stages/order", rt.funnelHandler.ReorderStages)
			r.Put("/{id}/stages/{stageId}", rt.funnelHandler.UpdateStage)
			r.Delete("/{id}/stages/{stageId}", rt.funnelHandler.DeleteStage)

			// Metrics cache
			r.Get("/{id}/metrics", rt.funnelHandler.GetMetrics)
			r.Post("/{id}/metrics/refresh", rt.funnelHandler.RefreshMetrics)
		})

		r.Route("/deals", func(r chi.Router) {
			r.Get("/", rt.dealHandler.List)
			r.Post("/", rt.dealHandler.Create)
			r.Get("/{id}", rt.dealHandler.GetByID)
			r.Put("/{id}", rt.dealHandler.Update)
			r.Delete("/{id}", rt.dealHandler.Delete)
			r.Post("/{id}/move", rt.dealHandler.Move)
			r.Get("/{id}/history", rt.dealHandler.History)

			// Sub-resources
			r.Get("/{id}/products", rt.dealHandler.ListProducts)
			r.Post("/{id}/products", rt.dealHandler.AddProduct)
			r.Delete("/{id}/products/{productId}", rt.dealHandler.RemoveProduct)

			r.Get("/{id}/participants", rt.dealHandler.ListParticipants)
			r.Post("/{id}/participants", rt.dealHandler.AddParticipant)
			r.Delete("/{id}/participants/{participantId}", rt.dealHandler.RemoveParticipant)

			r.Get("/{id}/files", rt.dealHandler.ListFiles)
			r.Post("/{id}/files", rt.dealHandler.AddFile)
			r.Delete("/{id}/files/{fileId}", rt.dealHandler.DeleteFile)

			r.Get("/{id}/comments", rt.dealHandler.ListComments)
			r.Post("/{id}/comments", rt.dealHandler.AddComment)
			r.Delete("/{id}/comments/{commentId}", rt.dealHandler.DeleteComment)
		})
	})

	return r
}

func (rt *Router) databaseHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := database.HealthCheck(r.Context(), rt.db); err != nil {
		rt.logger.Error("database health check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "unhealthy",
			"error":   err.Error(),
			"service": "database",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "healthy",
		"service": "database",
		"driver":  rt.db.Dialector.Name(),
		"stats":   database.Stats(rt.db),
	})
}
