package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/database"
	"github.com/straye-as/pipeline-api/internal/http/handler"
	"github.com/straye-as/pipeline-api/internal/http/middleware"
	"github.com/straye-as/pipeline-api/internal/http/router"
	"github.com/straye-as/pipeline-api/internal/jobs"
	"github.com/straye-as/pipeline-api/internal/logger"
	"github.com/straye-as/pipeline-api/internal/metrics"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Environment),
		zap.Int("port", cfg.App.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return err
	}

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
		log.Info("Schema auto-migrated")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipelineMetrics := metrics.NewPipelineMetrics(registry)

	// Repositories
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
	userRepo := repository.NewUserRepository(db)
	contactRepo := repository.NewContactRepository(db)

	directory := service.NewDirectoryResolver(userRepo, contactRepo)

	// Services
	funnelService := service.NewFunnelService(funnelRepo, stageRepo, stageMetricsRepo, settingsRepo, dealRepo, historyRepo, logger.Component(log, logger.ComponentFunnels), db)
	stageMetricsService := service.NewStageMetricsService(funnelRepo, stageRepo, dealRepo, stageMetricsRepo, pipelineMetrics, logger.Component(log, logger.ComponentMetrics), db)
	dealService := service.NewDealService(
		dealRepo,
		funnelRepo,
		stageRepo,
		settingsRepo,
		productRepo,
		historyRepo,
		participantRepo,
		fileRepo,
		commentRepo,
		sequenceRepo,
		directory,
		directory,
		pipelineMetrics,
		logger.Component(log, logger.ComponentDeals),
		db,
	)
	productService := service.NewDealProductService(dealRepo, productRepo, historyRepo, pipelineMetrics, logger.Component(log, logger.ComponentProducts), db)
	participantService := service.NewDealParticipantService(dealRepo, participantRepo, directory, directory, logger.Component(log, logger.ComponentParticipants), db)
	historyService := service.NewDealHistoryService(dealRepo, historyRepo, logger.Component(log, logger.ComponentHistory))
	fileService := service.NewDealFileService(dealRepo, fileRepo, historyRepo, logger.Component(log, logger.ComponentFiles), db)
	commentService := service.NewDealCommentService(dealRepo, commentRepo, logger.Component(log, logger.ComponentComments))

	// Middleware
	authMiddleware := auth.NewMiddleware(cfg, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)

	// Handlers
	funnelHandler := handler.NewFunnelHandler(funnelService, stageMetricsService, log)
	dealHandler := handler.NewDealHandler(dealService, productService, participantService, historyService, fileService, commentService, log)

	rt := router.NewRouter(
		cfg,
		logger.Component(log, logger.ComponentHTTP),
		db,
		registry,
		pipelineMetrics,
		authMiddleware,
		rateLimiter,
		funnelHandler,
		dealHandler,
	)

	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		jobsLog := logger.Component(log, logger.ComponentJobs)
		scheduler = jobs.NewScheduler(jobsLog)
		refreshJob := jobs.NewMetricsRefreshJob(stageMetricsService, jobsLog, cfg.Jobs.MetricsRefreshTimeoutDuration())
		if err := refreshJob.Register(scheduler, cfg.Jobs.MetricsRefreshCron); err != nil {
			return fmt.Errorf("failed to register %s job: %w", jobs.MetricsRefreshJobName, err)
		}
		scheduler.Start()
		log.Info("Scheduler started",
			zap.Strings("jobs", scheduler.JobNames()),
			zap.String("metrics_refresh_cron", cfg.Jobs.MetricsRefreshCron),
		)
	} else {
		log.Info("Background jobs disabled")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      rt.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		if scheduler != nil {
			<-scheduler.Stop().Done()
			log.Info("Scheduler stopped")
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Warn("Error closing database connection", zap.Error(err))
			}
		}

		log.Info("Server stopped gracefully")
	}

	return nil
}
