package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/dispatch-service/internal/api/http"
	"github.com/spec-kit/dispatch-service/internal/api/http/handlers"
	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/dispatching"
	"github.com/spec-kit/dispatch-service/internal/domainconfig"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/persistence"
	"github.com/spec-kit/dispatch-service/internal/recommender"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/internal/service"
	"github.com/spec-kit/dispatch-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	domains, err := domainconfig.Load(cfg.Dispatch.DomainConfigPath, cfg.Dispatch)
	if err != nil {
		logger.Fatal("failed to load domain config", zap.Error(err))
	}

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)
	projectRepo := repository.NewProjectRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	workload := dispatching.NewWorkloadTracker(ticketRepo)

	var locker recommender.Locker
	if cfg.Dispatch.DistributedLock {
		locker = redis.Locker("dispatch:")
	}
	pipeline := dispatching.NewModelPipeline(dispatching.PipelineConfig{
		DomainID:       domains.DefaultDomainID(),
		RetrainTimeout: cfg.Dispatch.RetrainTimeout,
	}, dispatching.PipelineDependencies{
		History: agentRepo,
		Domains: domains,
		Trainer: recommender.NewMatrixFactorizationTrainer(recommender.TrainingOptions{
			Rank:           cfg.Dispatch.Training.Rank,
			Epochs:         cfg.Dispatch.Training.Epochs,
			LearningRate:   cfg.Dispatch.Training.LearningRate,
			Regularization: cfg.Dispatch.Training.Regularization,
			Seed:           cfg.Dispatch.Training.Seed,
		}),
		Store:   recommender.NewFileStore(cfg.Dispatch.ModelDir, cfg.Dispatch.ModelRetainVersions, logger),
		Locker:  locker,
		Logger:  logger,
		Metrics: metrics,
	})
	defer pipeline.Close()

	fallback := dispatching.NewWorkloadOnlyStrategy(agentRepo, workload, domains)
	resolver := dispatching.NewResolver(domains,
		dispatching.NewMatrixFactorizationStrategy(dispatching.MatrixFactorizationConfig{
			WorkloadPenalty: cfg.Dispatch.WorkloadPenalty,
			Weights: dispatching.ScoringWeights{
				Affinity: cfg.Dispatch.AffinityWeight,
				Skill:    cfg.Dispatch.SkillWeight,
				Language: cfg.Dispatch.LanguageWeight,
				Region:   cfg.Dispatch.RegionWeight,
			},
		}, agentRepo, workload, domains, pipeline, logger),
		fallback,
		dispatching.NewZoneBasedStrategy(agentRepo, workload, domains),
	)
	if err := resolver.Validate(); err != nil {
		logger.Fatal("invalid dispatching configuration", zap.Error(err))
	}

	if cfg.Dispatch.Enabled {
		loadCtx, loadCancel := context.WithTimeout(ctx, cfg.Dispatch.RetrainTimeout)
		if err := pipeline.Load(loadCtx); err != nil {
			logger.Warn("dispatch model not loaded; recommendations fall back to workload", zap.Error(err))
		}
		loadCancel()
	}

	managers := service.NewProjectManagerService(service.ProjectManagerConfig{
		MaxProjectsPerManager: cfg.Dispatch.MaxProjectsPerManager,
		WorkloadWeight:        cfg.Dispatch.ManagerWorkloadWeight,
		SuccessWeight:         cfg.Dispatch.ManagerSuccessWeight,
	}, service.ProjectManagerDependencies{
		Agents:   agentRepo,
		Projects: projectRepo,
		Workload: workload,
		Logger:   logger,
	})

	dispatchService := service.NewDispatchingService(cfg.Dispatch.Enabled, service.DispatchDependencies{
		Tickets:    ticketRepo,
		Domains:    domains,
		Resolver:   resolver,
		Fallback:   fallback,
		Pipeline:   pipeline,
		Managers:   managers,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})

	historyService := service.NewHistoryService(historyRepo, dispatcher, logger)
	retrainWorker := worker.NewRetrainWorker(worker.RetrainWorkerConfig{
		RetrainInterval:         cfg.Dispatch.RetrainInterval,
		RetrainAfterResolutions: cfg.Dispatch.RetrainAfterResolutions,
		BacklogInterval:         cfg.Dispatch.BacklogInterval,
		BacklogBatchSize:        cfg.Dispatch.BacklogBatchSize,
		RetrainTimeout:          cfg.Dispatch.RetrainTimeout,
	}, dispatchService, dispatcher, logger)

	worker.StartEventSubscribers(
		historyService,
		service.NewNotificationService(dispatcher, logger, cfg.Notification),
		retrainWorker,
	)
	go retrainWorker.Run(ctx)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, dispatchService.ModelInfo),
		Dispatch: handlers.NewDispatchHandler(dispatchService, dispatcher),
		History:  handlers.NewHistoryHandler(historyService),
		Gatherer: registry,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
