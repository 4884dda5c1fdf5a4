package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/flexsched/engine/internal/handler"
	"github.com/flexsched/engine/internal/middleware"
	"github.com/flexsched/engine/internal/repository"
	"github.com/flexsched/engine/internal/service"
	"github.com/flexsched/engine/pkg/cache"
	"github.com/flexsched/engine/pkg/config"
	"github.com/flexsched/engine/pkg/database"
	"github.com/flexsched/engine/pkg/logger"
	corsmiddleware "github.com/flexsched/engine/pkg/middleware/cors"
	reqidmiddleware "github.com/flexsched/engine/pkg/middleware/requestid"
	"github.com/flexsched/engine/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	historyStore, err := buildHistoryStore(cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init history backend", "backend", cfg.History.Backend, "error", err)
	}
	history := service.NewResolutionHistoryService(historyStore, logr)

	evaluator := service.NewParallelEvaluator(service.EvaluatorConfig{
		Workers:     cfg.Engine.Workers,
		QueueSize:   cfg.Engine.QueueSize,
		BatchSize:   cfg.Engine.BatchSize,
		TaskTimeout: cfg.Engine.TaskTimeout,
		Logger:      logr,
		Metrics:     metrics,
	})
	evaluator.Start(context.Background())
	defer evaluator.Stop()

	var cacheRepo *repository.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, evaluation cache disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(client, logr)
			defer client.Close() //nolint:errcheck
		}
	}

	analyzer := service.NewConflictAnalyzer(evaluator, history, logr)
	strategies := service.NewResolutionStrategies(logr)
	resolver := service.NewSmartConflictResolver(analyzer, strategies, history, service.ResolverConfig{
		ConfidenceThreshold: cfg.Engine.ConfidenceThreshold,
		Logger:              logr,
		Metrics:             metrics,
	})
	evaluation := service.NewEvaluationService(service.EvaluationConfig{
		Evaluator:    evaluator,
		Cache:        cacheRepo,
		Metrics:      metrics,
		Logger:       logr,
		CacheTTL:     cfg.Cache.TTL,
		CacheEnabled: cfg.Cache.Enabled && cacheRepo != nil,
	})
	templates := service.NewConstraintTemplateSystem(logr)

	evaluationHandler := handler.NewEvaluationHandler(evaluation, evaluator, validate)
	resolutionHandler := handler.NewResolutionHandler(analyzer, resolver, validate)
	templateHandler := handler.NewTemplateHandler(templates, validate)
	historyHandler := handler.NewHistoryHandler(history)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/evaluations", evaluationHandler.Evaluate)
		api.DELETE("/evaluations/cache/:id", evaluationHandler.InvalidateCache)
		api.GET("/evaluations/pool", evaluationHandler.PoolMetrics)
		api.POST("/evaluations/pool/reset", evaluationHandler.ResetPoolMetrics)

		api.POST("/conflicts/detect", resolutionHandler.Detect)
		api.POST("/conflicts/analyze", resolutionHandler.Analyze)
		api.POST("/resolutions", resolutionHandler.Resolve)
		api.POST("/resolutions/outcome", resolutionHandler.RecordOutcome)

		api.POST("/templates", templateHandler.Register)
		api.GET("/templates", templateHandler.List)
		api.GET("/templates/:id", templateHandler.Get)
		api.GET("/templates/:id/export", templateHandler.Export)
		api.POST("/templates/import", templateHandler.Import)
		api.POST("/templates/:id/clone", templateHandler.Clone)
		api.POST("/templates/:id/constraints", templateHandler.Instantiate)
		api.POST("/templates/:id/variations", templateHandler.Variations)

		api.GET("/history/report", historyHandler.Report)
		api.GET("/history/report.csv", historyHandler.ReportCSV)
		api.GET("/history/report.pdf", historyHandler.ReportPDF)
		api.GET("/history/training-data", historyHandler.TrainingData)
		api.GET("/history/recommendations", historyHandler.Recommendations)

		api.GET("/metrics/snapshot", metricsHandler.Snapshot)
	}

	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("engine starting", "addr", addr, "env", cfg.Env, "workers", cfg.Engine.Workers)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("engine failed", "error", err)
	}
}

// buildHistoryStore selects the ledger backend. Postgres when configured,
// otherwise a JSON file under the local storage directory.
func buildHistoryStore(cfg *config.Config, logr *zap.Logger) (service.HistoryStore, error) {
	if cfg.History.Backend == config.HistoryBackendPostgres {
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, err
		}
		return repository.NewHistoryRepository(db), nil
	}
	store, err := storage.NewLocalStorage(cfg.History.Dir)
	if err != nil {
		return nil, err
	}
	return repository.NewFileHistoryRepository(store, cfg.History.File, logr), nil
}
