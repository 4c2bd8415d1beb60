package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/flowguard/flowguard/internal/api/handlers"
	"github.com/flowguard/flowguard/internal/api/middleware"
	"github.com/flowguard/flowguard/internal/cache"
	"github.com/flowguard/flowguard/internal/config"
	"github.com/flowguard/flowguard/internal/inference"
	"github.com/flowguard/flowguard/internal/report"
	"github.com/flowguard/flowguard/internal/scheduler"
	"github.com/flowguard/flowguard/internal/services"
)

// Dependencies are the external collaborators the API is built on.
type Dependencies struct {
	Scorer inference.Scorer
	// Cache backs the statistics cache; nil keeps entries in process.
	Cache cache.Provider
	// Generator writes attack reports; nil answers 503 on report requests.
	Generator report.Generator
}

// Register wires services and handlers onto router. The returned scheduler is
// nil when background jobs are disabled; the caller owns Start and Stop.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config, deps Dependencies) (*scheduler.Scheduler, error) {
	if deps.Scorer == nil {
		return nil, fmt.Errorf("register routes: scorer is required")
	}
	provider := deps.Cache
	if provider == nil {
		provider = cache.NewMemoryProvider(cfg.Cache.TTL)
	}

	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Recovery(cfg.Debug),
		middleware.SecurityHeaders(cfg.Environment == "development"),
	)

	stats := services.NewStatisticsService(db, provider, cfg.Cache.TTL, cfg.Cache.Prefix)
	registry := services.NewModelService(db)
	experiments := services.NewExperimentService(db)
	datasets := services.NewDatasetService(db)
	logs := services.NewTrafficLogService(db)
	alerts := services.NewAlertService(db, stats)
	notifications := services.NewNotificationService(db)
	analysis := services.NewAnalysisService(db, deps.Scorer, notifications, registry, stats, services.AnalysisOptions{
		BatchWorkers: cfg.Pipeline.BatchWorkers,
		StoreTimeout: cfg.Pipeline.StoreTimeout,
	})
	training := services.NewTrainingService(deps.Scorer, registry, experiments, datasets, cfg.Engine.ModelDir)
	reports := report.NewService(deps.Generator)

	var breaker handlers.BreakerReporter
	if b, ok := deps.Scorer.(handlers.BreakerReporter); ok {
		breaker = b
	}
	health := handlers.NewHealthHandler(db, breaker)
	router.GET("/health", health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.GET("/health", health.Check)

	tenant := api.Group("")
	tenant.Use(middleware.Tenant())

	trafficHandler := handlers.NewTrafficHandler(analysis, registry, logs, stats)
	tenant.POST("/traffic/analyze", trafficHandler.Analyze)
	tenant.POST("/traffic/analyze/batch", trafficHandler.AnalyzeBatch)
	tenant.POST("/traffic/logs", trafficHandler.Ingest)
	tenant.GET("/traffic/logs", trafficHandler.ListLogs)
	tenant.GET("/traffic/logs/:id", trafficHandler.GetLog)
	tenant.GET("/traffic/patterns", trafficHandler.Patterns)

	alertHandler := handlers.NewAlertHandler(alerts, stats, reports)
	tenant.GET("/alerts", alertHandler.List)
	tenant.GET("/alerts/statistics", alertHandler.Statistics)
	tenant.GET("/alerts/:id", alertHandler.Get)
	tenant.POST("/alerts/:id/resolve", alertHandler.Resolve)
	tenant.POST("/alerts/:id/analysis", alertHandler.Analysis)

	modelHandler := handlers.NewModelHandler(registry, experiments, training)
	tenant.GET("/models", modelHandler.List)
	tenant.POST("/models", modelHandler.Create)
	tenant.POST("/models/train", modelHandler.Train)
	tenant.GET("/models/active", modelHandler.Active)
	tenant.GET("/models/:id", modelHandler.Get)
	tenant.DELETE("/models/:id", modelHandler.Delete)
	tenant.POST("/models/:id/activate", modelHandler.Activate)
	tenant.POST("/models/:id/deactivate", modelHandler.Deactivate)
	tenant.GET("/models/:id/experiments", modelHandler.Experiments)

	experimentHandler := handlers.NewExperimentHandler(experiments)
	tenant.GET("/experiments", experimentHandler.List)
	tenant.GET("/experiments/:id", experimentHandler.Get)

	datasetHandler := handlers.NewDatasetHandler(datasets)
	tenant.GET("/datasets", datasetHandler.List)
	tenant.POST("/datasets", datasetHandler.Create)
	tenant.GET("/datasets/:id", datasetHandler.Get)
	tenant.DELETE("/datasets/:id", datasetHandler.Delete)
	tenant.POST("/datasets/:id/profile", datasetHandler.Profile)

	notificationHandler := handlers.NewNotificationHandler(notifications)
	tenant.GET("/notifications", notificationHandler.List)
	tenant.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)
	tenant.POST("/notifications/:id/read", notificationHandler.MarkAsRead)

	providerHandler := handlers.NewNotificationProviderHandler(notifications)
	tenant.GET("/notifications/providers", providerHandler.List)
	tenant.POST("/notifications/providers", providerHandler.Create)
	tenant.PUT("/notifications/providers/:id", providerHandler.Update)
	tenant.DELETE("/notifications/providers/:id", providerHandler.Delete)
	tenant.POST("/notifications/providers/test", providerHandler.Test)
	tenant.GET("/notifications/templates", providerHandler.Templates)
	tenant.POST("/notifications/providers/preview", providerHandler.Preview)

	if !cfg.Scheduler.Enabled {
		return nil, nil
	}
	sched, err := scheduler.New(cfg.Scheduler, registry, experiments, stats)
	if err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}
	return sched, nil
}
