package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/flowguard/flowguard/internal/api/routes"
	"github.com/flowguard/flowguard/internal/cache"
	"github.com/flowguard/flowguard/internal/config"
	"github.com/flowguard/flowguard/internal/inference"
	"github.com/flowguard/flowguard/internal/logger"
	"github.com/flowguard/flowguard/internal/report"
	"github.com/flowguard/flowguard/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP engine and the background pieces that share its lifetime.
type Server struct {
	Engine *gin.Engine
	cfg    config.Config
	sched  *scheduler.Scheduler
	cache  cache.Provider
}

// New builds the engine client, cache and report generator from cfg and
// registers the API on a fresh router.
func New(ctx context.Context, db *gorm.DB, cfg config.Config) (*Server, error) {
	deps, err := Dependencies(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithDependencies(db, cfg, deps)
}

// NewWithDependencies registers the API using caller-supplied collaborators.
func NewWithDependencies(db *gorm.DB, cfg config.Config, deps routes.Dependencies) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	sched, err := routes.Register(router, db, cfg, deps)
	if err != nil {
		if deps.Cache != nil {
			_ = deps.Cache.Close()
		}
		return nil, fmt.Errorf("register routes: %w", err)
	}
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	return &Server{Engine: router, cfg: cfg, sched: sched, cache: deps.Cache}, nil
}

// Dependencies wires the guarded engine client, the statistics cache and the
// optional report generator.
func Dependencies(ctx context.Context, cfg config.Config) (routes.Dependencies, error) {
	process := inference.NewProcessScorer(cfg.Engine.Command, cfg.Engine.Args...)
	if cfg.Engine.PredictTimeout > 0 {
		process.PredictTimeout = cfg.Engine.PredictTimeout
	}
	if cfg.Engine.TrainTimeout > 0 {
		process.TrainTimeout = cfg.Engine.TrainTimeout
	}

	deps := routes.Dependencies{
		Scorer: inference.NewGuardedScorer(process, inference.GuardOptions{
			RatePerSecond:          cfg.Engine.RatePerSecond,
			Burst:                  cfg.Engine.Burst,
			MaxConsecutiveFailures: cfg.Engine.BreakerFailures,
			OpenTimeout:            cfg.Engine.BreakerOpenTimeout,
		}),
	}

	if cfg.Cache.Addr != "" {
		rp, err := cache.NewRedisProvider(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			return routes.Dependencies{}, fmt.Errorf("connect statistics cache: %w", err)
		}
		deps.Cache = rp
	}

	if cfg.Report.Endpoint != "" {
		deps.Generator = report.NewChatGenerator(cfg.Report.Endpoint, cfg.Report.APIKey, cfg.Report.Model, cfg.Report.Timeout)
	}
	return deps, nil
}

// Run serves HTTP until ctx is canceled, then drains requests, stops the
// scheduler and releases the cache.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.cfg.HTTPPort),
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.sched != nil {
		s.sched.Start()
	}
	defer s.release()

	errCh := make(chan error, 1)
	go func() {
		logger.Log().WithField("addr", srv.Addr).Info("starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) release() {
	if s.sched != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		s.sched.Stop(ctx)
		cancel()
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			logger.Log().WithError(err).Warn("close statistics cache")
		}
	}
}
