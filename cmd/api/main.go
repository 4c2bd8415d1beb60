package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/flowguard/flowguard/internal/config"
	"github.com/flowguard/flowguard/internal/database"
	"github.com/flowguard/flowguard/internal/logger"
	"github.com/flowguard/flowguard/internal/metrics"
	"github.com/flowguard/flowguard/internal/server"
	"github.com/flowguard/flowguard/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		log.Fatalf("create log directory: %v", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "flowguard.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	defer rotator.Close()

	// Log to both stdout and file
	mw := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(mw)
	logger.Init(cfg.Debug, mw)
	if !cfg.Debug && cfg.LogLevel != "" {
		if err := logger.SetLevel(cfg.LogLevel); err != nil {
			log.Fatalf("invalid log level %q: %v", cfg.LogLevel, err)
		}
	}

	logger.Log().WithField("version", version.Full()).Infof("starting %s", version.Name)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatalf("register metrics: %v", err)
	}

	db, err := database.Open(cfg.Database.Driver, cfg.Database.Target())
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, db, cfg)
	if err != nil {
		log.Fatalf("build server: %v", err)
	}
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	logger.Log().Info("server stopped")
}
