package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jw6ventures/contactd/internal/config"
	"github.com/jw6ventures/contactd/internal/engine"
	httpserver "github.com/jw6ventures/contactd/internal/http"
	"github.com/jw6ventures/contactd/internal/logging"
	"github.com/jw6ventures/contactd/internal/normalize"
	"github.com/jw6ventures/contactd/internal/photo"
	"github.com/jw6ventures/contactd/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("failed to create db pool", zap.Error(err))
	}
	defer pool.Close()

	if err := postgres.ApplyMigrations(ctx, pool); err != nil {
		logger.Fatal("failed to apply migrations", zap.Error(err))
	}

	stor := postgres.NewFromPool(pool)
	phones := normalize.NewPhoneNormalizer(cfg.Phone.DefaultRegion, cfg.Phone.MinMatchDigits)
	eng := engine.New(stor, phones, logger)

	processor := photo.NewProcessor(cfg.Photo.ThumbnailDim, cfg.Photo.DisplayDim)
	photos := photo.NewService(stor, eng, processor, logger)
	queue := photo.NewQueue(photos, cfg.Photo.QueueDepth, cfg.Photo.QueueWorkers)
	go func() {
		if err := queue.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("photo queue stopped", zap.Error(err))
		}
	}()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Photo.GCSchedule, func() {
		if _, err := photos.Sweep(context.Background()); err != nil {
			logger.Error("photo gc sweep failed", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("invalid photo gc schedule", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	handlers := httpserver.NewHandlers(eng, photos, queue, logger)
	r := httpserver.NewRouter(cfg, stor, handlers)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
