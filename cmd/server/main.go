package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vouh/Course-corner-sub000/internal/app"
	"github.com/vouh/Course-corner-sub000/internal/config"
	transport "github.com/vouh/Course-corner-sub000/internal/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Env)

	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	worker, err := a.NewWorker()
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		os.Exit(1)
	}
	if worker != nil {
		if err := worker.Start(); err != nil {
			logger.Error("failed to start worker", "error", err)
			os.Exit(1)
		}
		defer worker.Shutdown()
	} else {
		logger.Warn("REDIS_ADDR not set, sweeping in-process; run a single replica")
		go a.NewLocalScheduler().Run(ctx)
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		AuthService:  a.Auth,
		Intake:       a.Intake,
		Status:       a.Status,
		Callbacks:    a.Callbacks,
		Redemption:   a.Redemption,
		Sweeper:      a.Sweeper,
		Transactions: a.Transactions,
		Hub:          a.Hub,
		Logger:       logger,
	})

	// WriteTimeout stays unset so websocket streams are not cut off.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadTimeout:       cfg.RequestTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", cfg.HTTPAddr, "env", cfg.Env, "store", cfg.StoreDriver, "cache", cfg.CacheDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErrors:
		logger.Error("http server stopped unexpectedly", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	logger.Info("http server stopped")
}

func newLogger(env string) *slog.Logger {
	level := slog.LevelInfo
	if env != "prod" {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if env == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}
