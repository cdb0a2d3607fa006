package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agridash/internal/api"
	"agridash/internal/catalog"
	"agridash/internal/config"
	"agridash/internal/engine"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"
	"gonum.org/v1/plot/vg"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Initialize Echo (starts instantly)
	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.JSONSerializer{}
	e.Logger.SetLevel(echoLevel(cfg.LogLevel))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.Logger())
	e.Use(middleware.CORS())
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}

	// 2. Handler starts with nil data and answers 503 until the load finishes
	h := api.NewHandler(nil)
	h.RegisterRoutes(e)

	// 3. Load and compute the dashboard in the background
	go func() {
		if err := loadDashboard(ctx, cfg, h); err != nil {
			var ie *engine.IngestError
			if errors.As(err, &ie) {
				slog.Error("dataset rejected", "path", ie.Path, "line", ie.Line, "column", ie.Column, "missing", ie.Missing, "error", err)
			} else {
				slog.Error("dashboard load failed", "error", err)
			}
			os.Exit(1)
		}
	}()

	// 4. Start server
	go func() {
		slog.Info("server ready, dataset loading in background", "port", cfg.Port, "data", cfg.DataPath)
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
}

func loadDashboard(ctx context.Context, cfg config.Config, h *api.Handler) error {
	t0 := time.Now()
	store, err := engine.Load(afero.NewOsFs(), cfg.DataPath)
	if err != nil {
		return err
	}
	defer store.Release()
	slog.Info("dataset loaded", "rows", store.Len(), "metrics", len(store.MetricNames), "elapsed", time.Since(t0))

	outcomes := catalog.Run(ctx, store, catalog.Entries())
	h.SetData(api.BuildDashboard(outcomes,
		vg.Length(cfg.ChartWidth)*vg.Inch,
		vg.Length(cfg.ChartHeight)*vg.Inch,
	))

	slog.Info("dashboard ready", "elapsed", time.Since(t0))
	return nil
}

func setupLogging(cfg config.Config) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	slog.SetDefault(slog.New(handler))
}

func echoLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
