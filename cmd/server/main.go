package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/snapbatch/backend/internal/api"
	"github.com/snapbatch/backend/internal/batch"
	"github.com/snapbatch/backend/internal/config"
	"github.com/snapbatch/backend/internal/history"
	"github.com/snapbatch/backend/internal/reconcile"
	"github.com/snapbatch/backend/internal/storage"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load .env if present; real env vars win either way.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05",
	})
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	// runCtx bounds every reconciliation loop; cancelling it on
	// shutdown stops all polling.
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, localStore, err := buildStore(cfg)
	if err != nil {
		logger.Fatal("failed to initialize object store", "err", err)
	}

	recorder, err := history.NewRecorder(cfg.History.Dir, logger)
	if err != nil {
		logger.Fatal("failed to initialize history", "err", err)
	}

	hub := api.NewEventHub(logger)
	registry := batch.NewRegistry()

	loop := reconcile.New(store, reconcile.MultiNotifier{hub, recorder}, logger, reconcile.Options{
		GraceDelay: cfg.GraceDelay(),
		Interval:   cfg.ReconcileInterval(),
		MaxCycles:  cfg.Reconcile.MaxCycles,
	})
	orchestrator := batch.NewOrchestrator(runCtx, store, loop, registry, hub, logger)

	// Sweep resolved batches out of the registry in the background.
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Reconcile.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if n := registry.CleanupResolved(time.Duration(cfg.Reconcile.RetentionMinutes) * time.Minute); n > 0 {
					logger.Info("cleaned up resolved batches", "count", n)
				}
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/health" || path == "/metrics" ||
				strings.HasPrefix(path, "/api/objects/")
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	if cfg.Server.EnableCORS {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: strings.Split(cfg.Server.AllowOrigins, ","),
		}))
	}

	handlers := api.NewHandlers(&api.Dependencies{
		Orchestrator: orchestrator,
		Registry:     registry,
		Store:        store,
		LocalStore:   localStore,
		Recorder:     recorder,
		Hub:          hub,
		Version:      Version,
	})
	api.RegisterRoutes(e, handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)
	logger.Info("starting server", "addr", addr, "backend", cfg.Storage.Backend,
		"version", Version, "built", BuildTime)

	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", "err", err)
		}
	}()

	<-runCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}

// buildStore creates the configured backend, wrapped in the signed-URL
// cache. The *LocalStore is returned separately because the object
// handler needs its Verify/Open methods.
func buildStore(cfg config.Config) (storage.ObjectStore, *storage.LocalStore, error) {
	cacheFor := time.Duration(cfg.Storage.URLCacheMinutes) * time.Minute

	switch cfg.Storage.Backend {
	case "local":
		secret := cfg.Storage.SignSecret
		if secret == "" {
			return nil, nil, fmt.Errorf("storage.signSecret (or SIGN_SECRET) must be set for the local backend")
		}
		local, err := storage.NewLocalStore(cfg.Storage.DataDir, cfg.Server.PublicURL, []byte(secret))
		if err != nil {
			return nil, nil, err
		}
		return storage.NewCachedSigner(local, cacheFor), local, nil
	case "http":
		httpStore, err := storage.NewHTTPStore(storage.HTTPStoreOptions{
			Endpoint:        cfg.Storage.Endpoint,
			SignerURL:       cfg.Storage.SignerURL,
			ProbeRatePerSec: cfg.Storage.ProbeRatePerSec,
		})
		if err != nil {
			return nil, nil, err
		}
		return storage.NewCachedSigner(httpStore, cacheFor), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}
