package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/beaconcrm/outreach-engine/internal/adapters/duckdb"
	"github.com/beaconcrm/outreach-engine/internal/adapters/sinkhook"
	appconfig "github.com/beaconcrm/outreach-engine/internal/config"
	"github.com/beaconcrm/outreach-engine/internal/core/domain"
	"github.com/beaconcrm/outreach-engine/internal/core/services"
	"github.com/beaconcrm/outreach-engine/pkg/gateway"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting outreach engine")

	if err := run(logger); err != nil {
		logger.Error("engine startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	dbPath := os.Getenv("OUTREACH_DB_PATH")
	if dbPath == "" {
		dbPath = "outreach.db"
	}

	repo, err := duckdb.NewRepository(dbPath)
	if err != nil {
		return fmt.Errorf("failed to init repository: %w", err)
	}
	defer repo.Close()

	// Settings store: persisted config with the sink token encrypted at rest
	secretKey, err := appconfig.NewSecretKey()
	if err != nil {
		return fmt.Errorf("failed to init secret key: %w", err)
	}
	settingsStore, err := appconfig.NewSettingsStore(logger, repo, secretKey)
	if err != nil {
		return fmt.Errorf("failed to init settings store: %w", err)
	}

	// Core services
	eventBus := services.NewEventBus(logger)
	limiter := services.NewRateLimiter(logger, repo, func() domain.LimitDefaults {
		return settingsStore.GetConfig().Limits
	})
	scheduler := services.NewInstructionScheduler(logger, repo, limiter, eventBus)
	sink := sinkhook.NewWebhook(logger, settingsStore)
	engine := services.NewExecutionEngine(logger, repo, repo, sink, scheduler, limiter, eventBus)

	cfg := settingsStore.GetConfig()
	monitor := services.NewHealthMonitor(logger, repo, engine, eventBus, cfg.Monitor)
	sweep := services.NewReplySweep(logger, repo, limiter, cfg.Sweep)
	dueWorker := services.NewDueActionWorker(logger, repo, engine, services.DueWorkerConfig{
		Tick:          30 * time.Second,
		MaxConcurrent: 8,
	})

	apiServer := gateway.NewServer(logger, engine, monitor, eventBus, settingsStore, repo)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:5174"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	handler := c.Handler(apiServer.Handler())

	addr := os.Getenv("OUTREACH_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return monitor.Run(gCtx)
	})
	g.Go(func() error {
		return sweep.Run(gCtx)
	})
	g.Go(func() error {
		return dueWorker.Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("starting api server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
