package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/splax/terror/internal/app/migrate"
	"github.com/splax/terror/internal/capture"
	"github.com/splax/terror/internal/classify"
	httpx "github.com/splax/terror/internal/http"
	"github.com/splax/terror/internal/repository"
	"github.com/splax/terror/internal/repository/postgres"
	redisrepo "github.com/splax/terror/internal/repository/redis"
	"github.com/splax/terror/pkg/config"
	"github.com/splax/terror/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("terror", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := cfg.StoreKind(); err != nil {
		log.Error("invalid store configuration", "error", err)
		os.Exit(1)
	}
	repo, health, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("error store unavailable, records will be dropped until restart", "error", err)
		unavailable := repository.Unavailable{Cause: err}
		repo, health, closeStore = unavailable, unavailable.Ping, func() {}
	}
	defer closeStore()

	metrics := capture.NewMetrics(nil)
	dispatcher := capture.NewDispatcher(repo, log,
		capture.WithPersistTimeout(cfg.PersistTimeout),
		capture.WithMaxInFlight(cfg.MaxInFlight),
		capture.WithDispatcherMetrics(metrics),
	)
	capturer := capture.New(classify.Default(), dispatcher, log, capture.WithMetrics(metrics))
	router := httpx.NewRouter(log, capturer, health, httpx.Options{SmokeRoutes: cfg.SmokeRoutes})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpx.Recover(capturer, router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			log.Warn("error records still in flight at shutdown", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.ErrorRecordRepository, func(context.Context) error, func(), error) {
	kind, err := cfg.StoreKind()
	if err != nil {
		return nil, nil, nil, err
	}
	switch kind {
	case config.StoreRedis:
		repo, err := redisrepo.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseName)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("persisting error records to redis", "stream", redisrepo.StreamName(cfg.DatabaseName))
		return repo, repo.Ping, func() { _ = repo.Close() }, nil
	default:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseName)
		if err != nil {
			return nil, nil, nil, err
		}
		runner, err := migrate.New(cfg.DatabaseURL, cfg.DatabaseName, cfg.MigrationsDir, log)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		if err := runner.Ensure(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		repo := postgres.New(pool)
		log.Info("persisting error records to postgres")
		return repo, repo.Ping, pool.Close, nil
	}
}
