// cmd/arledger/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ar-ledger/internal/alerts"
	"ar-ledger/internal/channel"
	"ar-ledger/internal/commands"
	"ar-ledger/internal/common/config"
	"ar-ledger/internal/common/database"
	"ar-ledger/internal/common/logger"
	"ar-ledger/internal/common/observability"
	"ar-ledger/internal/eventlog"
	"ar-ledger/internal/store/postgres"
	"ar-ledger/internal/store/search"
	"ar-ledger/internal/workers/delivery"
	"ar-ledger/internal/workers/sweep"
	"ar-ledger/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting ar-ledger...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("timezone", cfg.Location().String()),
	)

	obs := observability.New(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- PostgreSQL: event log, snapshots and alert queue ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(ctx, cfg.Database.Postgres)
		return err
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if err := postgres.EnsureSchema(ctx, pg.DB); err != nil {
		zapLog.Fatal("schema bootstrap failed", zap.Error(err))
	}
	stores := postgres.NewStores(pg.DB)
	zapLog.Info("PostgreSQL connected successfully")

	checks := database.Checks{"postgres": pg}

	// --- Elasticsearch: optional analytics mirror of the event log ---
	var logOpts []eventlog.Option
	if cfg.Database.Elasticsearch.Enabled {
		esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			zapLog.Fatal("elasticsearch client failed", zap.Error(err))
		}
		indexer := search.NewEventIndexer(esClient.Client, cfg.Database.Elasticsearch.Index)
		err = retryWithBackoff(func() error {
			return indexer.EnsureIndex(ctx)
		}, 10, 2*time.Second, zapLog, "Elasticsearch index bootstrap")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		logOpts = append(logOpts, eventlog.WithIndexer(indexer))
		checks["elasticsearch"] = esClient
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Redis: cross-process sweep lock ---
	var locker sweep.Locker = sweep.NewLocalLock()
	if cfg.Database.Redis.Address != "" {
		var rdb *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(ctx, cfg.Database.Redis)
			return err
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		locker = sweep.NewRedisLock(rdb.Client, config.GetDuration(cfg.Sweep.LockTTL))
		checks["redis"] = rdb
		zapLog.Info("Redis connected successfully")
	}

	// --- Message templates ---
	templates, err := registry.LoadRegistry(cfg.Templates.RegistryPath)
	if err != nil {
		zapLog.Fatal("template registry failed", zap.Error(err))
	}
	zapLog.Info("Template registry loaded",
		zap.String("version", templates.Version()),
		zap.Int("templates", len(templates.Templates())),
	)

	// --- Core ---
	events := eventlog.New(stores.Events, log, logOpts...)
	ledger := commands.NewService(events, stores.Snapshots, log,
		commands.WithConfig(commands.ConfigFrom(cfg)),
		commands.WithObservability(obs),
	)
	queue := alerts.NewQueue(stores.Alerts, ledger, log, alerts.WithTemplates(templates))

	// --- Background loops ---
	var deliveryWorker *delivery.Worker
	if cfg.Delivery.Enabled {
		ch, err := channel.New(ctx, cfg.Notifications)
		if err != nil {
			zapLog.Fatal("notification channel failed", zap.Error(err))
		}
		deliveryWorker = delivery.NewWorker(delivery.LoadConfig(cfg), stores.Alerts, ch, ledger, log,
			delivery.WithObservability(obs))
		deliveryWorker.Start(ctx)
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", delivery.TaskType))
	}

	var scheduler *sweep.Scheduler
	if cfg.Sweep.Enabled {
		sweepCfg := sweep.LoadConfig(cfg)
		handler := sweep.NewHandler(sweepCfg, ledger, queue, log, sweep.WithHandlerObservability(obs))
		scheduler = sweep.NewScheduler(sweepCfg, handler, locker, log)
		scheduler.Start(ctx)
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", sweep.TaskType))
	}

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := checks.Ready(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.Observability.MetricsAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop()
	}
	if deliveryWorker != nil {
		deliveryWorker.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}

	zapLog.Info("ar-ledger stopped")
}

func writeStatus(w http.ResponseWriter, code int, status string, err error) {
	body := map[string]string{"status": status}
	if err != nil {
		body["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
