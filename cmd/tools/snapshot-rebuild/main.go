// cmd/tools/snapshot-rebuild/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"ar-ledger/internal/commands"
	"ar-ledger/internal/common/config"
	"ar-ledger/internal/common/database"
	"ar-ledger/internal/common/logger"
	"ar-ledger/internal/eventlog"
	"ar-ledger/internal/store/postgres"
	"ar-ledger/internal/store/search"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: configs/config.yaml)")
	arID := flag.String("ar", "", "Rebuild only this AR")
	reindex := flag.Bool("reindex", false, "Also re-index every event into Elasticsearch")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)
	ctx := context.Background()

	pg, err := database.NewPostgres(ctx, cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pg.Close()
	if err := postgres.EnsureSchema(ctx, pg.DB); err != nil {
		zapLog.Fatal("schema bootstrap failed", zap.Error(err))
	}
	stores := postgres.NewStores(pg.DB)
	events := eventlog.New(stores.Events, log)
	svc := commands.NewService(events, stores.Snapshots, log, commands.WithConfig(commands.ConfigFrom(cfg)))

	if *arID != "" {
		ar, err := svc.Rebuild(ctx, *arID)
		if err != nil {
			zapLog.Fatal("rebuild failed", zap.String("arId", *arID), zap.Error(err))
		}
		fmt.Printf("✅ %s rebuilt: status=%s version=%d events=%d\n", ar.ID, ar.Status, ar.Version, ar.EventCount)
	} else {
		report, err := svc.RebuildAll(ctx)
		if err != nil {
			zapLog.Fatal("rebuild failed", zap.Error(err))
		}
		printReport(report)
		if len(report.Failed) > 0 {
			defer os.Exit(2)
		}
	}

	if *reindex {
		if err := reindexAll(ctx, cfg, events); err != nil {
			zapLog.Fatal("reindex failed", zap.Error(err))
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func printReport(r *commands.RebuildReport) {
	fmt.Printf("✅ Rebuilt %d ARs from %d events\n", r.Subjects-len(r.Failed), r.Events)
	for _, w := range r.Warnings {
		fmt.Printf("⚠️  %s\n", w)
	}
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("❌ %s: %v\n", id, r.Failed[id])
	}
}

func reindexAll(ctx context.Context, cfg *config.Config, events *eventlog.Log) error {
	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		return err
	}
	indexer := search.NewEventIndexer(es.Client, cfg.Database.Elasticsearch.Index)
	if err := indexer.EnsureIndex(ctx); err != nil {
		return err
	}

	n := 0
	for evt, err := range events.StreamAll(ctx) {
		if err != nil {
			return err
		}
		if err := indexer.IndexEvent(ctx, evt); err != nil {
			return fmt.Errorf("index %s: %w", evt.ID, err)
		}
		n++
	}
	fmt.Printf("✅ Re-indexed %d events into %s\n", n, cfg.Database.Elasticsearch.Index)
	return nil
}
