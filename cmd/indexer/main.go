// Package main implements the batch indexer: it reads support-ticket
// files from the data directory, normalizes them, and indexes them into
// per-category Qdrant collections.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/SupportlyAI/supportly-mvp/engine/loader"
	"github.com/SupportlyAI/supportly-mvp/engine/semantic"
	"github.com/SupportlyAI/supportly-mvp/pkg/config"
	"github.com/SupportlyAI/supportly-mvp/pkg/fn"
	"github.com/SupportlyAI/supportly-mvp/pkg/metrics"
	"github.com/SupportlyAI/supportly-mvp/pkg/ollama"
	"github.com/SupportlyAI/supportly-mvp/pkg/resilience"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(envOr("CONFIG_PATH", "config.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.DataPath = envOr("DATA_PATH", cfg.DataPath)
	cfg.Qdrant.Addr = envOr("QDRANT_URL", cfg.Qdrant.Addr)
	cfg.Qdrant.CollectionPrefix = envOr("QDRANT_COLLECTION_PREFIX", cfg.Qdrant.CollectionPrefix)
	cfg.Ollama.BaseURL = envOr("OLLAMA_URL", cfg.Ollama.BaseURL)
	cfg.Ollama.EmbedModel = envOr("EMBED_MODEL", cfg.Ollama.EmbedModel)
	if v := os.Getenv("METRICS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.MetricsPort = p
		}
	}
	return cfg, nil
}

// limitedEmbedder rate-limits embedding calls so a large indexing run
// does not saturate the model server. Transient embed failures are
// retried with backoff before failing the document.
type limitedEmbedder struct {
	embedder semantic.Embedder
	limiter  *resilience.Limiter
}

func (e *limitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res := fn.Retry(ctx, fn.DefaultRetry, func(ctx context.Context) fn.Result[[]float32] {
		if err := e.limiter.Wait(ctx); err != nil {
			return fn.Err[[]float32](err)
		}
		return fn.FromPair(e.embedder.Embed(ctx, text))
	})
	return res.Unwrap()
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("indexer exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	reg.ServeAsync(cfg.MetricsPort)
	indexed := func(st string) *metrics.Counter {
		return reg.Counter("tickets_indexed_total", "Tickets indexed into Qdrant.", "support_type", st)
	}
	duration := reg.Histogram("index_run_seconds", "Wall time of the full indexing run.", nil)

	ld, err := loader.New(cfg.DataPath, cfg.SupportTypes, logger)
	if err != nil {
		return err
	}

	docs, err := ld.LoadTickets()
	if err != nil {
		return fmt.Errorf("load tickets: %w", err)
	}
	logger.Info("tickets loaded", "count", len(docs))

	embedder := &limitedEmbedder{
		embedder: ollama.NewEmbedClient(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel),
		limiter: resilience.NewLimiter(resilience.LimiterOpts{
			Rate:  cfg.Retrieval.EmbedRate,
			Burst: cfg.Retrieval.EmbedBurst,
		}),
	}

	store, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.CollectionPrefix, embedder, cfg.Qdrant.VectorDims, logger)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	byType := loader.GroupBySupportType(docs)

	start := time.Now()
	if err := store.Index(ctx, byType); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	duration.Since(start)

	for st, group := range byType {
		indexed(st).Add(int64(len(group)))
		logger.Info("support type indexed", "support_type", st, "count", len(group))
	}
	logger.Info("indexing complete", "documents", len(docs), "duration", time.Since(start))
	return nil
}
