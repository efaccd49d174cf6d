// Package main implements the stream consumer: it subscribes to the
// ticket subject on NATS and indexes incoming tickets into Qdrant.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/SupportlyAI/supportly-mvp/engine/semantic"
	"github.com/SupportlyAI/supportly-mvp/engine/stream"
	"github.com/SupportlyAI/supportly-mvp/pkg/config"
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
	cfg.NATS.URL = envOr("NATS_URL", cfg.NATS.URL)
	cfg.NATS.QueueGroup = envOr("NATS_QUEUE_GROUP", cfg.NATS.QueueGroup)
	cfg.Qdrant.Addr = envOr("QDRANT_URL", cfg.Qdrant.Addr)
	cfg.Qdrant.CollectionPrefix = envOr("QDRANT_COLLECTION_PREFIX", cfg.Qdrant.CollectionPrefix)
	cfg.Ollama.BaseURL = envOr("OLLAMA_URL", cfg.Ollama.BaseURL)
	cfg.Ollama.EmbedModel = envOr("EMBED_MODEL", cfg.Ollama.EmbedModel)
	return cfg, nil
}

// limitedEmbedder rate-limits embedding calls from the stream.
type limitedEmbedder struct {
	embedder semantic.Embedder
	limiter  *resilience.Limiter
}

func (e *limitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.embedder.Embed(ctx, text)
}

// seenTickets is the in-process dedup set for this consumer instance.
type seenTickets struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (s *seenTickets) check(_ context.Context, ticketID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[ticketID] {
		return true, nil
	}
	s.ids[ticketID] = true
	return false, nil
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
		logger.Error("consumer exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

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

	seen := &seenTickets{ids: make(map[string]bool)}
	sub, err := stream.StartConsumer(nc, cfg.NATS.QueueGroup, stream.Deps{
		Indexer:      store,
		DeduplicateF: seen.check,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer sub.Unsubscribe()

	logger.Info("consumer started", "subject", stream.TicketSubject, "queue", cfg.NATS.QueueGroup)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nc.Drain()
}
