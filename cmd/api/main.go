// Package main implements the supportly query API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/SupportlyAI/supportly-mvp/engine/domain"
	"github.com/SupportlyAI/supportly-mvp/engine/rag"
	"github.com/SupportlyAI/supportly-mvp/engine/semantic"
	"github.com/SupportlyAI/supportly-mvp/pkg/config"
	"github.com/SupportlyAI/supportly-mvp/pkg/mid"
	"github.com/SupportlyAI/supportly-mvp/pkg/ollama"
	"github.com/SupportlyAI/supportly-mvp/pkg/resilience"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadConfig() (*config.Config, string, string, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(envOr("CONFIG_PATH", "config.yaml"))
	if err != nil {
		return nil, "", "", err
	}
	cfg.Qdrant.Addr = envOr("QDRANT_URL", cfg.Qdrant.Addr)
	cfg.Qdrant.CollectionPrefix = envOr("QDRANT_COLLECTION_PREFIX", cfg.Qdrant.CollectionPrefix)
	cfg.Ollama.BaseURL = envOr("OLLAMA_URL", cfg.Ollama.BaseURL)
	cfg.Ollama.ChatModel = envOr("CHAT_MODEL", cfg.Ollama.ChatModel)
	cfg.Ollama.EmbedModel = envOr("EMBED_MODEL", cfg.Ollama.EmbedModel)
	port := envOr("PORT", "8080")
	corsOrigin := envOr("CORS_ORIGIN", "*")
	return cfg, port, corsOrigin, nil
}

// guardedGenerator wraps the chat client in a circuit breaker so a dead
// model server fails fast instead of piling up timeouts.
type guardedGenerator struct {
	gen     rag.Generator
	breaker *resilience.Breaker
}

func (g *guardedGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	var out string
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.gen.Generate(ctx, system, prompt)
		return err
	})
	return out, err
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, port, corsOrigin, err := loadConfig()
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, port, corsOrigin, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, port, corsOrigin string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder := ollama.NewEmbedClient(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel)
	store, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.CollectionPrefix, embedder, cfg.Qdrant.VectorDims, logger)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	if err := store.SyncSupportTypes(ctx); err != nil {
		logger.Warn("support type sync failed", "err", err)
	}

	generator := &guardedGenerator{
		gen:     ollama.NewChatClient(cfg.Ollama.BaseURL, cfg.Ollama.ChatModel, cfg.Ollama.Temperature),
		breaker: resilience.NewBreaker(resilience.BreakerOpts{}),
	}

	opts := rag.DefaultOptions()
	opts.TopK = cfg.Retrieval.TopK
	if cfg.Retrieval.SystemPrompt != "" {
		opts.SystemPrompt = cfg.Retrieval.SystemPrompt
	}
	ragSvc := rag.New(store, generator, opts, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/support-types", handleSupportTypes(store))
	mux.HandleFunc("POST /api/query", handleQuery(ragSvc, logger))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.OTel("supportly-api"),
		mid.Logger(logger),
		mid.CORS(corsOrigin),
	)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleSupportTypes(store *semantic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string][]string{"support_types": store.SupportTypes()})
	}
}

// QueryRequest is the JSON body for POST /api/query.
type QueryRequest struct {
	Query       string `json:"query"`
	SupportType string `json:"support_type,omitempty"`
}

// QuerySource is one retrieved ticket echoed back to the caller.
type QuerySource struct {
	TicketID    string   `json:"ticket_id"`
	SupportType string   `json:"support_type"`
	Tags        []string `json:"tags"`
	Content     string   `json:"content"`
	Similarity  float32  `json:"similarity"`
}

// QueryResponse is the JSON response for POST /api/query.
type QueryResponse struct {
	Answer  string        `json:"answer"`
	Sources []QuerySource `json:"sources"`
}

func handleQuery(ragSvc *rag.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		answer, err := ragSvc.Query(r.Context(), req.Query, req.SupportType)
		if err != nil {
			if isValidationErr(err) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			logger.Error("rag query failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		// Retrieved tickets are rendered separately from the answer.
		docs, err := ragSvc.GetRelevantDocuments(r.Context(), req.Query, req.SupportType)
		if err != nil {
			logger.Warn("source retrieval failed", "err", err)
		}
		sources := make([]QuerySource, len(docs))
		for i, d := range docs {
			sources[i] = QuerySource{
				TicketID:    d.Meta.TicketID,
				SupportType: d.Meta.SupportType,
				Tags:        d.Meta.Tags,
				Content:     d.Content,
				Similarity:  d.Similarity,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(QueryResponse{Answer: answer, Sources: sources})
	}
}

func isValidationErr(err error) bool {
	return errors.Is(err, domain.ErrQueryEmpty) || errors.Is(err, domain.ErrQueryTooShort)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
