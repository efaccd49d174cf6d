// Package rag orchestrates retrieval-augmented answering of support
// queries. It validates the incoming query, retrieves the top-k
// matching tickets, formats them into a fixed context block, and
// delegates answer generation to the external model.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SupportlyAI/supportly-mvp/engine/domain"
)

// NoResultsContext is the sentinel context used when retrieval returns
// nothing. Its exact text is a contract with the generation step.
const NoResultsContext = "No relevant support tickets found."

// Retriever is the strict retrieval entry of the vector store adapter.
type Retriever interface {
	GetRelevantDocuments(ctx context.Context, query, supportType string, k int) ([]domain.ScoredDocument, error)
}

// Generator is the external generative model: prompt in, text out.
// It may fail on network or quota errors; failures are propagated.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Options configures the orchestrator.
type Options struct {
	TopK         int
	SystemPrompt string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:         3,
		SystemPrompt: defaultSystemPrompt,
	}
}

const defaultSystemPrompt = `You are Supportly, an expert customer support assistant.
Answer the user's question using ONLY the provided support-ticket context.
If the context does not contain enough information, say so honestly.`

// Service is the RAG orchestration service.
type Service struct {
	retriever Retriever
	generator Generator
	opts      Options
	logger    *slog.Logger
}

// New creates a Service.
func New(retriever Retriever, generator Generator, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	return &Service{retriever: retriever, generator: generator, opts: opts, logger: logger}
}

// GetRelevantDocuments exposes retrieval without generation, for
// callers that render the matched tickets themselves.
func (s *Service) GetRelevantDocuments(ctx context.Context, query, supportType string) ([]domain.ScoredDocument, error) {
	return s.retriever.GetRelevantDocuments(ctx, query, supportType, s.opts.TopK)
}

// Query answers a support query. Validation is ordered: emptiness
// first, then minimum length; the first failure wins. A generation
// failure is logged with enough context to diagnose and propagated,
// never swallowed.
func (s *Service) Query(ctx context.Context, query, supportType string) (string, error) {
	if err := domain.ValidateQuery(query); err != nil {
		return "", err
	}

	docs, err := s.retriever.GetRelevantDocuments(ctx, query, supportType, s.opts.TopK)
	if err != nil {
		return "", fmt.Errorf("rag: retrieve: %w", err)
	}

	contextText := PrepareContext(docs)
	prompt := fmt.Sprintf("Context from support tickets:\n%s\n\nUser question: %s", contextText, query)

	answer, err := s.generator.Generate(ctx, s.opts.SystemPrompt, prompt)
	if err != nil {
		s.logger.Error("rag: generation failed",
			"error", err,
			"query", query,
			"support_type", supportType,
			"documents", len(docs),
		)
		return "", fmt.Errorf("rag: generate: %w", err)
	}
	return answer, nil
}

// PrepareContext renders retrieved documents into the context block
// consumed by the generator. The shape is exact: 1-indexed blocks with
// Support Type, Tags, and Content lines, concatenated in rank order.
func PrepareContext(docs []domain.ScoredDocument) string {
	if len(docs) == 0 {
		return NoResultsContext
	}
	blocks := make([]string, len(docs))
	for i, d := range docs {
		supportType := d.Meta.SupportType
		if supportType == "" {
			supportType = "Unknown"
		}
		blocks[i] = fmt.Sprintf("Ticket %d:\nSupport Type: %s\nTags: %s\nContent: %s",
			i+1, supportType, strings.Join(d.Meta.Tags, ", "), d.Content)
	}
	return strings.Join(blocks, "\n\n")
}
