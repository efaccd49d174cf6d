// Package stream consumes live ticket events from NATS and runs them
// through the normalize-and-index pipeline, with per-message retries and
// a dead letter queue.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/SupportlyAI/supportly-mvp/engine/domain"
	"github.com/SupportlyAI/supportly-mvp/engine/ticket"
	"github.com/SupportlyAI/supportly-mvp/pkg/fn"
	"github.com/SupportlyAI/supportly-mvp/pkg/natsutil"
)

const (
	// TicketSubject carries incoming ticket events.
	TicketSubject = "tickets.ingest"
	// DLQSubject receives events that exhausted their retries.
	DLQSubject = "tickets.ingest.dlq"
	// MaxRetries before an event is sent to the DLQ.
	MaxRetries = 3
)

// TicketEvent is the wire form of one live ticket record.
type TicketEvent struct {
	SupportType string   `json:"support_type"`
	TicketID    string   `json:"ticket_id"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	Answer      string   `json:"answer"`
	Type        string   `json:"type"`
	Queue       string   `json:"queue"`
	Priority    string   `json:"priority"`
	Language    string   `json:"language"`
	Tags        []string `json:"tags"`
}

// Indexer stores normalized documents grouped by support type.
// *semantic.Store satisfies it.
type Indexer interface {
	Index(ctx context.Context, byType map[string][]domain.Document) error
}

// Deps holds the external dependencies for the stream consumer.
type Deps struct {
	Indexer Indexer
	// DeduplicateF reports whether a ticket id was already indexed.
	DeduplicateF func(ctx context.Context, ticketID string) (bool, error)
	Logger       *slog.Logger
}

// Normalize converts a TicketEvent into a Document, rejecting records
// without a support type or original id.
var Normalize fn.Stage[TicketEvent, domain.Document] = func(_ context.Context, ev TicketEvent) fn.Result[domain.Document] {
	raw := ticket.RawTicket{
		Subject:    ev.Subject,
		Body:       ev.Body,
		Answer:     ev.Answer,
		Type:       ev.Type,
		Queue:      ev.Queue,
		Priority:   ev.Priority,
		Language:   ev.Language,
		Tags:       ev.Tags,
		OriginalID: ev.TicketID,
		Source:     domain.SourceJSON,
	}
	return fn.FromPair(ticket.Normalize(raw, ev.SupportType))
}

// NewIndex creates the stage that embeds and upserts one document.
func NewIndex(ix Indexer) fn.Stage[domain.Document, string] {
	return func(ctx context.Context, doc domain.Document) fn.Result[string] {
		byType := map[string][]domain.Document{doc.Meta.SupportType: {doc}}
		if err := ix.Index(ctx, byType); err != nil {
			return fn.Err[string](fmt.Errorf("stream: index: %w", err))
		}
		return fn.Ok(doc.Meta.TicketID)
	}
}

// loggedTap logs entry and exit of a stage with its duration.
func loggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Info("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Info("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline wires normalize and index with tracing and logging taps.
func NewPipeline(deps Deps) fn.Stage[TicketEvent, string] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	normalized := fn.Then(loggedTap[TicketEvent]("normalize", log), fn.TracedStage("stream.normalize", Normalize))
	indexed := fn.Then(normalized, fn.Then(loggedTap[domain.Document]("index", log), fn.TracedStage("stream.index", NewIndex(deps.Indexer))))
	return indexed
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Event   TicketEvent `json:"event"`
	Error   string      `json:"error"`
	Retries int         `json:"retries"`
}

// StartConsumer subscribes to the ticket subject within a queue group
// and processes events through the pipeline. Failed events are
// re-published with an incremented retry count and land in the DLQ after
// MaxRetries attempts. Duplicate ticket ids are skipped.
func StartConsumer(nc *nats.Conn, queue string, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return natsutil.SubscribeQueue(nc, TicketSubject, queue, func(ctx context.Context, ev TicketEvent, msg *nats.Msg) {
		if deps.DeduplicateF != nil {
			id := ticket.DeriveID(ev.SupportType, ev.TicketID, domain.SourceJSON)
			exists, err := deps.DeduplicateF(ctx, id)
			if err != nil {
				log.Warn("stream: dedup check failed", "error", err)
			} else if exists {
				log.Info("stream: skipping duplicate", "ticket_id", id)
				return
			}
		}

		result := pipeline(ctx, ev)
		if result.IsErr() {
			_, pipeErr := result.Unwrap()
			retries := natsutil.RetryCount(msg) + 1
			log.Error("stream: pipeline failed",
				"error", pipeErr,
				"ticket_id", ev.TicketID,
				"retry", retries,
			)

			if retries >= MaxRetries {
				dlq := dlqMessage{Event: ev, Error: pipeErr.Error(), Retries: retries}
				if err := natsutil.Publish(ctx, nc, DLQSubject, dlq); err != nil {
					log.Error("stream: DLQ publish failed", "error", err)
				}
				return
			}
			if err := natsutil.PublishRetry(ctx, nc, TicketSubject, ev, retries); err != nil {
				log.Error("stream: retry publish failed", "error", err)
			}
			return
		}

		id, _ := result.Unwrap()
		log.Info("stream: ticket indexed", "ticket_id", id)
	})
}
