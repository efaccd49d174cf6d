// Package semantic is the sole owner of all Qdrant operations for the
// ticket corpus. It keeps one collection per support type, coerces
// ticket metadata to and from the scalar-only payload types Qdrant
// accepts, and exposes two query entry points: the lenient
// QuerySimilar and the strict GetRelevantDocuments.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/SupportlyAI/supportly-mvp/engine/domain"
)

// Embedder is the external embedding capability: text in, fixed-length
// vector out. Calls may fail transiently; failures are propagated.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store bridges normalized documents and Qdrant.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	embedder    Embedder
	prefix      string
	dims        int
	logger      *slog.Logger

	// known tracks support types whose collection exists. Collections
	// are created lazily on first index write.
	known map[string]bool
}

// New creates a Store connected to Qdrant at the given gRPC address.
// Collection names are "{prefix}_{support_type}".
func New(addr, prefix string, embedder Embedder, dims int, logger *slog.Logger) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	s := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), prefix, embedder, dims, logger)
	s.conn = conn
	return s, nil
}

// NewWithClients creates a Store with injected Qdrant clients.
func NewWithClients(points pb.PointsClient, collections pb.CollectionsClient, prefix string, embedder Embedder, dims int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		points:      points,
		collections: collections,
		embedder:    embedder,
		prefix:      prefix,
		dims:        dims,
		logger:      logger,
		known:       make(map[string]bool),
	}
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Store) collectionName(supportType string) string {
	return s.prefix + "_" + supportType
}

// SyncSupportTypes discovers existing collections so a Store can serve
// queries against a corpus indexed by a previous run.
func (s *Store) SyncSupportTypes(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		name := c.GetName()
		if st, ok := strings.CutPrefix(name, s.prefix+"_"); ok && st != "" {
			s.known[st] = true
		}
	}
	return nil
}

// SupportTypes returns the known support types, sorted.
func (s *Store) SupportTypes() []string {
	types := make([]string, 0, len(s.known))
	for st := range s.known {
		types = append(types, st)
	}
	sort.Strings(types)
	return types
}

// ensureCollection creates the support type's collection if missing.
func (s *Store) ensureCollection(ctx context.Context, supportType string) error {
	if s.known[supportType] {
		return nil
	}
	name := s.collectionName(supportType)
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	exists := false
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			exists = true
			break
		}
	}
	if !exists {
		_, err = s.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: name,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(s.dims),
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("semantic: create collection %s: %w", name, err)
		}
	}
	s.known[supportType] = true
	return nil
}

// Index embeds and upserts documents grouped by support type. Each
// document is upserted on its own so a failure never leaves a point
// partially written.
func (s *Store) Index(ctx context.Context, byType map[string][]domain.Document) error {
	types := make([]string, 0, len(byType))
	for st := range byType {
		types = append(types, st)
	}
	sort.Strings(types)

	for _, st := range types {
		if err := s.ensureCollection(ctx, st); err != nil {
			return err
		}
		for _, doc := range byType[st] {
			if err := s.upsertDocument(ctx, st, doc); err != nil {
				return fmt.Errorf("semantic: index %s: %w", doc.Meta.TicketID, err)
			}
		}
		s.logger.Info("semantic: indexed", "support_type", st, "documents", len(byType[st]))
	}
	return nil
}

func (s *Store) upsertDocument(ctx context.Context, supportType string, doc domain.Document) error {
	embedding, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	payload := preparePayload(doc.Meta)
	payload["content"] = doc.Content

	wait := true
	_, err = s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collectionName(supportType),
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(doc.Meta.TicketID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: embedding},
				},
			},
			Payload: valueMap(payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// Delete removes a ticket's point from its support type's collection.
func (s *Store) Delete(ctx context.Context, supportType, ticketID string) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collectionName(supportType),
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(ticketID)}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete %s: %w", ticketID, err)
	}
	return nil
}

// QuerySimilar runs top-k similarity search. It is deliberately
// lenient: an empty or whitespace-only query and an unknown support
// type both return an empty result set with a warning, never an error.
// An empty supportType searches every known collection, k hits each,
// merged and sorted by descending similarity.
func (s *Store) QuerySimilar(ctx context.Context, supportType, query string, k int) ([]domain.ScoredDocument, error) {
	if strings.TrimSpace(query) == "" {
		s.logger.Warn("semantic: empty query, returning no results")
		return []domain.ScoredDocument{}, nil
	}

	var types []string
	if supportType != "" {
		if !s.known[supportType] {
			s.logger.Warn(fmt.Sprintf("Support type '%s' not found", supportType))
			return []domain.ScoredDocument{}, nil
		}
		types = []string{supportType}
	} else {
		types = s.SupportTypes()
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("semantic: embed query: %w", err)
	}

	var results []domain.ScoredDocument
	for _, st := range types {
		hits, err := s.searchCollection(ctx, st, embedding, k)
		if err != nil {
			return nil, err
		}
		results = append(results, hits...)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if results == nil {
		results = []domain.ScoredDocument{}
	}
	return results, nil
}

// GetRelevantDocuments is the strict retrieval entry intended for
// direct programmatic use: queries shorter than the minimum (after
// trimming) are rejected with ErrQueryTooShort.
func (s *Store) GetRelevantDocuments(ctx context.Context, query, supportType string, k int) ([]domain.ScoredDocument, error) {
	if utf8.RuneCountInString(strings.TrimSpace(query)) < domain.MinQueryRunes {
		return nil, domain.ErrQueryTooShort
	}
	return s.QuerySimilar(ctx, supportType, query, k)
}

func (s *Store) searchCollection(ctx context.Context, supportType string, embedding []float32, k int) ([]domain.ScoredDocument, error) {
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collectionName(supportType),
		Vector:         embedding,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search %s: %w", supportType, err)
	}

	hits := make([]domain.ScoredDocument, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		payload := make(map[string]string, len(r.GetPayload()))
		for key, val := range r.GetPayload() {
			payload[key] = val.GetStringValue()
		}
		hits = append(hits, domain.ScoredDocument{
			Content:    payload["content"],
			Meta:       metaFromPayload(payload),
			Similarity: r.GetScore(),
		})
	}
	return hits, nil
}

// pointID derives a stable UUID from a ticket id so a re-ingested
// ticket overwrites its previous point.
func pointID(ticketID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(ticketID)).String()
}
