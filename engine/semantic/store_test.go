package semantic

import (
	"context"
	"errors"
	"reflect"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/SupportlyAI/supportly-mvp/engine/domain"
)

// --- mocks ---

type mockEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.calls++
	return m.vec, m.err
}

type mockPoints struct {
	pb.PointsClient
	upsertReqs []*pb.UpsertPoints
	upsertErr  error
	deleteErr  error
	searchResp *pb.SearchResponse
	searchErr  error
}

func (m *mockPoints) Upsert(_ context.Context, req *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upsertReqs = append(m.upsertReqs, req)
	return &pb.PointsOperationResponse{}, m.upsertErr
}

func (m *mockPoints) Delete(_ context.Context, _ *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	return &pb.PointsOperationResponse{}, m.deleteErr
}

func (m *mockPoints) Search(_ context.Context, _ *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	return m.searchResp, m.searchErr
}

type mockCollections struct {
	pb.CollectionsClient
	names     []string
	listErr   error
	createErr error
	created   []string
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	descs := make([]*pb.CollectionDescription, len(m.names))
	for i, n := range m.names {
		descs[i] = &pb.CollectionDescription{Name: n}
	}
	return &pb.ListCollectionsResponse{Collections: descs}, m.listErr
}

func (m *mockCollections) Create(_ context.Context, req *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = append(m.created, req.GetCollectionName())
	return &pb.CollectionOperationResponse{Result: true}, m.createErr
}

func sampleMeta() domain.TicketMeta {
	return domain.TicketMeta{
		TicketID:         "technical_tech-001",
		OriginalTicketID: "tech-001",
		SupportType:      "technical",
		Type:             "Technical",
		Queue:            "Tech Support",
		Priority:         "high",
		Language:         "en",
		Tags:             []string{"Browser", "Login", "Safari"},
		Source:           domain.SourceJSON,
		Subject:          "Browser Login Issue",
		Body:             "Unable to login using Safari browser.",
		Answer:           "Clear browser cache and cookies.",
	}
}

func stringPayload(p map[string]any) map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v.(string)
	}
	return out
}

// --- payload round trip ---

func TestPayloadRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		meta domain.TicketMeta
	}{
		{"json with tags", sampleMeta()},
		{"empty tag list", func() domain.TicketMeta {
			m := sampleMeta()
			m.Tags = []string{}
			return m
		}()},
		{"xml without raw fields", domain.TicketMeta{
			TicketID:         "product_xml_p-1",
			OriginalTicketID: "p-1",
			SupportType:      "product",
			Tags:             []string{"Feature"},
			Source:           domain.SourceXML,
		}},
		{"null-valued fields", domain.TicketMeta{
			TicketID: "customer_c-1",
			Source:   domain.SourceJSON,
			Tags:     []string{},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := metaFromPayload(stringPayload(preparePayload(tc.meta)))
			if !reflect.DeepEqual(got, tc.meta) {
				t.Errorf("round trip mismatch\ngot:  %+v\nwant: %+v", got, tc.meta)
			}
		})
	}
}

func TestPreparePayload_NilTags(t *testing.T) {
	m := sampleMeta()
	m.Tags = nil
	got := metaFromPayload(stringPayload(preparePayload(m)))
	if len(got.Tags) != 0 {
		t.Errorf("nil tags should come back empty, got %v", got.Tags)
	}
}

// --- indexing ---

func newTestStore(points *mockPoints, cols *mockCollections, emb Embedder) *Store {
	return NewWithClients(points, cols, "support", emb, 3, nil)
}

func TestIndex_CreatesCollectionAndUpserts(t *testing.T) {
	points := &mockPoints{}
	cols := &mockCollections{}
	emb := &mockEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	s := newTestStore(points, cols, emb)

	byType := map[string][]domain.Document{
		"technical": {{Content: "some content", Meta: sampleMeta()}},
	}
	if err := s.Index(context.Background(), byType); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if len(cols.created) != 1 || cols.created[0] != "support_technical" {
		t.Errorf("created collections: %v", cols.created)
	}
	if len(points.upsertReqs) != 1 {
		t.Fatalf("expected one upsert, got %d", len(points.upsertReqs))
	}
	req := points.upsertReqs[0]
	if req.GetCollectionName() != "support_technical" {
		t.Errorf("collection: %s", req.GetCollectionName())
	}
	payload := req.GetPoints()[0].GetPayload()
	if payload["tags"].GetStringValue() != "Browser,Login,Safari" {
		t.Errorf("tags payload: %q", payload["tags"].GetStringValue())
	}
	if payload["content"].GetStringValue() != "some content" {
		t.Errorf("content payload: %q", payload["content"].GetStringValue())
	}
}

func TestIndex_EmbedError(t *testing.T) {
	s := newTestStore(&mockPoints{}, &mockCollections{}, &mockEmbedder{err: errors.New("ollama down")})
	byType := map[string][]domain.Document{"technical": {{Meta: sampleMeta()}}}
	if err := s.Index(context.Background(), byType); err == nil {
		t.Fatal("expected embed error to propagate")
	}
}

func TestIndex_ExistingCollectionNotRecreated(t *testing.T) {
	cols := &mockCollections{names: []string{"support_technical"}}
	s := newTestStore(&mockPoints{}, cols, &mockEmbedder{vec: []float32{1}})
	byType := map[string][]domain.Document{"technical": {{Meta: sampleMeta()}}}
	if err := s.Index(context.Background(), byType); err != nil {
		t.Fatal(err)
	}
	if len(cols.created) != 0 {
		t.Errorf("collection recreated: %v", cols.created)
	}
}

// --- lenient query ---

func searchResponse(scores ...float32) *pb.SearchResponse {
	pts := make([]*pb.ScoredPoint, len(scores))
	for i, sc := range scores {
		pts[i] = &pb.ScoredPoint{
			Score: sc,
			Payload: valueMap(map[string]any{
				"content":      "hit content",
				"ticket_id":    "technical_tech-001",
				"support_type": "technical",
				"tags":         "Browser,Login",
				"source":       "xml",
			}),
		}
	}
	return &pb.SearchResponse{Result: pts}
}

func TestQuerySimilar_EmptyQuery(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{1}}
	s := newTestStore(&mockPoints{}, &mockCollections{}, emb)
	s.known["technical"] = true

	for _, q := range []string{"", "   ", "\t\t\n\n"} {
		got, err := s.QuerySimilar(context.Background(), "technical", q, 5)
		if err != nil {
			t.Fatalf("QuerySimilar(%q): %v", q, err)
		}
		if len(got) != 0 {
			t.Errorf("QuerySimilar(%q) returned %d results", q, len(got))
		}
	}
	if emb.calls != 0 {
		t.Errorf("empty queries must not be embedded, got %d calls", emb.calls)
	}
}

func TestQuerySimilar_UnknownSupportType(t *testing.T) {
	s := newTestStore(&mockPoints{}, &mockCollections{}, &mockEmbedder{vec: []float32{1}})
	got, err := s.QuerySimilar(context.Background(), "billing", "how do I reset my password", 5)
	if err != nil {
		t.Fatalf("unknown support type must not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestQuerySimilar_ReturnsProcessedMetadata(t *testing.T) {
	points := &mockPoints{searchResp: searchResponse(0.93, 0.71)}
	s := newTestStore(points, &mockCollections{}, &mockEmbedder{vec: []float32{1}})
	s.known["technical"] = true

	got, err := s.QuerySimilar(context.Background(), "technical", "login problems in safari", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(got))
	}
	if got[0].Similarity < got[1].Similarity {
		t.Error("results not sorted by descending similarity")
	}
	wantTags := []string{"Browser", "Login"}
	if !reflect.DeepEqual(got[0].Meta.Tags, wantTags) {
		t.Errorf("tags not split back: %v", got[0].Meta.Tags)
	}
	if got[0].Content != "hit content" {
		t.Errorf("content: %q", got[0].Content)
	}
}

func TestQuerySimilar_AllTypes(t *testing.T) {
	points := &mockPoints{searchResp: searchResponse(0.5)}
	s := newTestStore(points, &mockCollections{}, &mockEmbedder{vec: []float32{1}})
	s.known["technical"] = true
	s.known["product"] = true

	got, err := s.QuerySimilar(context.Background(), "", "dark mode release timeline", 3)
	if err != nil {
		t.Fatal(err)
	}
	// One hit per known collection.
	if len(got) != 2 {
		t.Errorf("expected 2 merged hits, got %d", len(got))
	}
}

func TestQuerySimilar_SearchError(t *testing.T) {
	points := &mockPoints{searchErr: errors.New("rpc fail")}
	s := newTestStore(points, &mockCollections{}, &mockEmbedder{vec: []float32{1}})
	s.known["technical"] = true
	if _, err := s.QuerySimilar(context.Background(), "technical", "a reasonably long query", 5); err == nil {
		t.Fatal("expected search error to propagate")
	}
}

// --- strict query ---

func TestGetRelevantDocuments_TooShort(t *testing.T) {
	s := newTestStore(&mockPoints{}, &mockCollections{}, &mockEmbedder{vec: []float32{1}})
	_, err := s.GetRelevantDocuments(context.Background(), "short", "", 3)
	if !errors.Is(err, domain.ErrQueryTooShort) {
		t.Fatalf("expected ErrQueryTooShort, got %v", err)
	}
	if err.Error() != "Query too short. Please provide more details." {
		t.Errorf("message: %q", err.Error())
	}
}

func TestGetRelevantDocuments_Valid(t *testing.T) {
	points := &mockPoints{searchResp: searchResponse(0.8)}
	s := newTestStore(points, &mockCollections{}, &mockEmbedder{vec: []float32{1}})
	s.known["technical"] = true
	got, err := s.GetRelevantDocuments(context.Background(), "a valid longer query", "technical", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 hit, got %d", len(got))
	}
}

// --- support type discovery ---

func TestSyncSupportTypes(t *testing.T) {
	cols := &mockCollections{names: []string{"support_technical", "support_customer", "other_collection"}}
	s := newTestStore(&mockPoints{}, cols, &mockEmbedder{})
	if err := s.SyncSupportTypes(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"customer", "technical"}
	if !reflect.DeepEqual(s.SupportTypes(), want) {
		t.Errorf("SupportTypes() = %v, want %v", s.SupportTypes(), want)
	}
}

func TestDelete(t *testing.T) {
	points := &mockPoints{}
	s := newTestStore(points, &mockCollections{}, &mockEmbedder{})
	if err := s.Delete(context.Background(), "technical", "technical_tech-001"); err != nil {
		t.Fatal(err)
	}
	points.deleteErr = errors.New("rpc fail")
	if err := s.Delete(context.Background(), "technical", "technical_tech-001"); err == nil {
		t.Fatal("expected delete error")
	}
}
