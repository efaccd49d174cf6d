package loader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SupportlyAI/supportly-mvp/engine/domain"
)

const technicalJSON = `[
  {
    "subject": "Browser Login Issue",
    "body": "Unable to login using Safari browser.",
    "answer": "Clear browser cache and cookies.",
    "type": "Technical",
    "queue": "Tech Support",
    "priority": "high",
    "language": "en",
    "tag_1": "Browser",
    "tag_2": "Login",
    "tag_3": "nan",
    "tag_4": "Safari",
    "Ticket ID": "tech-001"
  },
  {
    "subject": "Application Crash",
    "body": "Application crashes on startup.",
    "answer": "Update to latest version.",
    "type": "Technical",
    "queue": "Tech Support",
    "priority": "high",
    "language": "en",
    "tag_1": "Crash",
    "Ticket ID": "tech-002"
  }
]`

const technicalXML = `<Tickets>
  <Ticket>
    <subject>Feature Request</subject>
    <body>Need dark mode feature.</body>
    <answer>Dark mode is planned for next release.</answer>
    <type>Enhancement</type>
    <queue>Product</queue>
    <priority>medium</priority>
    <language>en</language>
    <tag_1>Feature</tag_1>
    <tag_2>UI</tag_2>
    <Ticket_ID>tech-101</Ticket_ID>
  </Ticket>
  <Ticket>
    <subject>Sparse ticket</subject>
    <Ticket_ID>tech-102</Ticket_ID>
  </Ticket>
</Tickets>`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNew_PathNotFound(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"), nil, nil)
	if !errors.Is(err, domain.ErrPathNotFound) {
		t.Fatalf("expected ErrPathNotFound, got %v", err)
	}
}

func TestLoadTickets_BothFormats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "technical_support.json", technicalJSON)
	writeFile(t, dir, "technical_support.xml", technicalXML)

	l, err := New(dir, []string{"technical"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	docs, err := l.LoadTickets()
	if err != nil {
		t.Fatalf("LoadTickets: %v", err)
	}
	if len(docs) != 4 {
		t.Fatalf("expected 4 documents, got %d", len(docs))
	}

	ids := make(map[string]bool)
	for _, d := range docs {
		ids[d.Meta.TicketID] = true
	}
	for _, want := range []string{"technical_tech-001", "technical_tech-002", "technical_xml_tech-101", "technical_xml_tech-102"} {
		if !ids[want] {
			t.Errorf("missing ticket id %s", want)
		}
	}
}

func TestLoadTickets_TagFilteringAndOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "technical_support.json", technicalJSON)

	l, _ := New(dir, []string{"technical"}, nil)
	docs, err := l.LoadTickets()
	if err != nil {
		t.Fatal(err)
	}
	got := docs[0].Meta.Tags
	want := []string{"Browser", "Login", "Safari"}
	if len(got) != len(want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tags = %v, want %v", got, want)
		}
	}
}

func TestLoadTickets_XMLAbsentChildren(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "technical_support.xml", technicalXML)

	l, _ := New(dir, []string{"technical"}, nil)
	docs, err := l.LoadTickets()
	if err != nil {
		t.Fatal(err)
	}
	sparse := docs[1]
	if !strings.Contains(sparse.Content, "Subject: Sparse ticket") {
		t.Errorf("content: %q", sparse.Content)
	}
	if !strings.Contains(sparse.Content, "Description: \n") {
		t.Errorf("absent body should render empty: %q", sparse.Content)
	}
	if len(sparse.Meta.Tags) != 0 {
		t.Errorf("expected no tags, got %v", sparse.Meta.Tags)
	}
	// XML metadata does not retain raw fields.
	if sparse.Meta.Subject != "" {
		t.Error("xml meta retained subject")
	}
}

func TestLoadTickets_MissingFileSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "technical_support.json", technicalJSON)
	// No xml file, no product/customer files at all.

	l, _ := New(dir, []string{"technical", "product"}, nil)
	docs, err := l.LoadTickets()
	if err != nil {
		t.Fatalf("missing optional files must not fail the run: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("expected 2 documents, got %d", len(docs))
	}
}

func TestLoadTickets_MalformedFileSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "technical_support.json", "{not valid json")
	writeFile(t, dir, "product_support.json", `[{"subject":"ok","Ticket ID":"p-1"}]`)

	l, _ := New(dir, []string{"technical", "product"}, nil)
	docs, err := l.LoadTickets()
	if err != nil {
		t.Fatalf("malformed file must not fail the run: %v", err)
	}
	if len(docs) != 1 || docs[0].Meta.TicketID != "product_p-1" {
		t.Errorf("docs: %+v", docs)
	}
}

func TestLoadTickets_MalformedRecordSkipped(t *testing.T) {
	dir := t.TempDir()
	// Second record has no Ticket ID.
	writeFile(t, dir, "technical_support.json",
		`[{"subject":"a","Ticket ID":"t-1"},{"subject":"b"}]`)

	l, _ := New(dir, []string{"technical"}, nil)
	docs, err := l.LoadTickets()
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Errorf("expected 1 document, got %d", len(docs))
	}
}

func TestLoadTickets_DuplicateID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "technical_support.json",
		`[{"subject":"a","Ticket ID":"t-1"},{"subject":"b","Ticket ID":"t-1"}]`)

	l, _ := New(dir, []string{"technical"}, nil)
	_, err := l.LoadTickets()
	if !errors.Is(err, domain.ErrDuplicateTicket) {
		t.Fatalf("expected duplicate ticket error, got %v", err)
	}
	if err.Error() != "Duplicate ticket ID found: technical_t-1" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestLoadTickets_SameOriginalIDAcrossFormats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "technical_support.json", `[{"subject":"a","Ticket ID":"t-1"}]`)
	writeFile(t, dir, "technical_support.xml",
		`<Tickets><Ticket><subject>b</subject><Ticket_ID>t-1</Ticket_ID></Ticket></Tickets>`)

	l, _ := New(dir, []string{"technical"}, nil)
	docs, err := l.LoadTickets()
	if err != nil {
		t.Fatalf("identical original ids across formats must not collide: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].Meta.TicketID == docs[1].Meta.TicketID {
		t.Error("ids collided across formats")
	}
}

func TestGroupBySupportType(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "technical_support.json", `[{"subject":"a","Ticket ID":"t-1"}]`)
	writeFile(t, dir, "product_support.json", `[{"subject":"b","Ticket ID":"p-1"},{"subject":"c","Ticket ID":"p-2"}]`)

	l, _ := New(dir, []string{"technical", "product"}, nil)
	docs, err := l.LoadTickets()
	if err != nil {
		t.Fatal(err)
	}
	byType := GroupBySupportType(docs)
	if len(byType["technical"]) != 1 || len(byType["product"]) != 2 {
		t.Errorf("grouping: technical=%d product=%d", len(byType["technical"]), len(byType["product"]))
	}
	if byType["product"][0].Meta.TicketID != "product_p-1" {
		t.Error("relative order not preserved within category")
	}
}
