// Package domain defines the canonical ticket document types, sentinel
// errors, and query validation for the Supportly engine. It acts as the
// validation gate at pipeline entry points.
package domain

// Source format identifiers recorded in ticket metadata.
const (
	SourceJSON = "json"
	SourceXML  = "xml"
)

// TicketMeta is the structured metadata of a normalized support ticket.
// Fields are fixed rather than an open map so the payload round-trip in
// engine/semantic is statically checkable.
type TicketMeta struct {
	// TicketID is globally unique across an ingestion run:
	// "{support_type}_{original_id}" for JSON-sourced tickets and
	// "{support_type}_xml_{original_id}" for XML-sourced ones.
	TicketID         string   `json:"ticket_id"`
	OriginalTicketID string   `json:"original_ticket_id"`
	SupportType      string   `json:"support_type"`
	Type             string   `json:"type"`
	Queue            string   `json:"queue"`
	Priority         string   `json:"priority"`
	Language         string   `json:"language"`
	Tags             []string `json:"tags"`
	Source           string   `json:"source"`

	// Raw fields carried for JSON-sourced tickets only. XML tickets do
	// not retain them; the two shapes are intentionally asymmetric.
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
	Answer  string `json:"answer,omitempty"`
}

// Document is the canonical unit stored in and retrieved from the
// vector store.
type Document struct {
	Content string     `json:"content"`
	Meta    TicketMeta `json:"metadata"`
}

// ScoredDocument is a retrieval hit: a document plus its similarity
// score. Results are ordered by descending similarity.
type ScoredDocument struct {
	Content    string     `json:"content"`
	Meta       TicketMeta `json:"metadata"`
	Similarity float32    `json:"similarity"`
}
