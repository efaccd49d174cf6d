// Package ticket normalizes raw support-ticket records into the
// canonical document shape. All functions are pure; file I/O and
// batching live in engine/loader.
package ticket

import (
	"fmt"
	"strings"

	"github.com/SupportlyAI/supportly-mvp/engine/domain"
)

// MaxTagFields is the number of tag_1..tag_N fields a record may carry.
const MaxTagFields = 8

// RawTicket is the logical field set shared by both source encodings.
// Tags holds the raw tag_1..tag_N values in field order and may contain
// empty strings and "NaN" sentinels; CleanTags strips them.
type RawTicket struct {
	Subject    string
	Body       string
	Answer     string
	Type       string
	Queue      string
	Priority   string
	Language   string
	Tags       []string
	OriginalID string
	Source     string // domain.SourceJSON or domain.SourceXML
}

// Content renders the six-line content template. The exact layout is a
// contract consumed by the context formatter in engine/rag.
func Content(r RawTicket) string {
	return fmt.Sprintf("Subject: %s\nDescription: %s\nResolution: %s\nType: %s\nQueue: %s\nPriority: %s",
		r.Subject, r.Body, r.Answer, r.Type, r.Queue, r.Priority)
}

// CleanTags drops empty entries and the "nan" sentinel (any case),
// preserving the relative order of the rest.
func CleanTags(raw []string) []string {
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if t == "" || strings.EqualFold(t, "nan") {
			continue
		}
		tags = append(tags, t)
	}
	return tags
}

// DeriveID builds the globally unique ticket id. The "_xml_" infix
// keeps the two source formats from colliding even on identical
// original ids. Idempotent: same input, same id.
func DeriveID(supportType, originalID, source string) string {
	if source == domain.SourceXML {
		return supportType + "_xml_" + originalID
	}
	return supportType + "_" + originalID
}

// Normalize converts one raw record into a canonical document. The
// owning support type is an explicit parameter, never inferred from
// record content. A record without an original id is malformed; the
// caller logs a warning and skips it.
func Normalize(r RawTicket, supportType string) (domain.Document, error) {
	if supportType == "" {
		return domain.Document{}, fmt.Errorf("ticket: support type is empty")
	}
	if r.OriginalID == "" {
		return domain.Document{}, fmt.Errorf("ticket: record has no original ticket id")
	}

	meta := domain.TicketMeta{
		TicketID:         DeriveID(supportType, r.OriginalID, r.Source),
		OriginalTicketID: r.OriginalID,
		SupportType:      supportType,
		Type:             r.Type,
		Queue:            r.Queue,
		Priority:         r.Priority,
		Language:         r.Language,
		Tags:             CleanTags(r.Tags),
		Source:           r.Source,
	}
	// JSON-sourced tickets keep their raw fields; XML ones do not.
	if r.Source == domain.SourceJSON {
		meta.Subject = r.Subject
		meta.Body = r.Body
		meta.Answer = r.Answer
	}

	return domain.Document{Content: Content(r), Meta: meta}, nil
}
