package semantic

import (
	"fmt"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/SupportlyAI/supportly-mvp/engine/domain"
)

// preparePayload coerces ticket metadata to the flat scalar shape
// Qdrant accepts: the tag list becomes one comma-joined string and
// absent values become empty strings. metaFromPayload is its exact
// inverse.
func preparePayload(m domain.TicketMeta) map[string]any {
	p := map[string]any{
		"ticket_id":          m.TicketID,
		"original_ticket_id": m.OriginalTicketID,
		"support_type":       m.SupportType,
		"type":               m.Type,
		"queue":              m.Queue,
		"priority":           m.Priority,
		"language":           m.Language,
		"tags":               strings.Join(m.Tags, ","),
		"source":             m.Source,
	}
	// JSON-sourced tickets carry their raw fields through storage.
	if m.Source == domain.SourceJSON {
		p["subject"] = m.Subject
		p["body"] = m.Body
		p["answer"] = m.Answer
	}
	return p
}

// metaFromPayload reverses preparePayload. An empty tags string maps
// back to an empty slice, not a slice holding one empty string.
func metaFromPayload(p map[string]string) domain.TicketMeta {
	tags := []string{}
	if s := p["tags"]; s != "" {
		tags = strings.Split(s, ",")
	}
	m := domain.TicketMeta{
		TicketID:         p["ticket_id"],
		OriginalTicketID: p["original_ticket_id"],
		SupportType:      p["support_type"],
		Type:             p["type"],
		Queue:            p["queue"],
		Priority:         p["priority"],
		Language:         p["language"],
		Tags:             tags,
		Source:           p["source"],
	}
	if m.Source == domain.SourceJSON {
		m.Subject = p["subject"]
		m.Body = p["body"]
		m.Answer = p["answer"]
	}
	return m
}

// valueMap converts a prepared payload to Qdrant protobuf values.
func valueMap(payload map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(payload))
	for k, val := range payload {
		switch tv := val.(type) {
		case string:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			out[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			out[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return out
}
