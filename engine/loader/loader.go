// Package loader turns a directory of support-ticket files into a
// validated, duplicate-free collection of normalized documents.
//
// The loader expects one JSON and/or one XML file per support type,
// named "{support_type}_support.json" and "{support_type}_support.xml".
// A missing file is skipped with a warning; a file that fails to parse
// is skipped with an error log. The only fatal conditions are a missing
// data root at construction time and a duplicate ticket id at finalize.
package loader

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/SupportlyAI/supportly-mvp/engine/domain"
	"github.com/SupportlyAI/supportly-mvp/engine/ticket"
)

// DefaultSupportTypes are the product lines loaded when none are
// configured.
var DefaultSupportTypes = []string{"technical", "product", "customer"}

// Loader reads raw ticket files from a data directory.
type Loader struct {
	dataPath     string
	supportTypes []string
	logger       *slog.Logger
}

// New creates a Loader rooted at dataPath. It fails immediately when
// the path does not exist; everything else is per-file and recoverable.
func New(dataPath string, supportTypes []string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(supportTypes) == 0 {
		supportTypes = DefaultSupportTypes
	}
	info, err := os.Stat(dataPath)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("loader: %w: %s", domain.ErrPathNotFound, dataPath)
	}
	return &Loader{dataPath: dataPath, supportTypes: supportTypes, logger: logger}, nil
}

// LoadTickets processes every configured support type's files and
// returns one flat, ordered document collection. It aborts with a
// DuplicateIDError on the first ticket id seen twice across the whole
// run, regardless of file or format.
func (l *Loader) LoadTickets() ([]domain.Document, error) {
	var docs []domain.Document
	seen := make(map[string]bool)

	for _, st := range l.supportTypes {
		for _, name := range []string{st + "_support.json", st + "_support.xml"} {
			path := filepath.Join(l.dataPath, name)
			data, err := os.ReadFile(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					l.logger.Warn("loader: file not found, skipping", "file", name)
				} else {
					l.logger.Error("loader: read failed, skipping", "file", name, "error", err)
				}
				continue
			}

			var raws []ticket.RawTicket
			switch ticket.DetectFormat(name, data) {
			case ticket.FormatJSON:
				raws, err = parseJSONTickets(data)
			case ticket.FormatXML:
				raws, err = parseXMLTickets(data)
			default:
				l.logger.Error("loader: unknown format, skipping", "file", name)
				continue
			}
			if err != nil {
				l.logger.Error("loader: parse failed, skipping", "file", name, "error", err)
				continue
			}

			for _, r := range raws {
				doc, err := ticket.Normalize(r, st)
				if err != nil {
					l.logger.Warn("loader: malformed record, skipping", "file", name, "error", err)
					continue
				}
				if seen[doc.Meta.TicketID] {
					return nil, &domain.DuplicateIDError{TicketID: doc.Meta.TicketID}
				}
				seen[doc.Meta.TicketID] = true
				docs = append(docs, doc)
			}
			l.logger.Info("loader: file processed", "file", name, "support_type", st)
		}
	}

	return docs, nil
}

// GroupBySupportType derives the per-category view used at indexing
// time. Relative document order within each category is preserved.
func GroupBySupportType(docs []domain.Document) map[string][]domain.Document {
	byType := make(map[string][]domain.Document)
	for _, d := range docs {
		byType[d.Meta.SupportType] = append(byType[d.Meta.SupportType], d)
	}
	return byType
}

// jsonTicket is the sequence-of-objects encoding of one record.
type jsonTicket struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Answer   string `json:"answer"`
	Type     string `json:"type"`
	Queue    string `json:"queue"`
	Priority string `json:"priority"`
	Language string `json:"language"`
	Tag1     string `json:"tag_1"`
	Tag2     string `json:"tag_2"`
	Tag3     string `json:"tag_3"`
	Tag4     string `json:"tag_4"`
	Tag5     string `json:"tag_5"`
	Tag6     string `json:"tag_6"`
	Tag7     string `json:"tag_7"`
	Tag8     string `json:"tag_8"`
	TicketID string `json:"Ticket ID"`
}

func parseJSONTickets(data []byte) ([]ticket.RawTicket, error) {
	var records []jsonTicket
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode json tickets: %w", err)
	}
	raws := make([]ticket.RawTicket, len(records))
	for i, r := range records {
		raws[i] = ticket.RawTicket{
			Subject:    r.Subject,
			Body:       r.Body,
			Answer:     r.Answer,
			Type:       r.Type,
			Queue:      r.Queue,
			Priority:   r.Priority,
			Language:   r.Language,
			Tags:       []string{r.Tag1, r.Tag2, r.Tag3, r.Tag4, r.Tag5, r.Tag6, r.Tag7, r.Tag8},
			OriginalID: r.TicketID,
			Source:     domain.SourceJSON,
		}
	}
	return raws, nil
}

// parseXMLTickets walks the token stream and decodes every descendant
// Ticket element, wherever it sits in the tree. Absent children yield
// empty strings.
func parseXMLTickets(data []byte) ([]ticket.RawTicket, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var raws []ticket.RawTicket
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml tickets: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Ticket" {
			continue
		}
		fields, err := decodeTicketFields(dec, se)
		if err != nil {
			return nil, fmt.Errorf("decode xml ticket element: %w", err)
		}
		raws = append(raws, rawFromXMLFields(fields))
	}
	return raws, nil
}

// decodeTicketFields reads the children of one Ticket element into a
// name → text map.
func decodeTicketFields(dec *xml.Decoder, start xml.StartElement) (map[string]string, error) {
	fields := make(map[string]string)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var text string
			if err := dec.DecodeElement(&text, &t); err != nil {
				return nil, err
			}
			fields[t.Name.Local] = text
		case xml.EndElement:
			if t.Name == start.Name {
				return fields, nil
			}
		}
	}
}

func rawFromXMLFields(fields map[string]string) ticket.RawTicket {
	var tags []string
	for i := 1; ; i++ {
		v, ok := fields[fmt.Sprintf("tag_%d", i)]
		if !ok {
			if i > ticket.MaxTagFields {
				break
			}
			tags = append(tags, "")
			continue
		}
		tags = append(tags, v)
	}

	// Fixture generators write the id element as Ticket_ID; plain
	// TicketID also occurs in the wild.
	originalID := fields["Ticket_ID"]
	if originalID == "" {
		originalID = fields["TicketID"]
	}

	return ticket.RawTicket{
		Subject:    fields["subject"],
		Body:       fields["body"],
		Answer:     fields["answer"],
		Type:       fields["type"],
		Queue:      fields["queue"],
		Priority:   fields["priority"],
		Language:   fields["language"],
		Tags:       tags,
		OriginalID: originalID,
		Source:     domain.SourceXML,
	}
}
