package ticket

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format tags the physical encoding of a ticket file.
type Format int

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatXML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatXML:
		return "xml"
	default:
		return "unknown"
	}
}

// DetectFormat classifies a ticket file by extension, falling back to
// sniffing the first non-blank byte of head. Pure; the loader dispatches
// on the result.
func DetectFormat(name string, head []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON
	case ".xml":
		return FormatXML
	}
	head = bytes.TrimLeft(head, " \t\r\n")
	if len(head) == 0 {
		return FormatUnknown
	}
	switch head[0] {
	case '[', '{':
		return FormatJSON
	case '<':
		return FormatXML
	}
	return FormatUnknown
}
