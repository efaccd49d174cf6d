package domain

import (
	"strings"
	"unicode/utf8"
)

// MinQueryRunes is the minimum length of a trimmed query, in runes.
const MinQueryRunes = 10

// ValidateQuery applies the ordered query checks shared by the strict
// retrieval entry and the RAG orchestrator: emptiness first, then
// minimum length. It returns ErrQueryEmpty or ErrQueryTooShort.
func ValidateQuery(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return ErrQueryEmpty
	}
	if utf8.RuneCountInString(trimmed) < MinQueryRunes {
		return ErrQueryTooShort
	}
	return nil
}
