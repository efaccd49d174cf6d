package domain

import (
	"errors"
	"testing"
)

func TestValidateQuery_Empty(t *testing.T) {
	for _, q := range []string{"", "   ", "\t\n", " \t \n "} {
		if err := ValidateQuery(q); !errors.Is(err, ErrQueryEmpty) {
			t.Errorf("ValidateQuery(%q) = %v, want ErrQueryEmpty", q, err)
		}
	}
}

func TestValidateQuery_TooShort(t *testing.T) {
	err := ValidateQuery("short")
	if !errors.Is(err, ErrQueryTooShort) {
		t.Fatalf("expected ErrQueryTooShort, got %v", err)
	}
	if err.Error() != "Query too short. Please provide more details." {
		t.Errorf("unexpected message: %q", err.Error())
	}
	// Whitespace padding doesn't count toward the minimum.
	if err := ValidateQuery("  short      "); !errors.Is(err, ErrQueryTooShort) {
		t.Errorf("padded short query: got %v", err)
	}
}

func TestValidateQuery_Valid(t *testing.T) {
	if err := ValidateQuery("a valid longer query"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Exactly at the boundary.
	if err := ValidateQuery("0123456789"); err != nil {
		t.Fatalf("10-rune query should pass, got %v", err)
	}
}

func TestDuplicateIDError(t *testing.T) {
	err := &DuplicateIDError{TicketID: "technical_tech-001"}
	if got := err.Error(); got != "Duplicate ticket ID found: technical_tech-001" {
		t.Errorf("unexpected message: %q", got)
	}
	if !errors.Is(err, ErrDuplicateTicket) {
		t.Error("expected errors.Is(err, ErrDuplicateTicket)")
	}
}
