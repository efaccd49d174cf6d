package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. The message text of the query errors is a contract
// with API callers and must not change.
var (
	ErrQueryEmpty      = errors.New("Query cannot be empty")
	ErrQueryTooShort   = errors.New("Query too short. Please provide more details.")
	ErrDuplicateTicket = errors.New("duplicate ticket id")
	ErrPathNotFound    = errors.New("path not found")
)

// DuplicateIDError reports the first colliding ticket id seen during an
// ingestion run. It aborts the whole run.
type DuplicateIDError struct {
	TicketID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("Duplicate ticket ID found: %s", e.TicketID)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateTicket }
