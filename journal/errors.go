package journal

import (
	"fmt"

	"github.com/google/uuid"
)

// NotOpenError indicates the journal is not open and cannot respond to the
// given request.
type NotOpenError struct{}

func (e NotOpenError) Error() string {
	return "the journal is not open for reading or writing"
}

// RecordNotFoundError indicates that no record exists for the given
// sub-transaction id.
type RecordNotFoundError struct {
	Id uuid.UUID
}

func (e RecordNotFoundError) Error() string {
	return fmt.Sprintf("no journal record was found for sub-transaction %s", e.Id.String())
}

// NewRecordError indicates a new record could not be created.
type NewRecordError struct {
	Id      uuid.UUID
	Message string
}

func (e NewRecordError) Error() string {
	return fmt.Sprintf("could not create a journal record for %s: %s", e.Id.String(), e.Message)
}

// CantOpenError indicates the underlying bbolt database could not be opened.
type CantOpenError struct {
	Message string
}

func (e CantOpenError) Error() string {
	return fmt.Sprintf("could not open journal database: %s", e.Message)
}

// CantCloseError indicates the underlying bbolt database could not be
// closed cleanly.
type CantCloseError struct {
	Message string
}

func (e CantCloseError) Error() string {
	return fmt.Sprintf("could not close journal database: %s", e.Message)
}
