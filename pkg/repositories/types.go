package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type ErrNotFound struct {
	Collection string
	ID         string
}

func (e *ErrNotFound) Error() string {
	if e.Collection == "" {
		return "not found"
	}
	return fmt.Sprintf("%s/%s not found", e.Collection, e.ID)
}

func IsNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}

type ErrAlreadyExists struct {
	Collection string
	ID         string
}

func (e *ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s/%s already exists", e.Collection, e.ID)
}

func IsAlreadyExists(err error) bool {
	var e *ErrAlreadyExists
	return errors.As(err, &e)
}

// ErrConflict is returned when a transaction keeps losing to concurrent writers.
type ErrConflict struct {
	Attempts int
	Err      error
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("transaction aborted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ErrConflict) Unwrap() error {
	return e.Err
}

func IsConflict(err error) bool {
	var e *ErrConflict
	return errors.As(err, &e)
}

// Document is one stored JSON document and its bookkeeping.
type Document struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
	// Version starts at 1 and increases by one on every write.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Change is a committed write. Document is nil when Deleted is set.
type Change struct {
	Collection string
	ID         string
	Deleted    bool
	Document   *Document
}

type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Filter compares the value at a dotted field path of the document data.
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Query selects documents of one collection, oldest first.
type Query struct {
	Collection string
	Where      []Filter
	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// Decode unmarshals the data of doc into a new T.
func Decode[T any](doc *Document) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(doc.Data, v); err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", doc.Collection, doc.ID, err)
	}
	return v, nil
}

func encode(v interface{}) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return b, nil
}
