package repositories

import (
	"context"
	"time"
)

// DefaultMaxAttempts bounds how many times a contended transaction is retried.
const DefaultMaxAttempts = 10

type Repository interface {
	Close(ctx context.Context) error
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, q Query) ([]*Document, error)
	// RunTransaction runs fn atomically. fn may be invoked more than once when the
	// transaction contends with concurrent writers and must therefore be free of side effects.
	// If every attempt loses, an *ErrConflict is returned. An error returned by fn aborts the
	// transaction without retry and is passed through.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of the store inside a transaction. Reads observe the transaction's own writes.
type Tx interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, q Query) ([]*Document, error)
	// Create inserts a new document or fails with *ErrAlreadyExists.
	Create(ctx context.Context, collection, id string, v interface{}) error
	// Set inserts or replaces a document.
	Set(ctx context.Context, collection, id string, v interface{}) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
}

type Options struct {
	// MaxAttempts defaults to DefaultMaxAttempts.
	MaxAttempts int
	// OnCommit receives the writes of every committed transaction.
	OnCommit func(ctx context.Context, changes []Change)
}

func (o Options) maxAttempts() int {
	if o.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return o.MaxAttempts
}

func (o Options) notify(ctx context.Context, changes []Change) {
	if o.OnCommit != nil && len(changes) > 0 {
		o.OnCommit(ctx, changes)
	}
}

func now() time.Time {
	return time.Now().UTC()
}
