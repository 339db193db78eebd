package types

import (
	"context"
	"errors"
)

// Table provides the document operations for a single record kind.
type Table interface {
	// Name returns the table name.
	Name() string

	// Get retrieves the record with the given id.
	// Returns ErrNotFound if no record exists with that id.
	Get(ctx context.Context, id string) (Record, error)

	// Insert stores a new record. When the record has no id a UUID v7 is
	// assigned. Returns ErrDuplicateID if the id is already taken.
	Insert(ctx context.Context, doc Record) (Change, error)

	// Update replaces the record whose id is embedded in doc. Updating an
	// absent id is not an error; it yields a zero Change.
	Update(ctx context.Context, doc Record) (Change, error)

	// Delete removes the record with the given id. Deleting an absent id is
	// not an error; it yields a zero Change.
	Delete(ctx context.Context, id string) (Change, error)

	// Query returns the records matching q.Filters, ordered and paginated.
	// An empty result is an empty slice, not nil.
	Query(ctx context.Context, q Query) ([]Record, error)

	// Count returns the number of records matching filters.
	Count(ctx context.Context, filters map[string]any) (int, error)

	// Changes opens a subscription that replays the records matching q,
	// emits a ready event, then follows every matching mutation.
	Changes(ctx context.Context, q FeedQuery) (Cursor, error)
}

// Table operation errors.
var (
	ErrNotFound    = errors.New("record not found")
	ErrInvalidID   = errors.New("invalid record id")
	ErrDuplicateID = errors.New("record id already exists")
)

// Change feed errors.
var (
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrBacklogExceeded    = errors.New("subscription backlog exceeded")
)
