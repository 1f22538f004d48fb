// Package storage defines persistence contracts for recovery-token records.
package storage

import (
	"context"

	"github.com/louisbranch/recovery.space/internal/recovery/record"
)

// RecordStore persists recovery-token records keyed by token id, with a
// secondary lookup by username and status.
//
// Lookups return (nil, nil) when no record exists; callers translate that
// into their own not-found signal. Implementations must not assume they are
// volatile or durable: the lifecycle layer tolerates unknown ids either way.
type RecordStore interface {
	// Put inserts or replaces a record.
	Put(ctx context.Context, rec record.Record) error
	// GetByID returns the record with the given token id, or nil.
	GetByID(ctx context.Context, id string) (*record.Record, error)
	// DeleteByID removes a record. Deleting an absent id is a success.
	DeleteByID(ctx context.Context, id string) error
	// ListByUsernameAndStatus returns the username's records in the given
	// status, ordered by creation time ascending.
	ListByUsernameAndStatus(ctx context.Context, username string, status record.Status) ([]record.Record, error)
}
