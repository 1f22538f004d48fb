// Package memory provides a volatile, in-process record store.
//
// Records do not survive a restart. The lifecycle layer's unknown-token
// handling is the contract that makes that acceptable: a provider callback
// for a token provisioned before a restart renders the unknown-token view
// instead of failing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/louisbranch/recovery.space/internal/recovery/record"
)

// Store keeps recovery-token records in a map guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]record.Record
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{records: make(map[string]record.Record)}
}

// Put inserts or replaces a record.
func (s *Store) Put(ctx context.Context, rec record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

// GetByID returns the record with the given token id, or nil.
func (s *Store) GetByID(ctx context.Context, id string) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// DeleteByID removes a record. Deleting an absent id is a success.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// ListByUsernameAndStatus returns the username's records in the given
// status, ordered by creation time ascending.
func (s *Store) ListByUsernameAndStatus(ctx context.Context, username string, status record.Status) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []record.Record
	for _, rec := range s.records {
		if rec.Username == username && rec.Status == status {
			matches = append(matches, rec)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
	return matches, nil
}
