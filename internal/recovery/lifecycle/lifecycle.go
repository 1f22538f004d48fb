// Package lifecycle owns the recovery-token record state machine.
//
// A record starts provisional when a token is issued, and moves to confirmed
// or invalid in response to the provider callback or an explicit local
// invalidation. Renewal never resurrects a terminal record: it provisions a
// new one and retires the old. The Manager is the only writer of record
// state; callers read and invoke operations.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/louisbranch/recovery.space/internal/recovery/record"
	"github.com/louisbranch/recovery.space/internal/recovery/storage"
)

var (
	// ErrNotFound indicates the token id has no record. Expected after a
	// restart with volatile storage, under replay, or with a tampered id.
	ErrNotFound = errors.New("recovery token record not found")
	// ErrInvalidTransition indicates the record is in a terminal state that
	// disallows the requested transition.
	ErrInvalidTransition = errors.New("invalid recovery token status transition")
)

// Manager drives recovery-token records through their lifecycle.
type Manager struct {
	store storage.RecordStore
	clock func() time.Time

	mu    sync.Mutex
	users map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a lifecycle manager over the given store.
func NewManager(store storage.RecordStore) *Manager {
	return &Manager{
		store: store,
		clock: time.Now,
		users: make(map[string]*userLock),
	}
}

// SetClock overrides the time source. Intended for tests.
func (m *Manager) SetClock(clock func() time.Time) {
	if clock != nil {
		m.clock = clock
	}
}

// LockUser serializes record operations for one username and returns the
// unlock function. The controller holds the lock across its
// find-mint-provision sequence so two concurrent initiations for the same
// user cannot both observe "no confirmed record".
func (m *Manager) LockUser(username string) func() {
	m.mu.Lock()
	lock, ok := m.users[username]
	if !ok {
		lock = &userLock{}
		m.users[username] = lock
	}
	lock.refs++
	m.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		m.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(m.users, username)
		}
		m.mu.Unlock()
	}
}

// Get returns the record for a token id, or nil when none exists. It is the
// read the controller uses to correlate a callback with a local record.
func (m *Manager) Get(ctx context.Context, id string) (*record.Record, error) {
	rec, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get token %s: %w", id, err)
	}
	return rec, nil
}

// Provision creates and stores a new provisional record for a freshly
// issued token. Storage failures propagate.
func (m *Manager) Provision(ctx context.Context, username, audience, id string, tokenHash []byte) (record.Record, error) {
	now := m.clock().UTC()
	rec := record.Record{
		ID:        id,
		Username:  username,
		Audience:  audience,
		TokenHash: tokenHash,
		Status:    record.StatusProvisional,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Put(ctx, rec); err != nil {
		return record.Record{}, fmt.Errorf("provision token %s: %w", id, err)
	}
	return rec, nil
}

// Confirm transitions a provisional record to confirmed. Confirming an
// already confirmed record is a no-op success; an unknown id returns
// ErrNotFound and an invalid record returns ErrInvalidTransition.
func (m *Manager) Confirm(ctx context.Context, id string) (record.Record, error) {
	rec, err := m.store.GetByID(ctx, id)
	if err != nil {
		return record.Record{}, fmt.Errorf("confirm token %s: %w", id, err)
	}
	if rec == nil {
		return record.Record{}, ErrNotFound
	}
	if rec.Status == record.StatusConfirmed {
		return *rec, nil
	}
	if !rec.CanTransition(record.StatusConfirmed) {
		return record.Record{}, fmt.Errorf("confirm token %s from %s: %w", id, rec.Status, ErrInvalidTransition)
	}
	rec.Status = record.StatusConfirmed
	rec.UpdatedAt = m.clock().UTC()
	if err := m.store.Put(ctx, *rec); err != nil {
		return record.Record{}, fmt.Errorf("confirm token %s: %w", id, err)
	}
	return *rec, nil
}

// Invalidate transitions a record to invalid regardless of its current
// status. Invalidating an already invalid record is a no-op success; an
// unknown id returns ErrNotFound.
func (m *Manager) Invalidate(ctx context.Context, id string) (record.Record, error) {
	rec, err := m.store.GetByID(ctx, id)
	if err != nil {
		return record.Record{}, fmt.Errorf("invalidate token %s: %w", id, err)
	}
	if rec == nil {
		return record.Record{}, ErrNotFound
	}
	if rec.Status == record.StatusInvalid {
		return *rec, nil
	}
	rec.Status = record.StatusInvalid
	rec.UpdatedAt = m.clock().UTC()
	if err := m.store.Put(ctx, *rec); err != nil {
		return record.Record{}, fmt.Errorf("invalidate token %s: %w", id, err)
	}
	return *rec, nil
}

// Reject removes a provisional record entirely. A token the user declined
// to save never existed from the provider's perspective, so no invalid
// tombstone is kept. Removing an unknown id is a success.
func (m *Manager) Reject(ctx context.Context, id string) error {
	if err := m.store.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("reject token %s: %w", id, err)
	}
	return nil
}

// FindConfirmedForUser returns the username's confirmed record, or nil.
// At most one confirmed record exists per username at any time; when the
// store reports more than one (possible only via outside interference) the
// oldest is returned.
func (m *Manager) FindConfirmedForUser(ctx context.Context, username string) (*record.Record, error) {
	records, err := m.store.ListByUsernameAndStatus(ctx, username, record.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("find confirmed token for %s: %w", username, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	rec := records[0]
	return &rec, nil
}
