// Package record defines the recovery-token record persisted for every
// token this service issues.
package record

import "time"

// Status describes where a token record sits in its lifecycle.
type Status string

const (
	// StatusProvisional marks a token that has been issued to the user but
	// not yet accepted by the recovery provider.
	StatusProvisional Status = "provisional"
	// StatusConfirmed marks a token the provider reported as saved.
	StatusConfirmed Status = "confirmed"
	// StatusInvalid marks a token that was retired or explicitly revoked.
	StatusInvalid Status = "invalid"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusProvisional, StatusConfirmed, StatusInvalid:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transition. A replaced or
// revoked token is never resurrected; renewal creates a new record instead.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusInvalid
}

// Record tracks one recovery token issued for a username.
//
// ID is the hex-encoded 16-byte token id and is immutable once assigned.
// TokenHash is the SHA-256 digest of the raw encoded token bytes and binds
// the record to the exact token handed to the provider, so a forged callback
// cannot confirm an unrelated token.
type Record struct {
	ID        string
	Username  string
	Audience  string
	TokenHash []byte
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanTransition reports whether a record in the current status may move to
// next. Invalidation is allowed from any state (and is idempotent);
// confirmation only ever applies to provisional records.
func (r Record) CanTransition(next Status) bool {
	switch next {
	case StatusConfirmed:
		return r.Status == StatusProvisional
	case StatusInvalid:
		return true
	}
	return false
}
