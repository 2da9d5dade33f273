// Package store provides the storage abstraction for registration records.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for a user ID.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyRegistered is returned by Put when a record already exists.
// Overwriting an existing registration is never permitted: a second
// registration for the same user ID would silently invalidate the first
// user's envelope, so the conflict is surfaced to the caller instead.
var ErrAlreadyRegistered = errors.New("user already registered")

// Record is the durable state for a registered user. The envelope is an
// opaque blob produced by the PAKE engine; this layer never interprets it.
// A record is immutable after creation except for second-factor attachment.
type Record struct {
	Envelope    []byte    `json:"envelope"`
	TOTPEnabled bool      `json:"totp_enabled,omitempty"`
	TOTPSecret  string    `json:"totp_secret,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Clone returns a deep copy so that callers cannot mutate stored state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Envelope = append([]byte(nil), r.Envelope...)
	return &cp
}

// Store defines the keyed credential store. Implementations must be safe for
// concurrent use by multiple in-flight requests.
type Store interface {
	// Put creates the record for userID. It fails with ErrAlreadyRegistered
	// if a record exists; it never overwrites.
	Put(userID string, rec *Record) error

	// Get returns the record for userID or ErrNotFound.
	Get(userID string) (*Record, error)

	// AttachSecondFactor enables TOTP for an existing user. It fails with
	// ErrNotFound if the user has no registration record.
	AttachSecondFactor(userID, secret string) error

	// List returns a snapshot of every record keyed by user ID. It exists
	// for export tooling; the handshake paths never enumerate the store.
	List() (map[string]*Record, error)
}
