// Package identity provides the accession identifier and clock primitives
// shared by every store in this module. Every persistent entity carries a
// time-ordered accession id generated here and an updated-at timestamp
// stamped from the same UTC clock.
package identity

import (
	"time"

	"github.com/google/uuid"
)

// NewAccessionID returns a fresh time-ordered accession identifier (UUIDv7).
// Ordering by accession id yields approximate creation order, which the
// function-call ledger relies on alongside sequence_in_run for a total
// order within a run.
func NewAccessionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustNewAccessionID panics if id generation fails. uuid.NewV7 only fails if
// the process entropy source is broken, a condition callers cannot recover
// from meaningfully; constructors that cannot return an error (e.g. test
// fixtures) use this instead.
func MustNewAccessionID() string {
	id, err := NewAccessionID()
	if err != nil {
		panic(err)
	}
	return id
}

// Clock abstracts wall-clock access so tests can supply deterministic time.
type Clock interface {
	Now() time.Time
}

// UTCClock is the production Clock: system time truncated to UTC.
type UTCClock struct{}

// Now returns the current time in UTC.
func (UTCClock) Now() time.Time { return time.Now().UTC() }

// FixedClock is a Clock that always returns the same instant. Useful in
// tests that assert on exact timestamps.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.At }
