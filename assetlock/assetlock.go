// Package assetlock implements the asset lock manager (C6): a reservation
// primitive guaranteeing at most one protocol run holds a given asset at a
// time, with ownership recorded directly on the asset's status column so
// the lock survives process restarts and stays visible to other queries
// this. Advisory caching only happens in front of this, never in place of
// it.
package assetlock

import "context"

// Kind discriminates which asset collection a lock identity belongs to.
type Kind string

const (
	KindMachine  Kind = "machine"
	KindResource Kind = "resource"
	KindDeck     Kind = "deck"
)

// AcquireInput bundles a lock request. ReservationID is chosen by the
// caller (a fresh UUIDv7, see package identity) before the call and is the
// caller's receipt for a later ReleaseAssetLock — the manager never
// generates it.
type AcquireInput struct {
	Kind          Kind
	AssetName     string
	ProtocolRunID string
	ReservationID string
	// TimeoutSeconds, when positive, turns Acquire into a cooperative poll
	// in assetlock/mongo: it retries at a fixed interval (Options.PollInterval)
	// until the deadline instead of failing immediately. There is no
	// blocking call into the store; each attempt is a single atomic
	// check-and-flip. The assetlock/inmem manager ignores TimeoutSeconds and
	// makes a single attempt.
	TimeoutSeconds int
}

// Availability is a read-only snapshot returned by CheckAssetAvailability.
// A nil Availability (with nil error) means the asset does not exist.
type Availability struct {
	AssetName     string
	Status        string
	Locked        bool
	ProtocolRunID string
	ReservationID string
}

// Manager is the C6 port. Implementations: assetlock/inmem and
// assetlock/mongo.
type Manager interface {
	// AcquireAssetLock attempts the atomic check-and-flip. Returns false
	// (not an error) when the asset is not in an available status,
	// including after TimeoutSeconds of cooperative polling elapses.
	AcquireAssetLock(ctx context.Context, in AcquireInput) (bool, error)

	// ReleaseAssetLock releases a lock only if reservationID matches the
	// one recorded by AcquireAssetLock; protocolRunID, if non-empty, must
	// also match. Mismatch returns (false, nil) — idempotent on
	// double-release, never an error.
	ReleaseAssetLock(ctx context.Context, kind Kind, assetName, reservationID, protocolRunID string) (bool, error)

	// ReleaseAllProtocolLocks releases every lock still held by
	// protocolRunID across every kind, restoring each asset's status to
	// its default idle value, and returns the count released. Called
	// unconditionally from the executor's terminal path; idempotent.
	ReleaseAllProtocolLocks(ctx context.Context, protocolRunID string) (int, error)

	// CheckAssetAvailability is a read-only lock-state snapshot.
	CheckAssetAvailability(ctx context.Context, kind Kind, assetName string) (*Availability, error)
}
