// Package store defines the persistence medium abstraction used by sessync.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte that was previously passed to Set for a key (no prepended
// or appended metadata, no re-encoding, no mutation). If a store performs
// internal transforms (e.g., compression), they MUST be fully reversed so
// that the bytes returned by Get are identical to the bytes provided to Set.
//
// The keyspaces "sess:<ns>:" and "gen:<ns>:" are owned by sessync. External
// code MUST NOT write values under these prefixes; foreign writes may be
// treated as corruption by strict envelope validation and deleted.
package store

import (
	"context"
	"time"
)

// Store is a minimal byte store with TTLs. Must be safe for concurrent use.
//
// A TTL of zero or less means "no expiry"; sessync carries the authoritative
// expiry instant inside its entry envelope, so stores without per-entry TTL
// support (BigCache) are still correct; lazy eviction happens on read.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
