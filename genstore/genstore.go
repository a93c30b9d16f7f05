package genstore

import (
	"context"
)

// GenStore abstracts where the cache slot's generation counter lives.
// Invalidation bumps the generation; a write commits only if the generation
// it observed before suspending is still current at commit time.
//
// Use NewLocalGenStore (default) for in-process generations, or
// RedisGenStore when sibling contexts in different processes must observe
// each other's invalidations.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
