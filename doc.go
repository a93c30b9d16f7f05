// Package sessync implements the client-side session cache and
// cross-context synchronization core that sits beneath an authentication
// client façade. It decides, for every session read or write issued from
// possibly many sibling contexts and many concurrent callers in one
// context, whether to trust the cache, when to hit the backend, and how to
// keep every observer's view of "am I signed in" consistent despite races
// between sign-out, token refresh and concurrent reads.
//
// Components:
//   - Store: byte store with TTL holding the persisted session slot
//     (memory, Redis, Ristretto, BigCache).
//   - Codec[V]: (de)serializes the session for storage and broadcast.
//   - GenStore: generation counter guarding the slot. Invalidation bumps
//     the generation; a write commits only if the generation it observed
//     before suspending is still current at commit time.
//   - broadcast.Channel: republishes transitions to sibling contexts.
//   - token.Evaluator: derives cache TTLs from token expiry minus a
//     clock-skew buffer.
//
// Keys (owned by sessync, per namespace):
//
//	sess:<ns>:current  - the session entry envelope
//	gen:<ns>:...       - its generation counter
//
// CAS pattern closing the sign-out race:
//
//	obs := cache.Snapshot()                // before the network hop
//	s   := backend.GetSession(ctx)         // suspension point
//	_   = cache.Set(ctx, s, obs, 0)        // commits iff gen still == obs
//
// Sign-out bumps the generation synchronously before its own network call,
// so a read that started earlier can no longer repopulate the cache.
package sessync
