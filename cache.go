package sessync

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/sessync/codec"
	"github.com/unkn0wn-root/sessync/genstore"
	"github.com/unkn0wn-root/sessync/internal/wire"
	"github.com/unkn0wn-root/sessync/store"
	"github.com/unkn0wn-root/sessync/token"
)

// sessionCache is the single-slot TTL store for the last known session,
// guarded by a generation counter. Reads never fail: anything wrong with
// the entry (corruption, stale generation, expiry) degrades to a miss and
// self-heals. Writes commit only under the generation they observed before
// suspending, which is what closes the sign-out-vs-in-flight-read race.
type sessionCache struct {
	ns    string
	store store.Store
	codec codec.Codec[Session]
	gen   genstore.GenStore
	eval  token.Evaluator
	log   Logger
	hooks Hooks
	now   func() time.Time

	mu        sync.Mutex
	prevToken string // access token before the latest commit
	lastToken string // access token of the latest commit
}

func (c *sessionCache) key() string {
	return "sess:" + c.ns + ":current"
}

// Get returns the cached session, or a miss when there is no entry, the
// generation moved (invalidated), or the entry outlived its expiry. Expiry
// triggers lazy eviction as a side effect; there is no background timer.
func (c *sessionCache) Get(ctx context.Context) (*Session, bool) {
	k := c.key()
	raw, ok, err := c.store.Get(ctx, k)
	if err != nil {
		// store trouble is a miss, never a failure, for a cache read
		c.log.Warn("session store read failed", Fields{"key": k, "err": err})
		return nil, false
	}
	if !ok {
		return nil, false
	}

	gen, expMs, payload, err := wire.Decode(raw)
	if err != nil {
		c.drop(ctx, k, "corrupt")
		return nil, false
	}
	cur, gerr := c.gen.Snapshot(ctx, k)
	if gerr != nil {
		// generation authority unreachable: fail closed. The entry stays
		// put (the outage says nothing about its validity) but is not
		// served, since an invalidation could have happened unseen.
		c.log.Warn("gen snapshot failed on read", Fields{"key": k, "err": gerr})
		c.hooks.GenError("snapshot", gerr)
		return nil, false
	}
	if gen != cur {
		c.drop(ctx, k, "gen_mismatch")
		return nil, false
	}
	if expMs > 0 && c.now().UnixMilli() > expMs {
		c.drop(ctx, k, "expired")
		return nil, false
	}

	s, err := c.codec.Decode(payload)
	if err != nil {
		c.drop(ctx, k, "value_decode")
		return nil, false
	}
	return &s, true
}

// Snapshot captures the current generation. Callers take it before any
// suspension point and hand it back to Set. A snapshot error reads as 0;
// Set re-checks the generation at commit time and fails closed on error,
// so a write carrying this fallback never lands during an outage.
func (c *sessionCache) Snapshot(ctx context.Context) uint64 {
	g, err := c.gen.Snapshot(ctx, c.key())
	if err != nil {
		c.log.Warn("gen snapshot error", Fields{"key": c.key(), "err": err})
		c.hooks.GenError("snapshot", err)
		return 0
	}
	return g
}

// Set commits s under observedGen. If the generation moved in the meantime
// (an invalidation won the race) the write is skipped silently. ttl <= 0
// derives the TTL from the access token's expiry.
func (c *sessionCache) Set(ctx context.Context, s *Session, observedGen uint64, ttl time.Duration) error {
	if s == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = c.eval.TTLFor(s.AccessToken)
	}

	k := c.key()
	cur, gerr := c.gen.Snapshot(ctx, k)
	if gerr != nil {
		// fail closed on writes too: committing without knowing the
		// current generation could resurrect an invalidated session
		c.hooks.GenError("snapshot", gerr)
		return gerr
	}
	if cur != observedGen {
		// generation moved; skip stale write
		c.log.Debug("Set skipped (gen mismatch)", Fields{"key": k, "obs": observedGen, "cur": cur})
		c.hooks.StaleWriteSkipped(k, observedGen, cur)
		return nil
	}

	payload, err := c.codec.Encode(*s)
	if err != nil {
		return err
	}
	expMs := c.now().Add(ttl).UnixMilli()
	raw := wire.Encode(observedGen, expMs, payload)

	ok, err := c.store.Set(ctx, k, raw, ttl)
	if err != nil {
		return err
	}
	if !ok {
		c.log.Debug("Set rejected by store (pressure)", Fields{"key": k})
		return nil
	}

	c.mu.Lock()
	c.prevToken = c.lastToken
	c.lastToken = s.AccessToken
	c.mu.Unlock()
	return nil
}

// Invalidate bumps the generation without deleting the entry. Called
// synchronously at the start of sign-out, before any network call, so a
// Set racing against it observes a moved generation. The stranded entry
// self-heals on the next read.
func (c *sessionCache) Invalidate(ctx context.Context) error {
	k := c.key()
	newGen, err := c.gen.Bump(ctx, k)
	if err != nil {
		c.hooks.GenError("bump", err)
		return err
	}
	c.log.Debug("invalidated slot (bumped gen)", Fields{"key": k, "newGen": newGen})
	return nil
}

// Clear is the terminal form: bumps the generation, deletes the entry and
// forgets the remembered prior token. Used when sign-out completes.
func (c *sessionCache) Clear(ctx context.Context) error {
	k := c.key()
	_, bumpErr := c.gen.Bump(ctx, k)
	if bumpErr != nil {
		c.hooks.GenError("bump", bumpErr)
	}
	delErr := c.store.Del(ctx, k)

	c.mu.Lock()
	c.prevToken = ""
	c.lastToken = ""
	c.mu.Unlock()

	if bumpErr != nil || delErr != nil {
		return &ClearError{Key: k, BumpErr: bumpErr, DelErr: delErr}
	}
	return nil
}

// WasRefreshed reports whether the latest commit replaced a remembered
// prior session with a different access credential. Call after Set.
func (c *sessionCache) WasRefreshed(s *Session) bool {
	if s == nil {
		return false
	}
	c.mu.Lock()
	prev := c.prevToken
	c.mu.Unlock()
	return prev != "" && prev != s.AccessToken
}

func (c *sessionCache) drop(ctx context.Context, k, reason string) {
	_ = c.store.Del(ctx, k) // self-heal
	c.log.Debug("dropped cache entry", Fields{"key": k, "reason": reason})
	c.hooks.SelfHeal(k, reason)
}
