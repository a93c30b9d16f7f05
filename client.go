package sessync

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/sessync/broadcast"
	"github.com/unkn0wn-root/sessync/codec"
	"github.com/unkn0wn-root/sessync/token"
)

type client struct {
	ns       string
	backend  Backend
	cache    *sessionCache
	flights  *flightGroup
	bcast    broadcast.Channel
	codec    codec.Codec[Session]
	eval     token.Evaluator
	log      Logger
	hooks    Hooks
	now      func() time.Time
	originID string
	queueLen int

	mu         sync.Mutex
	subs       map[string]*subscription
	refs       int // live subscriptions; channel handle opens 0→1, closes →0
	stopRemote func()
	closed     bool

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

var _ Client = (*client)(nil)

type getOptions struct {
	forceFetch bool
}

// GetOption tunes a single GetSession call.
type GetOption func(*getOptions)

// WithForceFetch bypasses the cache entirely and repopulates it from a
// fresh backend read.
func WithForceFetch() GetOption {
	return func(o *getOptions) { o.forceFetch = true }
}

// GetSession returns the current session, or (nil, nil) when signed out.
// Cache hits return immediately; misses share one backend round-trip among
// all concurrent callers.
func (c *client) GetSession(ctx context.Context, opts ...GetOption) (*Session, error) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !o.forceFetch {
		if s, ok := c.cache.Get(ctx); ok {
			return s, nil
		}
	}

	v, err, _ := c.flights.Do(flightSessionGet, func() (any, error) {
		obs := c.cache.Snapshot(ctx) // before the network hop
		s, ferr := c.backend.GetSession(ctx)
		if ferr != nil {
			return nil, ferr
		}
		if s == nil {
			return (*Session)(nil), nil // signed out upstream; nothing to cache
		}
		if cerr := c.cache.Set(ctx, s, obs, 0); cerr != nil {
			// a failed cache write must not fail the read
			c.log.Warn("session cache write failed", Fields{"err": cerr})
		}
		if c.cache.WasRefreshed(s) {
			// announced off the flight goroutine: the caller may be a
			// subscriber worker doing its initial fetch, and an awaited
			// dispatch from inside its own GetSession would deadlock it
			go c.announce(context.Background(), Event{Type: EventTokenRefreshed, Session: s})
		}
		return s, nil
	})
	if err != nil {
		return nil, Normalize(err)
	}
	s, _ := v.(*Session)
	return s, nil
}

func (c *client) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	return c.authenticate(ctx, flightSignIn, func() (*Session, error) {
		return c.backend.SignIn(ctx, creds)
	})
}

func (c *client) SignUp(ctx context.Context, creds Credentials) (*Session, error) {
	return c.authenticate(ctx, flightSignUp, func() (*Session, error) {
		return c.backend.SignUp(ctx, creds)
	})
}

// authenticate is the shared sign-in/sign-up path: one flight per
// operation, cache commit under the pre-call generation, one signed_in
// event per logical success.
func (c *client) authenticate(ctx context.Context, key string, call func() (*Session, error)) (*Session, error) {
	v, err, _ := c.flights.Do(key, func() (any, error) {
		obs := c.cache.Snapshot(ctx)
		s, ferr := call()
		if ferr != nil {
			return nil, ferr
		}
		if s == nil {
			return nil, &Error{Code: CodeUnexpected, Status: 500, Message: "backend returned no session"}
		}
		if cerr := c.cache.Set(ctx, s, obs, 0); cerr != nil {
			c.log.Warn("session cache write failed", Fields{"err": cerr})
		}
		c.announce(ctx, Event{Type: EventSignedIn, Session: s})
		return s, nil
	})
	if err != nil {
		return nil, Normalize(err)
	}
	s, _ := v.(*Session)
	return s, nil
}

// SignOut drops the session locally first, then upstream. The generation is
// bumped synchronously before any network call so a concurrent read that
// started earlier can no longer repopulate the cache, and every pending
// flight is forgotten so later callers cannot join a pre-sign-out result.
// Local state is cleared and signed_out delivered even when the upstream
// call fails; the normalized error is still returned.
func (c *client) SignOut(ctx context.Context) error {
	if err := c.cache.Invalidate(ctx); err != nil {
		c.log.Warn("invalidate on sign-out failed", Fields{"err": err})
	}
	c.flights.ForgetAll()

	_, err, _ := c.flights.Do(flightSignOut, func() (any, error) {
		serr := c.backend.SignOut(ctx)
		if cerr := c.cache.Clear(ctx); cerr != nil {
			c.log.Warn("clear on sign-out failed", Fields{"err": cerr})
		}
		c.announce(ctx, Event{Type: EventSignedOut})
		return nil, serr
	})
	if err != nil {
		return Normalize(err)
	}
	return nil
}

func (c *client) UpdateUser(ctx context.Context, update UserUpdate) (*Session, error) {
	v, err, _ := c.flights.Do(flightUserUpdate, func() (any, error) {
		obs := c.cache.Snapshot(ctx)
		s, ferr := c.backend.UpdateUser(ctx, update)
		if ferr != nil {
			return nil, ferr
		}
		if s == nil {
			return nil, &Error{Code: CodeUnexpected, Status: 500, Message: "backend returned no session"}
		}
		if cerr := c.cache.Set(ctx, s, obs, 0); cerr != nil {
			c.log.Warn("session cache write failed", Fields{"err": cerr})
		}
		c.announce(ctx, Event{Type: EventUserUpdated, Session: s})
		return s, nil
	})
	if err != nil {
		return nil, Normalize(err)
	}
	s, _ := v.(*Session)
	return s, nil
}

// RefreshSession exchanges the cached refresh credential for a fresh access
// credential via the lightweight endpoint, without refetching the user.
func (c *client) RefreshSession(ctx context.Context) (*Session, error) {
	v, err, _ := c.flights.Do(flightRefresh, func() (any, error) {
		cur, ok := c.cache.Get(ctx)
		if !ok {
			return nil, &Error{Code: CodeSessionNotFound, Status: 404, Message: "no active session to refresh"}
		}
		obs := c.cache.Snapshot(ctx)
		access, ferr := c.backend.RefreshAccess(ctx, cur.RefreshToken)
		if ferr != nil {
			return nil, ferr
		}

		next := *cur
		next.AccessToken = access
		if cl, ok := c.eval.Decode(access); ok {
			next.ExpiresAt = cl.ExpiresAt
		}

		if cerr := c.cache.Set(ctx, &next, obs, 0); cerr != nil {
			c.log.Warn("session cache write failed", Fields{"err": cerr})
		}
		if c.cache.WasRefreshed(&next) {
			c.announce(ctx, Event{Type: EventTokenRefreshed, Session: &next})
		}
		return &next, nil
	})
	if err != nil {
		return nil, Normalize(err)
	}
	s, _ := v.(*Session)
	return s, nil
}

// Token returns the cached session's access credential. Never hits the
// network: a cache miss is simply (_, false).
func (c *client) Token(ctx context.Context) (string, bool) {
	s, ok := c.cache.Get(ctx)
	if !ok {
		return "", false
	}
	return s.AccessToken, true
}

// Close stops subscriber workers, releases the broadcast handle and closes
// the owned generation store and session store. Safe to call multiple
// times.
func (c *client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		subs := make([]*subscription, 0, len(c.subs))
		for _, s := range c.subs {
			subs = append(subs, s)
		}
		c.subs = make(map[string]*subscription)
		c.refs = 0
		if c.stopRemote != nil {
			c.stopRemote()
			c.stopRemote = nil
		}
		c.mu.Unlock()

		for _, s := range subs {
			close(s.done)
		}
		c.wg.Wait()

		if err := c.bcast.Close(); err != nil {
			c.closeErr = err
		}
		if err := c.cache.gen.Close(ctx); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
		if err := c.cache.store.Close(ctx); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}
