package sessync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/sessync/broadcast"
	"github.com/unkn0wn-root/sessync/codec"
	"github.com/unkn0wn-root/sessync/genstore"
	"github.com/unkn0wn-root/sessync/store"
	"github.com/unkn0wn-root/sessync/store/memory"
	"github.com/unkn0wn-root/sessync/token"
)

// Client is the session surface handed to consumers. Every failure comes
// back as a normalized *Error; operations never panic on backend trouble.
type Client interface {
	// GetSession returns the current session, or (nil, nil) when signed
	// out. Reads are cached; concurrent misses share one backend call.
	GetSession(ctx context.Context, opts ...GetOption) (*Session, error)

	SignIn(ctx context.Context, creds Credentials) (*Session, error)
	SignUp(ctx context.Context, creds Credentials) (*Session, error)
	SignOut(ctx context.Context) error
	UpdateUser(ctx context.Context, update UserUpdate) (*Session, error)

	// RefreshSession forces a token refresh via the lightweight endpoint.
	RefreshSession(ctx context.Context) (*Session, error)

	// Token returns the cached access credential without touching the
	// network.
	Token(ctx context.Context) (string, bool)

	// Subscribe registers a change-event handler; the returned func
	// removes it. See EventInitial for first-delivery semantics.
	Subscribe(h Handler) (unsubscribe func())

	Close(ctx context.Context) error
}

// Options tune a client. Only Namespace and Backend are required; others
// have sensible single-context defaults.
type Options struct {
	// Required
	Namespace string  // isolates this client's keys on a shared medium, e.g. "app:prod"
	Backend   Backend // the upstream identity collaborator

	Store     store.Store          // nil => in-process memory store
	Codec     codec.Codec[Session] // nil => codec.JSON
	GenStore  genstore.GenStore    // nil => in-process LocalGenStore
	Broadcast broadcast.Channel    // nil => broadcast.Noop (single context)

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks

	DefaultTTL time.Duration    // cache TTL when token expiry is unknown; 0 => 5m
	ExpirySkew time.Duration    // clock-skew buffer subtracted from token expiry; 0 => 30s
	Clock      func() time.Time // nil => time.Now; tests inject their own
	QueueLen   int              // per-subscriber event queue depth; 0 => 16
}

// New builds a Client. The client owns the configured capabilities and
// closes them on Close.
func New(opts Options) (Client, error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("sessync: namespace is required")
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("sessync: backend is required")
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	var st store.Store = opts.Store
	if st == nil {
		st = memory.NewWithClock(now)
	}
	var cd codec.Codec[Session] = opts.Codec
	if cd == nil {
		cd = codec.JSON[Session]{}
	}
	var gs genstore.GenStore = opts.GenStore
	if gs == nil {
		gs = genstore.NewLocalGenStore()
	}
	var bc broadcast.Channel = opts.Broadcast
	if bc == nil {
		bc = broadcast.Noop{}
	}

	log := coalesce[Logger](opts.Logger, NopLogger{})
	hooks := coalesce[Hooks](opts.Hooks, NopHooks{})
	defaultTTL := coalesce[time.Duration](opts.DefaultTTL, 5*time.Minute)
	skew := coalesce[time.Duration](opts.ExpirySkew, 30*time.Second)
	queueLen := coalesce[int](opts.QueueLen, 16)

	eval := token.NewEvaluatorWithClock(defaultTTL, skew, now)

	c := &client{
		ns:       opts.Namespace,
		backend:  opts.Backend,
		flights:  newFlightGroup(),
		bcast:    bc,
		codec:    cd,
		eval:     eval,
		log:      log,
		hooks:    hooks,
		now:      now,
		originID: uuid.NewString(),
		queueLen: queueLen,
		subs:     make(map[string]*subscription),
	}
	c.cache = &sessionCache{
		ns:    opts.Namespace,
		store: st,
		codec: cd,
		gen:   gs,
		eval:  eval,
		log:   log,
		hooks: hooks,
		now:   now,
	}
	return c, nil
}
