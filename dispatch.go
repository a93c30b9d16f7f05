package sessync

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/sessync/broadcast"
)

// delivery pairs an event with the dispatch-side waiter so the triggering
// operation can await every subscriber before returning.
type delivery struct {
	ev Event
	wg *sync.WaitGroup
}

// subscription owns a worker goroutine and an ordered queue. The worker
// delivers the initial event first, then drains the queue, so per-context
// ordering holds without any lock over user callbacks.
type subscription struct {
	id      string
	handler Handler
	ch      chan delivery
	done    chan struct{}
}

// Subscribe registers h and returns its unsubscribe func (idempotent).
// The first subscription opens the cross-context channel; the last
// unsubscribe closes it. Exactly one initial event is delivered,
// asynchronously, before any other event reaches h; it carries a freshly
// fetched session, or nil when the fetch fails.
func (c *client) Subscribe(h Handler) func() {
	sub := &subscription{
		id:      uuid.NewString(),
		handler: h,
		ch:      make(chan delivery, c.queueLen),
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.log.Warn("subscribe on closed client", nil)
		return func() {}
	}
	c.subs[sub.id] = sub
	c.refs++
	if c.refs == 1 {
		c.stopRemote = c.bcast.OnMessage(c.onRemote)
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runSubscriber(sub)

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(sub.id) })
	}
}

func (c *client) unsubscribe(id string) {
	c.mu.Lock()
	sub, ok := c.subs[id]
	if ok {
		delete(c.subs, id)
		c.refs--
		if c.refs == 0 && c.stopRemote != nil {
			c.stopRemote()
			c.stopRemote = nil
		}
	}
	c.mu.Unlock()
	if ok {
		close(sub.done)
	}
}

func (c *client) runSubscriber(sub *subscription) {
	defer c.wg.Done()

	// Initial event: current session fetched fresh; a failed fetch delivers
	// nil rather than surfacing the error to the subscriber.
	sess, err := c.GetSession(context.Background())
	if err != nil {
		c.log.Debug("initial session fetch failed", Fields{"sub": sub.id, "err": err})
		sess = nil
	}
	c.deliver(sub, Event{Type: EventInitial, Session: sess}, nil)

	for {
		select {
		case d := <-sub.ch:
			c.deliver(sub, d.ev, d.wg)
		case <-sub.done:
			// release dispatchers still waiting on queued deliveries
			for {
				select {
				case d := <-sub.ch:
					if d.wg != nil {
						d.wg.Done()
					}
				default:
					return
				}
			}
		}
	}
}

func (c *client) deliver(sub *subscription, ev Event, wg *sync.WaitGroup) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("subscriber panicked", Fields{"sub": sub.id, "event": ev.Type, "panic": r})
			c.hooks.SubscriberPanic(sub.id, r)
		}
		if wg != nil {
			wg.Done()
		}
	}()
	if err := sub.handler(ev); err != nil {
		// collected, never propagated: one handler's failure must not
		// affect siblings or the triggering operation
		c.log.Warn("subscriber returned error", Fields{"sub": sub.id, "event": ev.Type, "err": err})
	}
}

// dispatch fans ev out to every live subscription and waits until each
// handler has run. This gives callers read-your-own-writes: when a mutating
// operation returns, every local observer has already seen its event.
func (c *client) dispatch(ev Event) {
	c.mu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		select {
		case s.ch <- delivery{ev: ev, wg: &wg}:
		case <-s.done:
			wg.Done()
		}
	}
	wg.Wait()
}

// announce delivers ev locally, then republishes it so sibling contexts
// converge. Local delivery is awaited; the broadcast is best-effort.
func (c *client) announce(ctx context.Context, ev Event) {
	c.dispatch(ev)

	msg := broadcast.Message{Origin: c.originID, Type: string(ev.Type)}
	if ev.Session != nil {
		b, err := c.codec.Encode(*ev.Session)
		if err != nil {
			c.log.Warn("broadcast encode failed", Fields{"event": ev.Type, "err": err})
			c.hooks.BroadcastError("encode", err)
			return
		}
		msg.Session = b
	}
	if err := c.bcast.Post(ctx, msg); err != nil {
		c.log.Warn("broadcast post failed", Fields{"event": ev.Type, "err": err})
		c.hooks.BroadcastError("post", err)
	}
}

// onRemote applies a sibling context's transition: update the local cache,
// deliver locally, and never re-publish (no echo loops). Arrival order is
// the only ordering across contexts; the last observed write wins.
func (c *client) onRemote(msg broadcast.Message) {
	if msg.Origin == c.originID {
		return
	}
	ctx := context.Background()

	switch EventType(msg.Type) {
	case EventSignedOut:
		if err := c.cache.Clear(ctx); err != nil {
			c.log.Warn("remote sign-out clear failed", Fields{"err": err})
		}
		c.dispatch(Event{Type: EventSignedOut})

	case EventSignedIn, EventTokenRefreshed, EventUserUpdated:
		if len(msg.Session) == 0 {
			return
		}
		s, err := c.codec.Decode(msg.Session)
		if err != nil {
			c.log.Warn("remote session decode failed", Fields{"err": err})
			c.hooks.BroadcastError("decode", err)
			return
		}
		obs := c.cache.Snapshot(ctx)
		if err := c.cache.Set(ctx, &s, obs, 0); err != nil {
			c.log.Warn("remote session cache failed", Fields{"err": err})
		}
		c.dispatch(Event{Type: EventType(msg.Type), Session: &s})

	default:
		// unknown transition from a newer sibling; ignore
	}
}
