// Package local implements an in-process broadcast hub: every Channel
// attached to one Hub is a sibling context. Messages post from one channel
// to all others, never back to the poster.
//
// Delivery is synchronous on the poster's goroutine, which makes multi-
// "tab" tests deterministic.
package local

import (
	"context"
	"errors"
	"sync"

	"github.com/unkn0wn-root/sessync/broadcast"
)

var ErrClosed = errors.New("broadcast/local: channel closed")

type Hub struct {
	mu      sync.RWMutex
	members map[*Channel]struct{}
}

func NewHub() *Hub {
	return &Hub{members: make(map[*Channel]struct{})}
}

// Channel attaches a new sibling context to the hub.
func (h *Hub) Channel() *Channel {
	c := &Channel{hub: h, handlers: make(map[uint64]broadcast.Handler)}
	h.mu.Lock()
	h.members[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) post(from *Channel, msg broadcast.Message) {
	h.mu.RLock()
	members := make([]*Channel, 0, len(h.members))
	for m := range h.members {
		if m == from {
			continue
		}
		members = append(members, m)
	}
	h.mu.RUnlock()

	for _, m := range members {
		m.deliver(msg)
	}
}

func (h *Hub) remove(c *Channel) {
	h.mu.Lock()
	delete(h.members, c)
	h.mu.Unlock()
}

type Channel struct {
	hub *Hub

	mu       sync.RWMutex
	handlers map[uint64]broadcast.Handler
	nextID   uint64
	closed   bool
}

var _ broadcast.Channel = (*Channel)(nil)

func (c *Channel) Post(_ context.Context, msg broadcast.Message) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	c.hub.post(c, msg)
	return nil
}

func (c *Channel) OnMessage(h broadcast.Handler) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = h
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

func (c *Channel) deliver(msg broadcast.Message) {
	c.mu.RLock()
	hs := make([]broadcast.Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		hs = append(hs, h)
	}
	c.mu.RUnlock()
	for _, h := range hs {
		h(msg)
	}
}

func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handlers = make(map[uint64]broadcast.Handler)
	c.mu.Unlock()
	c.hub.remove(c)
	return nil
}
