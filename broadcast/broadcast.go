// Package broadcast abstracts the cross-context message channel that keeps
// sibling clients (other tabs, other processes) convergent on session state.
//
// Delivery is best-effort and unordered across contexts: convergence is
// "last message observed wins" by arrival time. Environments without a
// multi-context concept use Noop.
package broadcast

import "context"

// Message is one session transition republished to sibling contexts.
// Session carries the codec-encoded session for session-bearing transitions
// and is empty for sign-out. Origin identifies the posting client so
// transports that echo to the poster can be filtered.
type Message struct {
	Origin  string `json:"origin"`
	Type    string `json:"type"`
	Session []byte `json:"session,omitempty"`
}

// Handler receives remote messages. Handlers may be invoked from transport
// goroutines (or, for in-process hubs, the poster's goroutine) and must not
// block indefinitely.
type Handler func(Message)

// Channel is the capability interface for one context's handle on the
// shared medium.
type Channel interface {
	// Post publishes msg to sibling contexts. Whether the poster's own
	// handlers observe msg is transport-specific; consumers filter by
	// Message.Origin.
	Post(ctx context.Context, msg Message) error

	// OnMessage registers a handler and returns its removal func.
	OnMessage(h Handler) (remove func())

	// Close releases the channel handle. Posting after Close is an error.
	Close() error
}

// Noop is the Channel for single-context environments. Post drops messages,
// handlers never fire.
type Noop struct{}

var _ Channel = Noop{}

func (Noop) Post(context.Context, Message) error { return nil }
func (Noop) OnMessage(Handler) func()            { return func() {} }
func (Noop) Close() error                        { return nil }
