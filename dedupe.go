package sessync

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Flight keys for the public operations. One key per logical operation:
// concurrent callers of the same operation share one backend round-trip
// and one settled result (success or failure alike).
const (
	flightSessionGet = "session:get"
	flightRefresh    = "session:refresh"
	flightSignIn     = "auth:signin"
	flightSignUp     = "auth:signup"
	flightSignOut    = "auth:signout"
	flightUserUpdate = "user:update"
)

// flightGroup wraps singleflight with live-key tracking so sign-out can
// forget every registration at once. Forgetting detaches the key, not the
// callers already joined: they still observe their flight's settlement,
// while later callers start a fresh one.
type flightGroup struct {
	sf singleflight.Group

	mu   sync.Mutex
	keys map[string]int // live waiter count per key
}

func newFlightGroup() *flightGroup {
	return &flightGroup{keys: make(map[string]int)}
}

// Do returns the result of fn for key, sharing one invocation among all
// concurrent callers. The key is deregistered on settlement, so a failed
// flight is immediately retryable.
func (g *flightGroup) Do(key string, fn func() (any, error)) (any, error, bool) {
	g.mu.Lock()
	g.keys[key]++
	g.mu.Unlock()

	v, err, shared := g.sf.Do(key, fn)

	g.mu.Lock()
	if n := g.keys[key]; n <= 1 {
		delete(g.keys, key)
	} else {
		g.keys[key] = n - 1
	}
	g.mu.Unlock()

	return v, err, shared
}

// Forget detaches key so the next Do starts a fresh flight.
func (g *flightGroup) Forget(key string) {
	g.mu.Lock()
	delete(g.keys, key)
	g.mu.Unlock()
	g.sf.Forget(key)
}

// ForgetAll detaches every live key. Used at sign-out so no caller arriving
// afterwards can join a flight started before it.
func (g *flightGroup) ForgetAll() {
	g.mu.Lock()
	keys := make([]string, 0, len(g.keys))
	for k := range g.keys {
		keys = append(keys, k)
	}
	g.keys = make(map[string]int)
	g.mu.Unlock()

	for _, k := range keys {
		g.sf.Forget(k)
	}
}
