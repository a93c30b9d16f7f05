package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/sessync/broadcast"
)

func newTestChannel(t *testing.T, mr *miniredis.Miniredis, name string) *Channel {
	t.Helper()
	c, err := New(context.Background(), Config{
		Client:      goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
		ChannelName: name,
		CloseClient: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// recorder collects messages behind a lock so the async receive loop and the
// test goroutine can share it.
type recorder struct {
	mu   sync.Mutex
	msgs []broadcast.Message
}

func (r *recorder) handle(m broadcast.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recorder) first(t *testing.T) broadcast.Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		t.Fatal("no message recorded")
	}
	return r.msgs[0]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Config{ChannelName: "c"}); err != ErrNilClient {
		t.Fatalf("err = %v, want ErrNilClient", err)
	}
	mr := miniredis.RunT(t)
	if _, err := New(ctx, Config{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}); err != ErrNoChannel {
		t.Fatalf("err = %v, want ErrNoChannel", err)
	}
}

// Redis pub/sub echoes to the poster's own subscription; origin filtering is
// the consumer's job, so both ends must see the message here.
func TestPostReachesAllSubscribersIncludingPoster(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	a := newTestChannel(t, mr, "sessync:test")
	b := newTestChannel(t, mr, "sessync:test")

	var recA, recB recorder
	a.OnMessage(recA.handle)
	b.OnMessage(recB.handle)

	msg := broadcast.Message{Origin: "origin-a", Type: "signed_out"}
	if err := a.Post(ctx, msg); err != nil {
		t.Fatalf("Post: %v", err)
	}

	waitFor(t, "sibling delivery", func() bool { return recB.len() == 1 })
	waitFor(t, "echo to poster", func() bool { return recA.len() == 1 })

	got := recB.first(t)
	if got.Origin != "origin-a" || got.Type != "signed_out" {
		t.Fatalf("sibling got %+v", got)
	}
}

func TestSessionPayloadRoundtrips(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	a := newTestChannel(t, mr, "sessync:test")
	b := newTestChannel(t, mr, "sessync:test")

	var rec recorder
	b.OnMessage(rec.handle)

	payload := []byte(`{"access_token":"tok-a"}`)
	if err := a.Post(ctx, broadcast.Message{Origin: "o", Type: "signed_in", Session: payload}); err != nil {
		t.Fatalf("Post: %v", err)
	}

	waitFor(t, "delivery", func() bool { return rec.len() == 1 })
	if got := rec.first(t); string(got.Session) != string(payload) {
		t.Fatalf("session payload = %q", got.Session)
	}
}

func TestForeignPayloadIsSkipped(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	a := newTestChannel(t, mr, "sessync:test")
	b := newTestChannel(t, mr, "sessync:test")

	var rec recorder
	b.OnMessage(rec.handle)

	// someone else is talking on our channel; their frames must not crash or
	// surface as zero-value messages
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Publish(ctx, "sessync:test", "not json at all").Err(); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := a.Post(ctx, broadcast.Message{Origin: "o", Type: "signed_out"}); err != nil {
		t.Fatalf("Post: %v", err)
	}

	waitFor(t, "real message delivery", func() bool { return rec.len() == 1 })
	if got := rec.first(t); got.Type != "signed_out" {
		t.Fatalf("got %+v", got)
	}
}

func TestRemoveHandlerStopsDelivery(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	a := newTestChannel(t, mr, "sessync:test")
	b := newTestChannel(t, mr, "sessync:test")

	var kept, removed recorder
	b.OnMessage(kept.handle)
	stop := b.OnMessage(removed.handle)
	stop()

	if err := a.Post(ctx, broadcast.Message{Origin: "o", Type: "signed_in"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	waitFor(t, "kept handler delivery", func() bool { return kept.len() == 1 })
	if removed.len() != 0 {
		t.Fatal("removed handler still received a message")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestChannel(t, mr, "sessync:test")
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
