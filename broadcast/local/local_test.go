package local

import (
	"context"
	"errors"
	"testing"

	"github.com/unkn0wn-root/sessync/broadcast"
)

func TestPostFansOutToSiblingsNotPoster(t *testing.T) {
	hub := NewHub()
	a, b, c := hub.Channel(), hub.Channel(), hub.Channel()

	var gotA, gotB, gotC []broadcast.Message
	a.OnMessage(func(m broadcast.Message) { gotA = append(gotA, m) })
	b.OnMessage(func(m broadcast.Message) { gotB = append(gotB, m) })
	c.OnMessage(func(m broadcast.Message) { gotC = append(gotC, m) })

	msg := broadcast.Message{Origin: "o1", Type: "signed_out"}
	if err := a.Post(context.Background(), msg); err != nil {
		t.Fatalf("Post: %v", err)
	}

	// delivery is synchronous, nothing to wait for
	if len(gotA) != 0 {
		t.Fatalf("poster received its own message: %+v", gotA)
	}
	if len(gotB) != 1 || gotB[0].Type != "signed_out" {
		t.Fatalf("sibling b got %+v", gotB)
	}
	if len(gotC) != 1 {
		t.Fatalf("sibling c got %+v", gotC)
	}
}

func TestRemoveHandlerStopsDelivery(t *testing.T) {
	hub := NewHub()
	a, b := hub.Channel(), hub.Channel()

	var got int
	remove := b.OnMessage(func(broadcast.Message) { got++ })

	_ = a.Post(context.Background(), broadcast.Message{Type: "signed_in"})
	remove()
	_ = a.Post(context.Background(), broadcast.Message{Type: "signed_in"})

	if got != 1 {
		t.Fatalf("handler ran %d times, want 1", got)
	}
}

func TestClosedChannelRejectsPostAndReceivesNothing(t *testing.T) {
	hub := NewHub()
	a, b := hub.Channel(), hub.Channel()

	var got int
	b.OnMessage(func(broadcast.Message) { got++ })

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := b.Post(context.Background(), broadcast.Message{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Post after Close = %v, want ErrClosed", err)
	}

	_ = a.Post(context.Background(), broadcast.Message{Type: "signed_out"})
	if got != 0 {
		t.Fatal("closed channel still received a message")
	}
}
