// Package redis carries session transitions over a Redis pub/sub channel so
// sibling processes converge the way sibling tabs do.
//
// Redis delivers published messages to every subscriber, including the
// poster; consumers must filter by Message.Origin.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/sessync/broadcast"
)

var (
	ErrNilClient = errors.New("broadcast/redis: nil client")
	ErrNoChannel = errors.New("broadcast/redis: channel name is required")
)

type Config struct {
	Client      goredis.UniversalClient
	ChannelName string // e.g. "sessync:<namespace>"
	CloseClient bool   // set true only if this channel exclusively owns the client
}

type Channel struct {
	rdb         goredis.UniversalClient
	name        string
	sub         *goredis.PubSub
	closeClient bool

	mu       sync.RWMutex
	handlers map[uint64]broadcast.Handler
	nextID   uint64

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

var _ broadcast.Channel = (*Channel)(nil)

// New subscribes to cfg.ChannelName and starts the receive loop. The
// subscription is confirmed before New returns, so messages posted by
// siblings afterwards are not missed.
func New(ctx context.Context, cfg Config) (*Channel, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.ChannelName == "" {
		return nil, ErrNoChannel
	}

	sub := cfg.Client.Subscribe(ctx, cfg.ChannelName)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	c := &Channel{
		rdb:         cfg.Client,
		name:        cfg.ChannelName,
		sub:         sub,
		closeClient: cfg.CloseClient,
		handlers:    make(map[uint64]broadcast.Handler),
	}
	c.wg.Add(1)
	go c.recv()
	return c, nil
}

func (c *Channel) recv() {
	defer c.wg.Done()
	for m := range c.sub.Channel() {
		var msg broadcast.Message
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			continue // foreign or corrupt payload; skip
		}
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
}

func (c *Channel) Post(ctx context.Context, msg broadcast.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, c.name, b).Err()
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

// Close stops the receive loop and, when the channel owns the client,
// closes it. Safe to call multiple times.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.sub.Close()
		c.wg.Wait()
		if c.closeClient {
			if err := c.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) && c.closeErr == nil {
				c.closeErr = err
			}
		}
	})
	return c.closeErr
}
