package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrClosed is returned by [Channel.Send] once the channel has closed.
var ErrClosed = errors.New("session: channel closed")

// Channel is one client's live websocket connection. Sends are guarded: after
// the connection has gone away every send fails with [ErrClosed] instead of
// touching the dead socket, so late producers can discard their result.
type Channel struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newChannel(id string, conn *websocket.Conn, writeTimeout time.Duration) *Channel {
	return &Channel{id: id, conn: conn, writeTimeout: writeTimeout}
}

// ID returns the channel's identifier.
func (c *Channel) ID() string { return c.id }

// Send writes v as one JSON text message. A write error marks the channel
// closed.
func (c *Channel) Send(ctx context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	if err := wsjson.Write(ctx, c.conn, v); err != nil {
		c.closed = true
		return fmt.Errorf("session: send on %s: %w", c.id, err)
	}
	return nil
}

// markClosed stops further sends without touching the connection.
func (c *Channel) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Close closes the connection with code and reason. Safe to call more than
// once.
func (c *Channel) Close(code websocket.StatusCode, reason string) {
	c.markClosed()
	_ = c.conn.Close(code, reason)
}
