package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

var (
	// ErrClosed is returned by Send after the connection has been closed.
	ErrClosed = errors.New("connection closed")
	// ErrBackpressure is returned by Send when the outbound queue is full.
	ErrBackpressure = errors.New("send queue full")
)

// Conn adapts a coder/websocket connection to registry.Conn. Outbound
// messages go through a bounded queue drained by a single writer goroutine,
// so Send never blocks a broadcaster.
type Conn struct {
	ws           *websocket.Conn
	queue        chan []byte
	writeTimeout time.Duration
	cancel       context.CancelFunc

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(c *websocket.Conn, queueSize int, writeTimeout time.Duration, cancel context.CancelFunc) *Conn {
	return &Conn{
		ws:           c,
		queue:        make(chan []byte, queueSize),
		writeTimeout: writeTimeout,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Send queues payload as a text frame without blocking.
func (c *Conn) Send(payload []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case c.queue <- payload:
		return nil
	default:
		return ErrBackpressure
	}
}

// Open reports whether Close has not been called yet.
func (c *Conn) Open() bool {
	return !c.closed.Load()
}

// Close sends a normal close frame and tears the connection down.
func (c *Conn) Close() {
	c.CloseWith(websocket.StatusNormalClosure, "")
}

// CloseWith closes with the given status. Only the first call has any effect.
// The handshake runs in the background so callers never wait on the peer.
func (c *Conn) CloseWith(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		go func() {
			defer close(c.done)
			if err := c.ws.Close(code, reason); err != nil {
				slog.Debug("close handshake failed", "error", err)
			}
			c.cancel()
		}()
	})
}

// Done is closed once the close handshake has finished.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// writeLoop drains the queue until ctx is cancelled or a write fails.
func (c *Conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.queue:
			writeCtx, writeCancel := context.WithTimeout(ctx, c.writeTimeout)
			err := c.ws.Write(writeCtx, websocket.MessageText, msg)
			writeCancel()
			if err != nil {
				slog.Debug("write failed", "error", err)
				c.CloseWith(websocket.StatusGoingAway, "write failed")
				return
			}
		}
	}
}
