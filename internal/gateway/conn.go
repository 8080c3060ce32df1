package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrQueueFull reports a peer that cannot keep up with its outbound
	// traffic. The connection is torn down rather than letting one slow
	// reader stall everyone who writes to it.
	ErrQueueFull = errors.New("outbound queue full")

	// ErrConnClosed reports a write against a connection already torn down.
	ErrConnClosed = errors.New("connection closed")
)

// Conn wraps a websocket connection with a buffered outbound queue. All
// writes funnel through a single writer goroutine, so Send is safe to
// call from any goroutine and never blocks on the network.
type Conn struct {
	ws           *websocket.Conn
	outbound     chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
}

// NewConn wraps an upgraded websocket connection and starts its writer.
//
// Postcondition: The returned Conn owns ws. Callers interact with it only
// through ReadFrame, Send, and Close.
func NewConn(ws *websocket.Conn, queueSize int, writeTimeout time.Duration) *Conn {
	c := &Conn{
		ws:           ws,
		outbound:     make(chan []byte, queueSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	go c.writeLoop()
	return c
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.outbound:
			if c.writeTimeout > 0 {
				_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		}
	}
}

// ReadFrame blocks until the next frame arrives from the peer.
func (c *Conn) ReadFrame() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Send enqueues a frame for delivery. It fails fast instead of blocking
// when the queue is full or the connection is already closed.
func (c *Conn) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.outbound <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		c.Close()
		return ErrQueueFull
	}
}

// Subprotocol reports the subprotocol negotiated during the upgrade.
func (c *Conn) Subprotocol() string {
	return c.ws.Subprotocol()
}

// Close tears the connection down. Safe to call more than once and from
// any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.ws.Close()
	})
}
