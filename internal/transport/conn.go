/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package transport carries raw frames between the two ends of a match over
// websockets and reports open, message and close events to a Handler.
package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrClosed         = errors.New("channel closed")
	ErrSendQueueFull  = errors.New("send queue full")
	ErrNoRoute        = errors.New("no route to peer")
	ErrUnsupportedURL = errors.New("unsupported match url")
)

// Channel is one open link to a peer.
type Channel interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Handler receives channel lifecycle events. OnOpen fires before any
// OnMessage, OnClose fires exactly once.
type Handler interface {
	OnOpen(c Channel)
	OnMessage(c Channel, data []byte)
	OnClose(c Channel, err error)
}

type Options struct {
	SendBuffer     int
	MaxMessageSize int64
	PingInterval   time.Duration
	WriteTimeout   time.Duration

	// ConnectTimeout bounds each websocket handshake when dialing.
	ConnectTimeout time.Duration

	Logf func(format string, args ...any)
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 16
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.Logf == nil {
		o.Logf = func(string, ...any) {}
	}
	return o
}

// Conn is a websocket-backed Channel. Writes go through a bounded queue
// drained by a single write pump.
type Conn struct {
	id   string
	conn *websocket.Conn
	opts Options

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newConn(ws *websocket.Conn, opts Options) *Conn {
	return &Conn{
		id:   uuid.NewString(),
		conn: ws,
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// Send queues data for the peer without blocking.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close flushes queued frames, then closes the socket. Safe to call more
// than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)

	return nil
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// start hands the connection to h and runs the write pump. The caller runs
// readPump, either inline or on its own goroutine.
func (c *Conn) start(h Handler) {
	h.OnOpen(c)
	go c.writePump()
}

func (c *Conn) readPump(h Handler) {
	var err error
	defer func() {
		_ = c.Close()
		_ = c.conn.Close()
		h.OnClose(c, err)
	}()

	pongWait := 2 * c.opts.PingInterval

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var kind int
		var data []byte
		kind, data, err = c.conn.ReadMessage()
		if err != nil {
			if c.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		h.OnMessage(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.opts.Logf("PEERS: write to %s failed: %v", c.id, err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
