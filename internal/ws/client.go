// Package ws adapts gorilla websocket connections to the stream protocol.
package ws

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Client wraps a websocket connection for a single stream session. A
// dedicated goroutine is the connection's only reader: gorilla read errors
// are permanent, so the connection must never be read again after one. The
// reader drains inbound messages into a channel the session selects on.
type Client struct {
	conn      *websocket.Conn
	log       *slog.Logger
	messages  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// NewClient wraps conn and starts its reader goroutine.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	c := &Client{
		conn:     conn,
		log:      logger,
		messages: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.messages)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.err = err
			return
		}
		select {
		case c.messages <- payload:
		case <-c.done:
			return
		}
	}
}

// Messages yields inbound client messages. The channel closes when the
// connection dies or Close is called.
func (c *Client) Messages() <-chan []byte {
	return c.messages
}

// Err reports the terminal read error. Only meaningful after Messages has
// closed; the close of the channel publishes the write.
func (c *Client) Err() error {
	return c.err
}

// WriteJSON pushes one JSON message to the client.
func (c *Client) WriteJSON(v any) error {
	if err := c.conn.WriteJSON(v); err != nil {
		if c.log != nil && !IsNormalClose(err) {
			c.log.Warn("websocket send failed", "error", err)
		}
		_ = c.Close()
		return err
	}
	return nil
}

// Close terminates the connection and releases the reader.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}

// IsNormalClose reports whether an error matches a known benign teardown
// signature: standard close codes or keepalive/heartbeat timeouts. Anything
// else is worth logging as unexpected before teardown.
func IsNormalClose(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseInternalServerErr,
	) {
		return true
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range []string{
		"keepalive ping timeout",
		"heartbeat timeout",
		"connection closed",
		"connection reset",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
