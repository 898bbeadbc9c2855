// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// pongWait is how long a connection may stay silent before the read
	// deadline fires; pings go out well inside that window.
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second

	sendBufferSize = 256
)

// Client represents one WebSocket connection in the relay. It carries the
// connection state, the buffered outbound channel drained by the write pump,
// and the per-connection inbound rate limiter. The hub holds clients only as
// registry keys; the transport owns the underlying socket.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	addr    string
	closed  bool
	limiter *rate.Limiter
}

// NewClient creates a Client for an upgraded connection. The read limit and
// rate limiter come from the supplied configuration.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg *Config) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	interval := cfg.RateLimitRefillInterval / time.Duration(cfg.RateLimitBurst)
	return &Client{
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		hub:     hub,
		addr:    addr,
		limiter: rate.NewLimiter(rate.Every(interval), cfg.RateLimitBurst),
	}
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.logger.Error("setting initial read deadline", "addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.hub.logger.Error("setting read deadline in pong handler", "addr", c.addr, "error", err)
		}
		return nil
	})
}

// handleReadError logs an appropriate message for the error and returns true
// when the read loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.hub.logger.Warn("message exceeded maximum size", "addr", c.addr)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.hub.logger.Info("client disconnected", "addr", c.addr, "reason", err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.hub.logger.Info("client connection closed", "addr", c.addr, "reason", err)
		return true
	}

	c.hub.logger.Warn("websocket read error", "addr", c.addr, "error", err)
	return true
}

// readPump forwards raw inbound frames to the hub's event loop, applying the
// per-connection rate limit. Messages over the limit are silently discarded.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.hub.logger.Error("closing connection in readPump", "error", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
		}

		if !c.limiter.Allow() {
			c.hub.logger.Debug("rate limit exceeded; discarding message", "addr", c.addr)
			continue
		}

		select {
		case c.hub.inbound <- inboundFrame{client: c, payload: rawMessage}:
		case <-c.hub.ctx.Done():
			return
		}
	}
}

// writePump drains the send channel to the socket, one frame per message so
// browser clients can JSON-parse each frame, and keeps the connection alive
// with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Error("setting write deadline", "addr", c.addr, "error", err)
				return
			}

			if !ok {
				c.writeCloseMessage()
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				if !isExpectedCloseError(err) {
					c.hub.logger.Warn("writing message", "addr", c.addr, "error", err)
				}
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Error("setting write deadline for ping", "addr", c.addr, "error", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !isExpectedCloseError(err) {
					c.hub.logger.Warn("writing ping message", "addr", c.addr, "error", err)
				}
				return
			}
		}
	}
}

// closeConnection closes the socket, ignoring the errors expected during
// normal teardown.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.hub.logger.Error("closing connection in writePump", "error", err)
		}
	}
}

// writeCloseMessage notifies the peer that the server is done with the
// connection.
func (c *Client) writeCloseMessage() {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.hub.logger.Warn("writing close message", "addr", c.addr, "error", err)
		}
	}
}
