// Package server coordinates connection registration, inbound message
// dispatch, and outbound fan-out for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// inboundFrame carries one raw payload from a connection's read pump into the
// hub's event loop.
type inboundFrame struct {
	client  *Client
	payload []byte
}

// Hub owns the single event loop that serializes every state mutation in the
// relay: connects, disconnects, and inbound messages are all processed to
// completion, one at a time, by Run. The registry and chat store are only
// touched from that loop; the clients map is additionally mutex-protected
// because the per-connection pumps consult it when sending.
type Hub struct {
	clients    map[*Client]bool
	inbound    chan inboundFrame
	register   chan *Client
	unregister chan *Client

	registry *ConnectionRegistry
	presence *PresenceBroadcaster
	router   *MessageRouter
	logger   *slog.Logger

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub wired to the given registry and store. The returned
// hub is ready to manage connections once Run is started.
func NewHub(registry *ConnectionRegistry, store *ChatStore, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[*Client]bool),
		inbound:    make(chan inboundFrame),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		registry:   registry,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.presence = NewPresenceBroadcaster(logger)
	h.router = NewMessageRouter(registry, store, h.presence, h, logger)
	return h
}

// Run starts the hub's event loop. This method should be called in a
// separate goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("client connected", "addr", client.addr, "total", clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

			// Connects are membership-affecting even before registration.
			h.presence.BroadcastOnline(h.registry, h)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel after releasing the lock.
				close(client.send)
				h.logger.Info("client disconnected", "addr", client.addr, "total", clientCount)
			} else {
				h.mutex.Unlock()
			}
			h.registry.Remove(client)
			h.presence.BroadcastOnline(h.registry, h)

		case frame := <-h.inbound:
			h.router.Dispatch(frame.client, frame.payload)
		}
	}
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("recovered from panic in safeSend", "panic", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	// Non-blocking: a saturated receiver loses the message rather than
	// stalling dispatch for everyone else.
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// sendTo delivers a payload to one connection, best-effort. A connection that
// cannot accept it is evicted; its disconnect cleanup follows through the
// normal unregister path once the socket closes.
func (h *Hub) sendTo(client *Client, payload []byte) {
	if !h.safeSend(client, payload) {
		h.evict([]*Client{client})
	}
}

// broadcastAll fans a payload out to every open connection, evicting any
// whose send buffer is saturated.
func (h *Hub) broadcastAll(payload []byte) {
	clients := h.clientSnapshot()

	var failed []*Client
	for _, client := range clients {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.evict(failed)
}

// clientSnapshot returns a thread-safe snapshot of all current clients.
func (h *Hub) clientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// evict removes clients that could not be sent to and closes their send
// channels. Closing the channel ends the write pump, which closes the socket,
// which drives the read pump into the unregister path for registry cleanup.
func (h *Hub) evict(clients []*Client) {
	if len(clients) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clients {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			h.logger.Warn("client removed due to full send buffer", "addr", client.addr)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	h.logger.Info("shutting down all client connections")

	clients := h.clientSnapshot()
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					h.logger.Error("closing client connection", "addr", client.addr, "error", err)
				}
			}
		}
	}

	h.logger.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the event loop, closes every connection, and waits for the
// pump goroutines to finish or the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
