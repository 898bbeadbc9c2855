package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(NewConnectionRegistry(), newTestStore(t), discardLogger())
}

func TestSafeSendToUnknownClientFails(t *testing.T) {
	h := newTestHub(t)
	c := &Client{addr: "c", send: make(chan []byte, 1)}

	require.False(t, h.safeSend(c, []byte("x")))
	require.Empty(t, c.send)
}

func TestSafeSendToClosedClientFails(t *testing.T) {
	h := newTestHub(t)
	c := &Client{addr: "c", send: make(chan []byte, 1), closed: true}
	h.clients[c] = true

	require.False(t, h.safeSend(c, []byte("x")))
}

func TestBroadcastAllEvictsSaturatedClient(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)

	healthy := &Client{addr: "healthy", send: make(chan []byte, 4)}
	// Unbuffered channel with no reader: every send fails immediately.
	stalled := &Client{addr: "stalled", send: make(chan []byte)}
	h.clients[healthy] = true
	h.clients[stalled] = true

	h.broadcastAll([]byte("x"))

	req.Equal([]byte("x"), <-healthy.send)
	req.True(stalled.closed)

	_, exists := h.clients[stalled]
	req.False(exists, "saturated client must be evicted")

	// Its send channel must be closed so the write pump terminates.
	_, open := <-stalled.send
	req.False(open)
}

func TestEvictIsIdempotent(t *testing.T) {
	h := newTestHub(t)
	c := &Client{addr: "c", send: make(chan []byte)}
	h.clients[c] = true

	h.evict([]*Client{c})
	// A second eviction of the same client must not close the channel twice.
	h.evict([]*Client{c})
}

func TestHubShutdownCompletes(t *testing.T) {
	h := newTestHub(t)
	go h.Run()

	require.NoError(t, h.Shutdown(time.Second))
}

func TestHubIgnoresNilRegistration(t *testing.T) {
	h := newTestHub(t)
	go h.Run()

	h.register <- nil

	require.NoError(t, h.Shutdown(time.Second))
}
