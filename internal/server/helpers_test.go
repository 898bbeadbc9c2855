package server

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *ChatStore {
	t.Helper()
	store, err := OpenChatStore(filepath.Join(t.TempDir(), "chat.json"), DefaultRetentionWindow, discardLogger())
	require.NoError(t, err)
	return store
}

// fakeSender records outbound traffic so routing behavior can be asserted
// without a live websocket transport.
type fakeSender struct {
	direct     map[*Client][][]byte
	broadcasts [][]byte
}

func newFakeSender() *fakeSender {
	return &fakeSender{direct: make(map[*Client][][]byte)}
}

func (f *fakeSender) sendTo(c *Client, payload []byte) {
	f.direct[c] = append(f.direct[c], payload)
}

func (f *fakeSender) broadcastAll(payload []byte) {
	f.broadcasts = append(f.broadcasts, payload)
}

func (f *fakeSender) reset() {
	f.direct = make(map[*Client][][]byte)
	f.broadcasts = nil
}

func (f *fakeSender) lastDirect(t *testing.T, c *Client) []byte {
	t.Helper()
	msgs := f.direct[c]
	require.NotEmpty(t, msgs, "expected a direct send to the client")
	return msgs[len(msgs)-1]
}

func (f *fakeSender) lastBroadcast(t *testing.T) []byte {
	t.Helper()
	require.NotEmpty(t, f.broadcasts, "expected a broadcast")
	return f.broadcasts[len(f.broadcasts)-1]
}
