// Package server persists public and private chat history as a single JSON
// snapshot document, enforcing the retention window on public messages.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"
)

// DefaultRetentionWindow is the maximum age a public message may reach before
// it is pruned from the store.
const DefaultRetentionWindow = 7 * 24 * time.Hour

// PublicMessage is one entry in the broadcast chat log. Messages are
// immutable once appended; only retention pruning removes them.
type PublicMessage struct {
	ID         string `json:"id"`
	User       string `json:"user"`
	ProfilePic string `json:"profilePic"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
}

// PrivateMessage is one entry in a point-to-point conversation thread.
type PrivateMessage struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	To         string `json:"to"`
	ProfilePic string `json:"profilePic"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
}

// snapshot is the on-disk document layout. The whole document is rewritten
// after every mutation.
type snapshot struct {
	Public  []PublicMessage             `json:"public"`
	Private map[string][]PrivateMessage `json:"private"`
}

// ChatStore owns the durable chat history. It is only ever touched from the
// hub's event loop, so it needs no internal locking; every mutation is
// followed by a synchronous snapshot write before the call returns.
type ChatStore struct {
	path      string
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	public  []PublicMessage
	private map[string][]PrivateMessage
}

// ConversationKey derives the symmetric identifier for a private thread from
// the unordered pair of participant names, so key(a,b) == key(b,a).
func ConversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "_" + b
}

// OpenChatStore loads the snapshot at path, prunes expired public messages,
// and returns a ready store. A missing file yields an empty store; an
// unreadable or corrupt file is a startup error.
func OpenChatStore(path string, retention time.Duration, logger *slog.Logger) (*ChatStore, error) {
	if retention <= 0 {
		retention = DefaultRetentionWindow
	}

	s := &ChatStore{
		path:      path,
		retention: retention,
		logger:    logger,
		now:       time.Now,
		private:   make(map[string][]PrivateMessage),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading chat store %s: %w", path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding chat store %s: %w", path, err)
	}

	s.public = snap.Public
	if snap.Private != nil {
		s.private = snap.Private
	}

	if removed := s.PruneExpiredPublic(); removed > 0 {
		s.logger.Info("pruned expired public messages at startup", "removed", removed)
		s.persist()
	}

	return s, nil
}

// AppendPublic appends a message to the public log, prunes expired entries,
// and writes the snapshot before returning.
func (s *ChatStore) AppendPublic(m PublicMessage) {
	s.public = append(s.public, m)
	s.PruneExpiredPublic()
	s.persist()
}

// AppendPrivate appends a message to the thread identified by key and writes
// the snapshot before returning.
func (s *ChatStore) AppendPrivate(key string, m PrivateMessage) {
	s.private[key] = append(s.private[key], m)
	s.persist()
}

// HistoryPublic returns the public log filtered by the retention window. The
// stored log itself is not mutated; pruning happens on append and at startup.
func (s *ChatStore) HistoryPublic() []PublicMessage {
	cutoff := s.cutoff()
	return lo.Filter(s.public, func(m PublicMessage, _ int) bool {
		return m.Timestamp > cutoff
	})
}

// HistoryPrivate returns the thread for key, materializing an empty entry
// when none exists so repeated reads observe the same thread. The empty entry
// reaches disk with the next snapshot write.
func (s *ChatStore) HistoryPrivate(key string) []PrivateMessage {
	msgs, ok := s.private[key]
	if !ok {
		msgs = []PrivateMessage{}
		s.private[key] = msgs
	}
	return msgs
}

// PruneExpiredPublic drops every public message older than the retention
// window and reports how many were removed.
func (s *ChatStore) PruneExpiredPublic() int {
	cutoff := s.cutoff()
	kept := lo.Filter(s.public, func(m PublicMessage, _ int) bool {
		return m.Timestamp > cutoff
	})
	removed := len(s.public) - len(kept)
	s.public = kept
	return removed
}

func (s *ChatStore) cutoff() int64 {
	return s.now().UnixMilli() - s.retention.Milliseconds()
}

// persist rewrites the whole snapshot document. The write goes to a
// temporary file first and is renamed into place so a crash mid-write cannot
// leave a truncated document. Failures are logged and the store keeps
// serving from memory.
func (s *ChatStore) persist() {
	snap := snapshot{Public: s.public, Private: s.private}
	if snap.Public == nil {
		snap.Public = []PublicMessage{}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Error("encoding chat store snapshot", "error", err)
		return
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		s.logger.Error("creating chat store temp file", "error", err)
		return
	}

	if _, err := tmp.Write(data); err != nil {
		s.logger.Error("writing chat store snapshot", "error", err)
		tmp.Close()
		os.Remove(tmp.Name())
		return
	}
	if err := tmp.Close(); err != nil {
		s.logger.Error("closing chat store temp file", "error", err)
		os.Remove(tmp.Name())
		return
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		s.logger.Error("replacing chat store snapshot", "error", err)
		os.Remove(tmp.Name())
	}
}
