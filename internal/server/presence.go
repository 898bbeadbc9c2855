// Package server derives the online roster from the connection registry and
// announces it to every open connection.
package server

import (
	"encoding/json"
	"log/slog"
)

// PresenceBroadcaster projects the registry's registered identities into an
// "online" message. The router invokes it after every membership-affecting
// event: connect, disconnect, registration, and profile update.
type PresenceBroadcaster struct {
	logger *slog.Logger
}

// NewPresenceBroadcaster creates a broadcaster that logs through logger.
func NewPresenceBroadcaster(logger *slog.Logger) *PresenceBroadcaster {
	return &PresenceBroadcaster{logger: logger}
}

// BroadcastOnline sends the current roster, with its count, to every open
// connection. Duplicate names appear once per registered connection.
func (p *PresenceBroadcaster) BroadcastOnline(registry *ConnectionRegistry, out sender) {
	users := registry.ListRegistered()

	payload, err := json.Marshal(onlineMessage{
		Type:  typeOnline,
		Count: len(users),
		Users: users,
	})
	if err != nil {
		p.logger.Error("encoding online roster", "error", err)
		return
	}

	out.broadcastAll(payload)
}
