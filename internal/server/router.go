// Package server routes inbound client messages: the MessageRouter parses
// and validates each JSON envelope, consults the registry and chat store, and
// emits the resulting broadcasts and direct sends.
package server

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// sender abstracts outbound delivery so routing logic stays independent of
// the WebSocket transport. The hub is the production implementation.
type sender interface {
	sendTo(c *Client, payload []byte)
	broadcastAll(payload []byte)
}

// MessageRouter is the protocol state machine. Each connection is either
// unregistered (initial) or registered (after a successful join); every
// message type other than join/register requires registration and is silently
// discarded otherwise. Malformed payloads and unknown types are likewise
// dropped without a response; clients never receive protocol errors.
//
// Dispatch is only ever called from the hub's event loop, so the registry and
// store see strictly sequential access.
type MessageRouter struct {
	registry *ConnectionRegistry
	store    *ChatStore
	presence *PresenceBroadcaster
	out      sender
	validate *validator.Validate
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewMessageRouter wires the router to its collaborators.
func NewMessageRouter(registry *ConnectionRegistry, store *ChatStore, presence *PresenceBroadcaster, out sender, logger *slog.Logger) *MessageRouter {
	return &MessageRouter{
		registry: registry,
		store:    store,
		presence: presence,
		out:      out,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Dispatch processes one raw inbound payload from a connection to completion.
func (rt *MessageRouter) Dispatch(c *Client, raw []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		rt.logger.Debug("discarding malformed payload", "addr", c.addr, "error", err)
		return
	}

	switch envelope.Type {
	case typeJoin, typeRegister:
		rt.handleJoin(c, raw)
	case typeUpdateProfilePic:
		rt.handleUpdateProfilePic(c, raw)
	case typeChat:
		rt.handleChat(c, raw)
	case typePrivate:
		rt.handlePrivate(c, raw)
	case typeLoadPrivateChat:
		rt.handleLoadPrivateChat(c, raw)
	default:
		rt.logger.Debug("discarding unrecognized message type", "addr", c.addr, "type", envelope.Type)
	}
}

// decode unmarshals raw into v and applies field validation. A false return
// means the payload was dropped.
func (rt *MessageRouter) decode(c *Client, raw []byte, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		rt.logger.Debug("discarding malformed payload", "addr", c.addr, "error", err)
		return false
	}
	if err := rt.validate.Struct(v); err != nil {
		rt.logger.Debug("discarding invalid payload", "addr", c.addr, "error", err)
		return false
	}
	return true
}

// sender must already be registered for every handler below except join.
func (rt *MessageRouter) registered(c *Client) (Identity, bool) {
	id, ok := rt.registry.Lookup(c)
	if !ok {
		rt.logger.Debug("discarding message from unregistered connection", "addr", c.addr)
	}
	return id, ok
}

// handleJoin binds the claimed identity, announces the new roster, and sends
// the joining connection the retained public history. A repeated join simply
// rebinds the identity.
func (rt *MessageRouter) handleJoin(c *Client, raw []byte) {
	var p joinPayload
	if !rt.decode(c, raw, &p) {
		return
	}

	rt.registry.Register(c, Identity{Name: p.Name, ProfilePic: p.ProfilePic})
	rt.presence.BroadcastOnline(rt.registry, rt.out)
	rt.sendPublicHistory(c)
}

// handleUpdateProfilePic replaces the sender's stored profile picture and
// notifies all connections.
func (rt *MessageRouter) handleUpdateProfilePic(c *Client, raw []byte) {
	id, ok := rt.registered(c)
	if !ok {
		return
	}

	var p updateProfilePicPayload
	if !rt.decode(c, raw, &p) {
		return
	}

	id.ProfilePic = p.ProfilePic
	rt.registry.Register(c, id)
	rt.presence.BroadcastOnline(rt.registry, rt.out)

	payload, err := json.Marshal(profileUpdatedMessage{
		Type:       typeProfileUpdated,
		Name:       id.Name,
		ProfilePic: id.ProfilePic,
	})
	if err != nil {
		rt.logger.Error("encoding profile update", "error", err)
		return
	}
	rt.out.broadcastAll(payload)
}

// handleChat appends a public message to the store and broadcasts it to all
// open connections. The store write completes before the broadcast.
func (rt *MessageRouter) handleChat(c *Client, raw []byte) {
	id, ok := rt.registered(c)
	if !ok {
		return
	}

	var p chatPayload
	if !rt.decode(c, raw, &p) {
		return
	}

	msg := PublicMessage{
		ID:         rt.messageID(p.ID),
		User:       id.Name,
		ProfilePic: id.ProfilePic,
		Message:    p.Message,
		Timestamp:  rt.now().UnixMilli(),
	}
	rt.store.AppendPublic(msg)

	payload, err := json.Marshal(chatOutbound{Type: typeChat, PublicMessage: msg})
	if err != nil {
		rt.logger.Error("encoding public message", "error", err)
		return
	}
	rt.out.broadcastAll(payload)
}

// handlePrivate appends a private message under the symmetric conversation
// key, delivers it to every connection registered under the recipient name,
// and always echoes it back to the sender, online recipient or not.
func (rt *MessageRouter) handlePrivate(c *Client, raw []byte) {
	id, ok := rt.registered(c)
	if !ok {
		return
	}

	var p privatePayload
	if !rt.decode(c, raw, &p) {
		return
	}

	msg := PrivateMessage{
		ID:         rt.messageID(p.ID),
		From:       id.Name,
		To:         p.To,
		ProfilePic: id.ProfilePic,
		Message:    p.Message,
		Timestamp:  rt.now().UnixMilli(),
	}
	rt.store.AppendPrivate(ConversationKey(id.Name, p.To), msg)

	payload, err := json.Marshal(privateOutbound{Type: typePrivate, PrivateMessage: msg})
	if err != nil {
		rt.logger.Error("encoding private message", "error", err)
		return
	}

	for _, recipient := range rt.registry.ConnectionsNamed(p.To) {
		if recipient == c {
			continue
		}
		rt.out.sendTo(recipient, payload)
	}
	rt.out.sendTo(c, payload)
}

// handleLoadPrivateChat sends the sender its thread with the named peer,
// materializing an empty thread when none exists.
func (rt *MessageRouter) handleLoadPrivateChat(c *Client, raw []byte) {
	id, ok := rt.registered(c)
	if !ok {
		return
	}

	var p loadPrivateChatPayload
	if !rt.decode(c, raw, &p) {
		return
	}

	msgs := rt.store.HistoryPrivate(ConversationKey(id.Name, p.With))
	payload, err := json.Marshal(privateHistoryMessage{
		Type:     typeChatHistory,
		Chat:     p.With,
		Messages: msgs,
	})
	if err != nil {
		rt.logger.Error("encoding private history", "error", err)
		return
	}
	rt.out.sendTo(c, payload)
}

func (rt *MessageRouter) sendPublicHistory(c *Client) {
	payload, err := json.Marshal(publicHistoryMessage{
		Type:     typeChatHistory,
		Chat:     publicChatName,
		Messages: rt.store.HistoryPublic(),
	})
	if err != nil {
		rt.logger.Error("encoding public history", "error", err)
		return
	}
	rt.out.sendTo(c, payload)
}

// messageID keeps a client-supplied id unchanged so clients can correlate the
// echo with what they sent; otherwise it synthesizes one. Uniqueness is
// best-effort only.
func (rt *MessageRouter) messageID(supplied string) string {
	if supplied != "" {
		return supplied
	}
	return rt.newID()
}
