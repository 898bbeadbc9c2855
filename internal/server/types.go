// Package server defines the JSON wire protocol exchanged with clients and
// shared helpers reused across client and hub logic.
package server

import "strings"

// Inbound and outbound message type discriminators.
const (
	typeJoin             = "join"
	typeRegister         = "register"
	typeUpdateProfilePic = "updateProfilePic"
	typeChat             = "chat"
	typePrivate          = "private"
	typeLoadPrivateChat  = "loadPrivateChat"
	typeOnline           = "online"
	typeChatHistory      = "chatHistory"
	typeProfileUpdated   = "profileUpdated"
)

// publicChatName is the chat label used for the broadcast history.
const publicChatName = "public"

// joinPayload registers an identity for the sending connection. "register" is
// accepted as an alias for "join".
type joinPayload struct {
	Name       string `json:"name" validate:"required"`
	ProfilePic string `json:"profilePic"`
}

// updateProfilePicPayload replaces the sender's stored profile picture.
type updateProfilePicPayload struct {
	ProfilePic string `json:"profilePic"`
}

// chatPayload submits a public message. The id is optional; the router
// synthesizes one when absent.
type chatPayload struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// privatePayload submits a point-to-point message.
type privatePayload struct {
	ID      string `json:"id"`
	To      string `json:"to" validate:"required"`
	Message string `json:"message"`
}

// loadPrivateChatPayload requests the history of the sender's thread with
// another user.
type loadPrivateChatPayload struct {
	With string `json:"with" validate:"required"`
}

// onlineMessage announces the current presence roster to every connection.
type onlineMessage struct {
	Type  string     `json:"type"`
	Count int        `json:"count"`
	Users []Identity `json:"users"`
}

// publicHistoryMessage carries the retained public log to one connection.
type publicHistoryMessage struct {
	Type     string          `json:"type"`
	Chat     string          `json:"chat"`
	Messages []PublicMessage `json:"messages"`
}

// privateHistoryMessage carries one private thread to one connection. Chat
// holds the other participant's name.
type privateHistoryMessage struct {
	Type     string           `json:"type"`
	Chat     string           `json:"chat"`
	Messages []PrivateMessage `json:"messages"`
}

// chatOutbound is the broadcast form of a public message.
type chatOutbound struct {
	Type string `json:"type"`
	PublicMessage
}

// privateOutbound is the delivery form of a private message, sent to the
// matching recipients and echoed to the sender.
type privateOutbound struct {
	Type string `json:"type"`
	PrivateMessage
}

// profileUpdatedMessage notifies all connections of a profile picture change.
type profileUpdatedMessage struct {
	Type       string `json:"type"`
	Name       string `json:"name"`
	ProfilePic string `json:"profilePic"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
