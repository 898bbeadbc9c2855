// Package server implements the chatrelay service: a WebSocket relay that
// routes public and private chat messages, tracks online presence, and
// persists message history as a JSON snapshot with a retention window on the
// public log.
//
// The implementation is organized into specialized files for the chat store,
// connection registry, presence broadcasting, message routing, hub and client
// lifecycle, configuration, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package server
