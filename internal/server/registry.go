// Package server tracks which identity each live connection has claimed via
// the ConnectionRegistry type.
package server

import "sync"

// Identity is the (name, profile picture) pair a connection claims on
// registration. It is mutable, unauthenticated, and not unique across
// connections.
type Identity struct {
	Name       string `json:"name"`
	ProfilePic string `json:"profilePic"`
}

// ConnectionRegistry maps each open connection to its current identity. A
// connection has no identity until its first successful registration. The
// registry itself never broadcasts; presence updates are the router's job.
type ConnectionRegistry struct {
	mu         sync.RWMutex
	identities map[*Client]Identity
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{identities: make(map[*Client]Identity)}
}

// Register binds identity to the connection, overwriting any previous
// binding.
func (r *ConnectionRegistry) Register(c *Client, id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[c] = id
}

// Lookup returns the identity bound to the connection, reporting false for
// connections that never registered or have been removed.
func (r *ConnectionRegistry) Lookup(c *Client) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.identities[c]
	return id, ok
}

// Remove drops the connection's binding. Removing an unregistered connection
// is a no-op.
func (r *ConnectionRegistry) Remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.identities, c)
}

// ListRegistered returns the identities of every connection that registered a
// non-empty name. Order is unspecified; duplicate names appear once per
// connection.
func (r *ConnectionRegistry) ListRegistered() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]Identity, 0, len(r.identities))
	for _, id := range r.identities {
		if id.Name != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ConnectionsNamed returns every connection currently registered under name,
// used for private-message fan-out when several connections share a name.
func (r *ConnectionRegistry) ConnectionsNamed(name string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var clients []*Client
	for c, id := range r.identities {
		if id.Name == name {
			clients = append(clients, c)
		}
	}
	return clients
}
