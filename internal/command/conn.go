package command

import (
	"github.com/google/uuid"

	"github.com/notepid/calcserv/internal/registry"
	"github.com/notepid/calcserv/internal/user"
)

// Conn is the per-network-session state. It is owned by a single session
// worker and needs no synchronization of its own; everything shared lives
// behind the registry.
type Conn struct {
	// ID identifies this session in logs and as a registry holder key.
	ID string
	// Addr is the remote endpoint, for diagnostics only.
	Addr string

	State State

	// Ref holds the live user while State is AWAITING_PASSWORD or
	// AUTHENTICATED; nil otherwise.
	Ref *registry.Ref

	// PendingLogin carries the login being registered while State is
	// REGISTERING_PASSWORD.
	PendingLogin string

	// CloseRequested is set by the exit handler; the session loop closes
	// the connection after writing the response.
	CloseRequested bool
}

// NewConn creates connection state for a freshly accepted session.
func NewConn(addr string) *Conn {
	return &Conn{
		ID:    uuid.NewString(),
		Addr:  addr,
		State: StateAwaitingLogin,
	}
}

// User returns the live user record, or nil when none is held.
func (c *Conn) User() *user.User {
	if c.Ref == nil {
		return nil
	}
	return c.Ref.User()
}

// ReleaseUser drops the registry reference, evicting the cache entry if
// this was the last session holding it. Safe to call with no user held.
func (c *Conn) ReleaseUser() {
	if c.Ref != nil {
		c.Ref.Release()
		c.Ref = nil
	}
}

// Cleanup runs the implicit-logout path on disconnect: whatever state the
// connection was in, the user reference is released and the state machine
// reset.
func (c *Conn) Cleanup() {
	c.ReleaseUser()
	c.PendingLogin = ""
	c.State = StateAwaitingLogin
}
