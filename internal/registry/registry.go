// Package registry is the process-wide cache of live users. All sessions
// authenticated (or authenticating) as the same login share one User
// instance, so every session observes the same balance. An entry exists
// exactly as long as at least one session holds it; the last release
// evicts the entry and the database becomes authoritative again.
package registry

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/notepid/calcserv/internal/user"
)

// Loader fetches a user record from the backing store on cache miss.
type Loader interface {
	FetchUserByLogin(ctx context.Context, login string) (*user.User, error)
}

// Registry maps login names to live User entries.
type Registry struct {
	mu     sync.Mutex
	users  map[string]*entry
	loader Loader
}

type entry struct {
	// mu is the per-user lock: it serializes every balance
	// read-modify-write for this login across all sessions.
	mu      sync.Mutex
	user    *user.User
	holders map[string]struct{}
}

// New creates an empty registry backed by the given loader.
func New(loader Loader) *Registry {
	return &Registry{
		users:  make(map[string]*entry),
		loader: loader,
	}
}

// Ref is one holder's handle on a live user entry. Release it exactly
// once when the session logs out or disconnects.
type Ref struct {
	reg      *Registry
	ent      *entry
	login    string
	holder   string
	released bool
}

// Acquire returns the live entry for login, loading it from the store on
// miss. shared reports whether another holder already had the entry.
//
// The registry lock is held across the load so two concurrent acquires
// for the same login cannot both insert; exactly one User instance per
// login exists at any time. Eviction (see Release) runs under the same
// lock, so an acquire can never observe an entry that a concurrent
// release is about to evict.
func (r *Registry) Acquire(ctx context.Context, login, holder string) (*Ref, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.users[login]
	if !ok {
		u, err := r.loader.FetchUserByLogin(ctx, login)
		if err != nil {
			return nil, false, err
		}
		ent = &entry{
			user:    u,
			holders: make(map[string]struct{}),
		}
		r.users[login] = ent
	}

	shared := len(ent.holders) > 0
	ent.holders[holder] = struct{}{}

	return &Ref{reg: r, ent: ent, login: login, holder: holder}, shared, nil
}

// User returns the shared user record. Mutate it only through Update.
func (ref *Ref) User() *user.User {
	return ref.ent.user
}

// Update runs fn under the per-user lock. All balance mutations go
// through here.
func (ref *Ref) Update(fn func(u *user.User) error) error {
	ref.ent.mu.Lock()
	defer ref.ent.mu.Unlock()
	return fn(ref.ent.user)
}

// Release drops this holder. When the last holder is gone the entry is
// evicted, so a later login loads fresh state from the store. Safe to
// call more than once.
func (ref *Ref) Release() {
	ref.reg.mu.Lock()
	defer ref.reg.mu.Unlock()

	if ref.released {
		return
	}
	ref.released = true

	delete(ref.ent.holders, ref.holder)
	if len(ref.ent.holders) == 0 && ref.reg.users[ref.login] == ref.ent {
		delete(ref.reg.users, ref.login)
	}
}

// Mutate runs fn under the per-user lock for login, loading the user if
// no session holds it. Used by targeted balance operations so an admin
// acting on a live user mutates the same instance the user's own
// sessions see, and concurrent admin operations on an offline user are
// still serialized in-process.
func (r *Registry) Mutate(ctx context.Context, login string, fn func(u *user.User) error) error {
	ref, _, err := r.Acquire(ctx, login, "mutate-"+uuid.NewString())
	if err != nil {
		return err
	}
	defer ref.Release()
	return ref.Update(fn)
}

// Live reports whether login currently has a registry entry.
func (r *Registry) Live(login string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[login]
	return ok
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
