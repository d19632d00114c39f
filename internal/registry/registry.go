package registry

import (
	"sync"

	"github.com/nelsonmaranda/tubonge-chat-app/internal/domain"
)

// Entry binds a connected identity to its transport handle. The handle is
// opaque to the registry; it only matters for pointer equality on unregister.
type Entry struct {
	Identity domain.Identity
	Conn     any
}

// Registry is the process-wide directory of connected identities, the single
// source of truth for "who is online". At most one entry exists per identity
// id: a second connection from the same identity replaces the earlier entry.
// All mutation goes through Register/Unregister; snapshots preserve insertion
// order of the current entries.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

func New() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
	}
}

// Register inserts or replaces the entry for the identity and returns the
// updated roster for announcement, plus the transport handle it displaced
// when the identity was already connected (nil otherwise). The caller owns
// closing the displaced connection.
func (r *Registry) Register(identity domain.Identity, conn any) (roster []domain.Identity, displaced any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entries[identity.ID]; ok {
		displaced = prev.Conn
	} else {
		r.order = append(r.order, identity.ID)
	}
	r.entries[identity.ID] = Entry{Identity: identity, Conn: conn}

	return r.snapshotLocked(), displaced
}

// Unregister removes the entry for the identity if it is still bound to the
// given transport handle, and reports whether anything changed. A late
// disconnect from a connection that has already been displaced is a no-op,
// as is unregistering an identity that was never registered.
func (r *Registry) Unregister(identityID string, conn any) (roster []domain.Identity, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[identityID]
	if !ok || (conn != nil && entry.Conn != conn) {
		return r.snapshotLocked(), false
	}

	delete(r.entries, identityID)
	for i, id := range r.order {
		if id == identityID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return r.snapshotLocked(), true
}

// Snapshot returns the current roster in insertion order.
func (r *Registry) Snapshot() []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Lookup returns the transport handle currently bound to the identity.
func (r *Registry) Lookup(identityID string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[identityID]
	if !ok {
		return nil, false
	}
	return entry.Conn, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) snapshotLocked() []domain.Identity {
	roster := make([]domain.Identity, 0, len(r.order))
	for _, id := range r.order {
		roster = append(roster, r.entries[id].Identity)
	}
	return roster
}
