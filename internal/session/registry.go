// Package session tracks per-client state for connected gateway clients.
package session

import (
	"sync"
	"time"

	"github.com/soyeahso/colloquy/internal/domain"
)

// State is the mutable record kept for one connected client.
type State struct {
	ClientID string
	// Discussion is the client's active discussion, nil until one is created
	// or loaded. Switching discussions replaces the pointer.
	Discussion *domain.Discussion
	// Language overrides the configured current language when non-empty.
	Language string
	// Conditioning is the conditioning prompt in effect for this client after
	// a language pack was applied.
	Conditioning string
	ConnectedAt  time.Time
}

// ActiveDiscussionID returns the id of the active discussion, or
// domain.NoDiscussion.
func (s State) ActiveDiscussionID() int64 {
	if s.Discussion == nil {
		return domain.NoDiscussion
	}
	return s.Discussion.ID
}

type entry struct {
	mu    sync.Mutex
	state State
}

// Registry maps client ids to their session state. Mutations of a single
// client are serialized; different clients proceed in parallel.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (r *Registry) entry(clientID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[clientID]
	if !ok {
		e = &entry{state: State{ClientID: clientID, ConnectedAt: r.now()}}
		r.entries[clientID] = e
	}
	return e
}

// Open registers a client, returning its state. Opening an existing client
// is a no-op.
func (r *Registry) Open(clientID string) State {
	e := r.entry(clientID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Update runs fn with exclusive access to the client's state, creating the
// state on first use. fn's error is returned unchanged; state changes made
// before the error are kept.
func (r *Registry) Update(clientID string, fn func(*State) error) error {
	e := r.entry(clientID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&e.state)
}

// Snapshot returns a copy of the client's state.
func (r *Registry) Snapshot(clientID string) (State, bool) {
	r.mu.Lock()
	e, ok := r.entries[clientID]
	r.mu.Unlock()
	if !ok {
		return State{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Remove discards a client's state.
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, clientID)
}

// Count returns the number of tracked clients.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
