package session

import (
	"sync"

	"github.com/recaphq/chatscope/internal/scope"
)

// Repository is the minimal session lookup surface exposed to collaborators
// that only need to read or replace a scope's cached session.
type Repository interface {
	Get(sc scope.Scope) (*Session, bool)
	Put(sc scope.Scope, s *Session)
}

type entry struct {
	session Session
	state   State
	loading bool
	sending bool
}

// Store caches every scope's conversation in memory. It is the only mutable
// shared state in the subsystem; entries for different scopes never contend
// beyond the map lock.
type Store struct {
	mu      sync.RWMutex
	entries map[scope.Scope]*entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[scope.Scope]*entry)}
}

// entryLocked returns the entry for sc, creating it if needed. Caller holds mu.
func (st *Store) entryLocked(sc scope.Scope) *entry {
	e, ok := st.entries[sc]
	if !ok {
		e = &entry{session: Session{Scope: sc}, state: StateUninitialized}
		st.entries[sc] = e
	}
	return e
}

// Get returns a copy of the cached session for sc. The bool reports whether
// the scope has an entry at all.
func (st *Store) Get(sc scope.Scope) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	e, ok := st.entries[sc]
	if !ok {
		return nil, false
	}
	s := e.session
	s.Messages = copyMessages(e.session.Messages)
	return &s, true
}

// Put replaces the cached session for sc.
func (st *Store) Put(sc scope.Scope, s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	e := st.entryLocked(sc)
	e.session = Session{ID: s.ID, Scope: sc, Messages: copyMessages(s.Messages)}
}

// Append adds one message to the end of sc's log.
func (st *Store) Append(sc scope.Scope, msg Message) {
	st.mu.Lock()
	defer st.mu.Unlock()

	e := st.entryLocked(sc)
	e.session.Messages = append(e.session.Messages, msg)
}

// Messages returns a copy of sc's message log in conversation order.
func (st *Store) Messages(sc scope.Scope) []Message {
	st.mu.RLock()
	defer st.mu.RUnlock()

	e, ok := st.entries[sc]
	if !ok {
		return nil
	}
	return copyMessages(e.session.Messages)
}

// SessionID returns the backend identifier for sc, empty if none assigned.
func (st *Store) SessionID(sc scope.Scope) string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if e, ok := st.entries[sc]; ok {
		return e.session.ID
	}
	return ""
}

// AdoptSessionID records the backend-assigned identifier for sc if the
// cached session does not have one yet. An existing identifier is never
// overwritten. Reports whether the id was adopted.
func (st *Store) AdoptSessionID(sc scope.Scope, id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	e := st.entryLocked(sc)
	if e.session.ID != "" || id == "" {
		return false
	}
	e.session.ID = id
	return true
}

// Clear wipes sc's message log and session identifier, leaving an empty
// conversation. Other scopes are untouched.
func (st *Store) Clear(sc scope.Scope) {
	st.mu.Lock()
	defer st.mu.Unlock()

	e := st.entryLocked(sc)
	e.session = Session{Scope: sc}
	e.state = StateEmpty
	e.loading = false
	e.sending = false
}

// State returns sc's presentation state.
func (st *Store) State(sc scope.Scope) State {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if e, ok := st.entries[sc]; ok {
		return e.state
	}
	return StateUninitialized
}

// SetState records sc's presentation state.
func (st *Store) SetState(sc scope.Scope, s State) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.entryLocked(sc).state = s
}

// ScopesInState returns every scope currently in state s.
func (st *Store) ScopesInState(s State) []scope.Scope {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var out []scope.Scope
	for sc, e := range st.entries {
		if e.state == s {
			out = append(out, sc)
		}
	}
	return out
}

// Loading reports whether a session load is outstanding for sc.
func (st *Store) Loading(sc scope.Scope) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if e, ok := st.entries[sc]; ok {
		return e.loading
	}
	return false
}

// SetLoading records sc's loading flag.
func (st *Store) SetLoading(sc scope.Scope, v bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.entryLocked(sc).loading = v
}

// BeginSend acquires sc's single-flight send marker. It returns false when
// an exchange is already outstanding for the scope.
func (st *Store) BeginSend(sc scope.Scope) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	e := st.entryLocked(sc)
	if e.sending {
		return false
	}
	e.sending = true
	return true
}

// EndSend releases sc's single-flight send marker.
func (st *Store) EndSend(sc scope.Scope) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.entryLocked(sc).sending = false
}

// Snapshot returns a renderer-safe copy of sc's cached state.
func (st *Store) Snapshot(sc scope.Scope) Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()

	e, ok := st.entries[sc]
	if !ok {
		return Snapshot{State: StateUninitialized}
	}
	return Snapshot{
		SessionID: e.session.ID,
		Messages:  copyMessages(e.session.Messages),
		State:     e.state,
		Loading:   e.loading,
		Sending:   e.sending,
	}
}

func copyMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
