package game

import (
	"sort"
	"sync"
)

// SessionStore is the coordinator-level registry of live sessions, one per
// channel. Its lock only guards insert, remove and lookup; each session
// guards its own state.
type SessionStore struct {
	sessions  map[string]*Session
	stateLock sync.RWMutex
}

// NewSessionStore creates an empty session store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

// Get looks up a session by channel id
func (ss *SessionStore) Get(id string) (*Session, bool) {
	ss.stateLock.RLock()
	defer ss.stateLock.RUnlock()
	s, ok := ss.sessions[id]
	return s, ok
}

// PutIfAbsent stores s unless a session that is not replaceable already
// occupies the channel. Returns the session now stored and whether s won.
func (ss *SessionStore) PutIfAbsent(s *Session, replaceable func(*Session) bool) (*Session, bool) {
	ss.stateLock.Lock()
	defer ss.stateLock.Unlock()

	if existing, ok := ss.sessions[s.ID()]; ok {
		if !replaceable(existing) {
			return existing, false
		}
		existing.Close()
	}
	ss.sessions[s.ID()] = s
	return s, true
}

// Delete removes a session and stops its timers
func (ss *SessionStore) Delete(id string) bool {
	ss.stateLock.Lock()
	s, ok := ss.sessions[id]
	delete(ss.sessions, id)
	ss.stateLock.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

// List returns a stable snapshot of all sessions
func (ss *SessionStore) List() []*Session {
	ss.stateLock.RLock()
	out := make([]*Session, 0, len(ss.sessions))
	for _, s := range ss.sessions {
		out = append(out, s)
	}
	ss.stateLock.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// IDs returns the ids of all sessions, sorted
func (ss *SessionStore) IDs() []string {
	sessions := ss.List()
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID())
	}
	return ids
}
