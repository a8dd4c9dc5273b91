package ingest

import (
	"sync"

	"github.com/jspada200/dailies-relay/internal/feed"
)

// SessionMap is the in-memory mapping from a live session key to the
// playlist that owns it. It is mutated from multiple entry points (feed
// messages, HTTP subscribe requests, recovery) and is never persisted: it
// is re-derivable from session metadata.
type SessionMap struct {
	mu    sync.Mutex
	byKey map[feed.SessionKey]int64
}

func NewSessionMap() *SessionMap {
	return &SessionMap{byKey: make(map[feed.SessionKey]int64)}
}

// Put records key as owned by playlistID.
func (m *SessionMap) Put(key feed.SessionKey, playlistID int64) {
	m.mu.Lock()
	m.byKey[key] = playlistID
	m.mu.Unlock()
}

// Resolve returns the owning playlist for key.
func (m *SessionMap) Resolve(key feed.SessionKey) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	playlistID, ok := m.byKey[key]
	return playlistID, ok
}

// Delete removes key. Unknown keys are a no-op.
func (m *SessionMap) Delete(key feed.SessionKey) {
	m.mu.Lock()
	delete(m.byKey, key)
	m.mu.Unlock()
}

// Len reports the number of mapped sessions.
func (m *SessionMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}
