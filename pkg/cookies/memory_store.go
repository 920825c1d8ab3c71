package cookies

import "sync"

// MemoryStore is an in-process Store, used when no persistent backend is
// wanted and in tests
type MemoryStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	// StoreError, when set, is returned by Store
	StoreError error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Store(session *Session) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if session == nil || session.Profile == "" {
		return ErrInvalidSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *session
	copied.Cookies = append([]Cookie(nil), session.Cookies...)
	m.sessions[session.Profile] = &copied
	return nil
}

func (m *MemoryStore) Retrieve(profile string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[profile]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *MemoryStore) List() ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		copied := *s
		out = append(out, &copied)
	}
	return out, nil
}

func (m *MemoryStore) Delete(profile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[profile]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, profile)
	return nil
}

func (m *MemoryStore) Exists(profile string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[profile]
	return ok
}

// Count returns the number of stored sessions
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
