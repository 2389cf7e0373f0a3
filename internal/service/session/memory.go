package session

import (
	"context"
	"sync"

	"github.com/zhouzirui/rehearsal/backend/internal/model/session"
)

// MemoryStore keeps sessions in process memory. Suitable for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]session.Session)}
}

// Create provisions a session for the given scenario.
func (s *MemoryStore) Create(_ context.Context, scenario session.Scenario) (session.Session, error) {
	created, err := newSession(scenario)
	if err != nil {
		return session.Session{}, err
	}

	s.mu.Lock()
	s.sessions[created.ID] = created
	s.mu.Unlock()

	return clone(created), nil
}

// Get retrieves a session by identifier.
func (s *MemoryStore) Get(_ context.Context, id string) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[id]
	if !ok {
		return session.Session{}, ErrSessionNotFound
	}
	return clone(stored), nil
}

// AppendExchanges appends to the session transcript under a single lock.
func (s *MemoryStore) AppendExchanges(_ context.Context, id string, exchanges ...session.Exchange) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[id]
	if !ok {
		return session.Session{}, ErrSessionNotFound
	}

	stored.Exchanges = append(stored.Exchanges, stampExchanges(exchanges)...)
	s.sessions[id] = stored
	return clone(stored), nil
}

// SaveFeedback records coach feedback on the session.
func (s *MemoryStore) SaveFeedback(_ context.Context, id, feedback string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	stored.Feedback = feedback
	s.sessions[id] = stored
	return nil
}

func clone(in session.Session) session.Session {
	out := in
	out.Exchanges = make([]session.Exchange, len(in.Exchanges))
	for i, ex := range in.Exchanges {
		ex.Cues = append([]string(nil), ex.Cues...)
		out.Exchanges[i] = ex
	}
	return out
}
