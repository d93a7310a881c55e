package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/docchat/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// Service keeps the state of live chat connections. Each session owns its
// own history; nothing is shared between sessions.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	history  map[string][]chat.Turn
}

// NewService bootstraps an empty in-memory registry.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]chat.Session),
		history:  make(map[string][]chat.Turn),
	}
}

// CreateSession registers a new connection.
func (s *Service) CreateSession(_ context.Context) chat.Session {
	session := chat.Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.history[session.ID] = make([]chat.Turn, 0, 8)
	s.mu.Unlock()

	return session
}

// AppendTurn records a completed exchange at the end of the session history.
func (s *Service) AppendTurn(_ context.Context, sessionID string, turn chat.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}

	s.history[sessionID] = append(s.history[sessionID], turn)
	return nil
}

// LoadHistory returns a copy of the session history in conversational order.
func (s *Service) LoadHistory(_ context.Context, sessionID string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.history[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}

// GetSession retrieves a live session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// CloseSession drops the session and its history.
func (s *Service) CloseSession(_ context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	delete(s.history, sessionID)
	s.mu.Unlock()
}

// ActiveSessions reports how many connections are currently registered.
func (s *Service) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
