package memory

import (
	"context"
	"sync"

	"recordkeeper-auth/internal/models"
	"recordkeeper-auth/internal/repository"
)

// SessionStore keeps sessions keyed by token. Sessions are deactivated
// in place, never removed, so the login history stays queryable.
type SessionStore struct {
	mu      sync.Mutex
	byToken map[string]*models.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		byToken: make(map[string]*models.Session),
	}
}

func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.byToken[session.Token] = &cp
	return nil
}

func (s *SessionStore) Deactivate(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byToken[token]
	if !ok || !session.IsActive {
		return false, nil
	}
	session.IsActive = false
	return true, nil
}

func (s *SessionStore) FindActiveByIdentity(ctx context.Context, identityID string) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []*models.Session
	for _, session := range s.byToken {
		if session.IdentityID == identityID && session.IsActive {
			cp := *session
			active = append(active, &cp)
		}
	}
	return active, nil
}

func (s *SessionStore) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byToken[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *session
	return &cp, nil
}
