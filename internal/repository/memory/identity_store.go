// Package memory provides in-process implementations of the repository
// contracts. They back single-instance deployments and the test suite.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"recordkeeper-auth/internal/models"
	"recordkeeper-auth/internal/repository"
)

// IdentityStore keeps identities in maps guarded by a single mutex.
type IdentityStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.Identity
	byEmail map[string]string // lowercased email -> identity id
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		byID:    make(map[string]*models.Identity),
		byEmail: make(map[string]string),
	}
}

func (s *IdentityStore) Create(ctx context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(identity.Email)
	if _, exists := s.byEmail[email]; exists {
		return repository.ErrDuplicate
	}

	cp := *identity
	s.byID[identity.IdentityID] = &cp
	s.byEmail[email] = identity.IdentityID
	return nil
}

func (s *IdentityStore) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.snapshot(id)
}

func (s *IdentityStore) GetByID(ctx context.Context, identityID string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(identityID)
}

func (s *IdentityStore) GetByResetTokenHash(ctx context.Context, tokenHash string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, identity := range s.byID {
		if identity.ResetTokenHash == tokenHash && tokenHash != "" {
			cp := *identity
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *IdentityStore) UpdatePassword(ctx context.Context, identityID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[identityID]
	if !ok {
		return repository.ErrNotFound
	}
	identity.PasswordHash = passwordHash
	return nil
}

func (s *IdentityStore) SetResetToken(ctx context.Context, identityID, tokenHash string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[identityID]
	if !ok {
		return repository.ErrNotFound
	}
	identity.ResetTokenHash = tokenHash
	identity.ResetTokenExpiry = &expiry
	return nil
}

func (s *IdentityStore) ClearResetToken(ctx context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[identityID]
	if !ok {
		return repository.ErrNotFound
	}
	identity.ResetTokenHash = ""
	identity.ResetTokenExpiry = nil
	return nil
}

func (s *IdentityStore) UpdateLastLogin(ctx context.Context, identityID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[identityID]
	if !ok {
		return repository.ErrNotFound
	}
	identity.LastLogin = &at
	return nil
}

// snapshot must be called with the lock held.
func (s *IdentityStore) snapshot(identityID string) (*models.Identity, error) {
	identity, ok := s.byID[identityID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *identity
	return &cp, nil
}
