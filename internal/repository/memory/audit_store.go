package memory

import (
	"context"
	"sync"
	"time"

	"recordkeeper-auth/internal/models"
)

// AuditStore keeps audit entries in insertion order.
type AuditStore struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Insert(ctx context.Context, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *AuditStore) FindByPseudonym(ctx context.Context, pseudonymizedUserID string, limit int) ([]*models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.AuditEntry
	// Newest first.
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].PseudonymizedUserID != pseudonymizedUserID {
			continue
		}
		cp := *s.entries[i]
		matched = append(matched, &cp)
		if limit > 0 && len(matched) >= limit {
			break
		}
	}
	return matched, nil
}

func (s *AuditStore) PurgeExpired(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, entry := range s.entries {
		if entry.RetainUntil.After(now) {
			kept = append(kept, entry)
		}
	}
	s.entries = kept
	return nil
}

// Len reports the number of retained entries.
func (s *AuditStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
