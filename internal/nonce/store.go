package nonce

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Store issues and consumes single-use login challenges keyed by
// identity email. Issue replaces any outstanding challenge for the same
// identity; Consume atomically retrieves and deletes, so a challenge can
// be validated at most once. Implementations must linearize
// issue/consume per identity without serializing unrelated identities.
type Store interface {
	Issue(ctx context.Context, email string) (string, error)
	Consume(ctx context.Context, email string) (string, bool, error)
}

// Generate produces a fresh 256-bit challenge value, hex encoded.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is the in-process implementation for single-instance
// deployments and tests. sync.Map gives atomic load-and-delete per key,
// so concurrent verification attempts for the same identity race
// cleanly: exactly one consumer wins.
type MemoryStore struct {
	ttl     time.Duration
	entries sync.Map // email -> memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl}
}

func (s *MemoryStore) Issue(_ context.Context, email string) (string, error) {
	value, err := Generate()
	if err != nil {
		return "", err
	}
	s.entries.Store(email, memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(s.ttl),
	})
	return value, nil
}

func (s *MemoryStore) Consume(_ context.Context, email string) (string, bool, error) {
	raw, ok := s.entries.LoadAndDelete(email)
	if !ok {
		return "", false, nil
	}
	entry := raw.(memoryEntry)
	if time.Now().After(entry.expiresAt) {
		return "", false, nil
	}
	return entry.value, true, nil
}
