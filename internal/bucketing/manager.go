package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"recordkeeper-auth/internal/config"
)

// Manager assigns identities and audit events to stable buckets so the
// Scylla partitions stay bounded. Murmur3 keeps assignment consistent
// across instances without coordination.
type Manager struct {
	identityBuckets int
	eventBuckets    int
	hasherPool      sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		identityBuckets: cfg.Bucketing.UserBuckets,
		eventBuckets:    cfg.Bucketing.EventBuckets,
	}

	// Pool of hash functions to avoid per-call allocation.
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// IdentityBucket returns the consistent bucket for an identity id
// (0 to identityBuckets-1).
func (m *Manager) IdentityBucket(identityID string) int {
	return m.getBucket(identityID, m.identityBuckets)
}

// EventBucket returns the bucket for audit/security events.
func (m *Manager) EventBucket(key string) int {
	return m.getBucket(key, m.eventBuckets)
}

// DateBucket returns the UTC date partition for event tables.
func (m *Manager) DateBucket() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (m *Manager) getBucket(key string, numBuckets int) int {
	if numBuckets <= 0 {
		return 0
	}
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return int(hasher.Sum64() % uint64(numBuckets))
}
