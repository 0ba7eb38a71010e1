// Package repository defines the storage contracts consumed by the
// authentication services. Each store has a production implementation
// (Scylla for identities and sessions, ClickHouse for the audit trail)
// and an in-memory implementation for single-instance deployments and
// tests.
package repository

import (
	"context"
	"errors"
	"time"

	"recordkeeper-auth/internal/models"
)

var (
	// ErrNotFound is returned by lookups that matched nothing.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a create collides with an
	// existing record.
	ErrDuplicate = errors.New("record already exists")
)

// IdentityStore persists registered identities and their credentials.
type IdentityStore interface {
	Create(ctx context.Context, identity *models.Identity) error
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	GetByID(ctx context.Context, identityID string) (*models.Identity, error)
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*models.Identity, error)
	UpdatePassword(ctx context.Context, identityID, passwordHash string) error
	SetResetToken(ctx context.Context, identityID, tokenHash string, expiry time.Time) error
	ClearResetToken(ctx context.Context, identityID string) error
	UpdateLastLogin(ctx context.Context, identityID string, at time.Time) error
}

// SessionStore persists session records. Writes for the same token must
// be serializable: Deactivate observes either the active or the already
// deactivated state, never a partial write.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	// Deactivate returns false when no session owns the token or it
	// is already inactive; that is a no-op, not an error.
	Deactivate(ctx context.Context, token string) (bool, error)
	FindActiveByIdentity(ctx context.Context, identityID string) ([]*models.Session, error)
	FindByToken(ctx context.Context, token string) (*models.Session, error)
}

// AuditStore persists immutable audit entries.
type AuditStore interface {
	Insert(ctx context.Context, entry *models.AuditEntry) error
	FindByPseudonym(ctx context.Context, pseudonymizedUserID string, limit int) ([]*models.AuditEntry, error)
	// PurgeExpired deletes entries whose retention horizon has passed.
	PurgeExpired(ctx context.Context, now time.Time) error
}
