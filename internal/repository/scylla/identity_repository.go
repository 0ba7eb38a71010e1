package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"recordkeeper-auth/internal/bucketing"
	"recordkeeper-auth/internal/models"
	"recordkeeper-auth/internal/repository"
	"recordkeeper-auth/internal/util"
)

// IdentityRepository persists identities across three tables: the main
// identities table partitioned by bucket, an email lookup table, and a
// reset-token lookup table with a short TTL.
type IdentityRepository struct {
	client    *ScyllaClient
	bucketing *bucketing.Manager
}

func NewIdentityRepository(client *ScyllaClient, bucketManager *bucketing.Manager) *IdentityRepository {
	return &IdentityRepository{
		client:    client,
		bucketing: bucketManager,
	}
}

func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	identity.IdentityBucket = r.bucketing.IdentityBucket(identity.IdentityID)

	// The email mapping is claimed first with LWT so duplicate
	// registrations lose the race cleanly.
	applied, err := r.client.Prepared.CreateEmailToIdentity.
		Bind(identity.Email, identity.IdentityBucket, identity.IdentityID, identity.CreatedAt).
		WithContext(ctx).
		ScanCAS(nil, nil, nil, nil)
	if err != nil {
		util.Error("Failed to claim email mapping",
			zap.String("identity_id", identity.IdentityID),
			zap.Error(err))
		return fmt.Errorf("failed to create identity: %w", err)
	}
	if !applied {
		return repository.ErrDuplicate
	}

	query := r.client.Prepared.CreateIdentity.Bind(
		identity.IdentityBucket, identity.IdentityID, identity.Username,
		identity.Email, identity.PasswordHash, identity.PublicKey,
		identity.Role, identity.ResetTokenHash, identity.ResetTokenExpiry,
		identity.CreatedAt, identity.LastLogin,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to create identity",
			zap.String("identity_id", identity.IdentityID),
			zap.Error(err))
		return fmt.Errorf("failed to create identity: %w", err)
	}

	util.Info("Identity created",
		zap.String("identity_id", identity.IdentityID),
		zap.Int("identity_bucket", identity.IdentityBucket))
	return nil
}

func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	var bucket int
	var identityID string

	query := r.client.Prepared.GetIdentityByEmail.Bind(email).WithContext(ctx)
	if err := r.client.ScanWithRetry(query, &bucket, &identityID); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve email: %w", err)
	}

	return r.getByBucketAndID(ctx, bucket, identityID)
}

func (r *IdentityRepository) GetByID(ctx context.Context, identityID string) (*models.Identity, error) {
	return r.getByBucketAndID(ctx, r.bucketing.IdentityBucket(identityID), identityID)
}

func (r *IdentityRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*models.Identity, error) {
	var bucket int
	var identityID string

	query := r.client.Prepared.GetIdentityByReset.Bind(tokenHash).WithContext(ctx)
	if err := r.client.ScanWithRetry(query, &bucket, &identityID); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve reset token: %w", err)
	}

	return r.getByBucketAndID(ctx, bucket, identityID)
}

func (r *IdentityRepository) UpdatePassword(ctx context.Context, identityID, passwordHash string) error {
	bucket := r.bucketing.IdentityBucket(identityID)
	query := r.client.Prepared.UpdatePassword.Bind(passwordHash, bucket, identityID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update password hash",
			zap.String("identity_id", identityID),
			zap.Error(err))
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func (r *IdentityRepository) SetResetToken(ctx context.Context, identityID, tokenHash string, expiry time.Time) error {
	bucket := r.bucketing.IdentityBucket(identityID)

	query := r.client.Prepared.SetResetToken.Bind(tokenHash, expiry, bucket, identityID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}

	// Lookup row expires on its own; TTL tracks the token expiry.
	ttl := int(time.Until(expiry).Seconds())
	if ttl <= 0 {
		ttl = 1
	}
	lookup := r.client.Session.Query(`
        INSERT INTO reset_token_to_identity (token_hash, identity_bucket, identity_id)
        VALUES (?, ?, ?) USING TTL ?`,
		tokenHash, bucket, identityID, ttl).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(lookup, 3); err != nil {
		return fmt.Errorf("failed to index reset token: %w", err)
	}
	return nil
}

func (r *IdentityRepository) ClearResetToken(ctx context.Context, identityID string) error {
	bucket := r.bucketing.IdentityBucket(identityID)
	query := r.client.Prepared.ClearResetToken.Bind(bucket, identityID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to clear reset token: %w", err)
	}
	return nil
}

func (r *IdentityRepository) UpdateLastLogin(ctx context.Context, identityID string, at time.Time) error {
	bucket := r.bucketing.IdentityBucket(identityID)
	query := r.client.Prepared.UpdateLastLogin.Bind(at, bucket, identityID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (r *IdentityRepository) getByBucketAndID(ctx context.Context, bucket int, identityID string) (*models.Identity, error) {
	identity := &models.Identity{}
	var resetExpiry, lastLogin time.Time

	query := r.client.Prepared.GetIdentityByID.Bind(bucket, identityID).WithContext(ctx)
	err := r.client.ScanWithRetry(query,
		&identity.IdentityBucket, &identity.IdentityID, &identity.Username,
		&identity.Email, &identity.PasswordHash, &identity.PublicKey,
		&identity.Role, &identity.ResetTokenHash, &resetExpiry,
		&identity.CreatedAt, &lastLogin,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		util.Error("Failed to get identity",
			zap.String("identity_id", identityID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	if !resetExpiry.IsZero() {
		identity.ResetTokenExpiry = &resetExpiry
	}
	if !lastLogin.IsZero() {
		identity.LastLogin = &lastLogin
	}
	return identity, nil
}
