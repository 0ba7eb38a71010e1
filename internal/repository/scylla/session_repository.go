package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"recordkeeper-auth/internal/models"
	"recordkeeper-auth/internal/repository"
	"recordkeeper-auth/internal/util"
)

// SessionRepository persists sessions in a token-keyed table plus a
// per-identity view. Deactivation flips is_active with LWT so the
// single-use guarantee holds across concurrent refreshes.
type SessionRepository struct {
	client *ScyllaClient
}

func NewSessionRepository(client *ScyllaClient) *SessionRepository {
	return &SessionRepository{client: client}
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	batch := r.client.Batch(gocql.LoggedBatch)

	batch.Query(r.client.Prepared.CreateSession.Statement(),
		session.Token, session.IdentityID, session.LoginTime, session.ExpiresAt,
		session.IsActive, session.IP, session.Location.City, session.Location.Country,
		session.Device.UserAgent, session.Device.Browser, session.Device.OS,
		session.Device.IsMobile)

	batch.Query(r.client.Prepared.CreateSessionByIdentity.Statement(),
		session.IdentityID, session.LoginTime, session.Token, session.IsActive)

	if err := r.client.ExecuteBatch(batch.WithContext(ctx)); err != nil {
		util.Error("Failed to create session",
			zap.String("identity_id", session.IdentityID),
			zap.Error(err))
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Deactivate(ctx context.Context, token string) (bool, error) {
	session, err := r.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	applied, err := r.client.Prepared.DeactivateSession.
		Bind(token).
		WithContext(ctx).
		ScanCAS(nil)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate session: %w", err)
	}
	if !applied {
		return false, nil
	}

	view := r.client.Prepared.DeactivateByIdentity.
		Bind(session.IdentityID, session.LoginTime).
		WithContext(ctx)
	if err := r.client.ExecuteWithRetry(view, 3); err != nil {
		util.Warn("Failed to update session view",
			zap.String("identity_id", session.IdentityID),
			zap.Error(err))
	}
	return true, nil
}

func (r *SessionRepository) FindActiveByIdentity(ctx context.Context, identityID string) ([]*models.Session, error) {
	iter := r.client.Prepared.GetSessionsByIdentity.
		Bind(identityID).
		WithContext(ctx).
		Iter()

	var tokens []string
	var loginTime time.Time
	var token string
	var isActive bool
	for iter.Scan(&loginTime, &token, &isActive) {
		if isActive {
			tokens = append(tokens, token)
		}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*models.Session, 0, len(tokens))
	for _, t := range tokens {
		session, err := r.FindByToken(ctx, t)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		// The view row may lag behind a deactivation.
		if session.IsActive {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	session := &models.Session{}

	query := r.client.Prepared.GetSessionByToken.Bind(token).WithContext(ctx)
	err := r.client.ScanWithRetry(query,
		&session.Token, &session.IdentityID, &session.LoginTime, &session.ExpiresAt,
		&session.IsActive, &session.IP, &session.Location.City, &session.Location.Country,
		&session.Device.UserAgent, &session.Device.Browser, &session.Device.OS,
		&session.Device.IsMobile)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session.Location.IP = session.IP
	session.Device.IsDesktop = !session.Device.IsMobile
	return session, nil
}
