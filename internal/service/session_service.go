package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"recordkeeper-auth/internal/device"
	"recordkeeper-auth/internal/geo"
	"recordkeeper-auth/internal/models"
	"recordkeeper-auth/internal/repository"
	"recordkeeper-auth/internal/util"
)

// ClientContext is the network origin of a request as seen by the
// HTTP layer.
type ClientContext struct {
	IP        string
	UserAgent string
}

// SessionService owns session lifecycle: establishment with resolved
// device and location context, single-use deactivation, and listing.
type SessionService struct {
	sessions repository.SessionStore
	resolver geo.Resolver
	lifetime time.Duration
}

func NewSessionService(sessions repository.SessionStore, resolver geo.Resolver, lifetime time.Duration) *SessionService {
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	return &SessionService{
		sessions: sessions,
		resolver: resolver,
		lifetime: lifetime,
	}
}

// Context resolves the device and location posture for a client. The
// location lookup is best effort; an unresolved location is a risk
// signal, not a failure.
func (s *SessionService) Context(ctx context.Context, client ClientContext) (models.DeviceInfo, models.LocationInfo) {
	deviceInfo := device.Parse(client.UserAgent)
	location := s.resolver.Resolve(ctx, client.IP)
	return deviceInfo, location
}

// Establish records a new active session bound to the token.
func (s *SessionService) Establish(ctx context.Context, identityID, token string, client ClientContext, deviceInfo models.DeviceInfo, location models.LocationInfo) (*models.Session, error) {
	now := time.Now().UTC()
	session := &models.Session{
		IdentityID: identityID,
		Token:      token,
		LoginTime:  now,
		ExpiresAt:  now.Add(s.lifetime),
		IsActive:   true,
		IP:         client.IP,
		Location:   location,
		Device:     deviceInfo,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to establish session: %w", err)
	}

	util.Debug("Session established",
		zap.String("identity_id", identityID),
		zap.String("browser", deviceInfo.Browser),
		zap.String("country", location.Country))
	return session, nil
}

// Deactivate retires the session owning the token. The first call for
// an active session returns true; every later call returns false.
func (s *SessionService) Deactivate(ctx context.Context, token string) (bool, error) {
	return s.sessions.Deactivate(ctx, token)
}

// Active reports whether the token owns a live, unexpired session.
func (s *SessionService) Active(ctx context.Context, token string) (bool, error) {
	session, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return session.IsActive && time.Now().Before(session.ExpiresAt), nil
}

// Find returns the session owning the token.
func (s *SessionService) Find(ctx context.Context, token string) (*models.Session, error) {
	return s.sessions.FindByToken(ctx, token)
}

// ListActive returns the identity's live sessions.
func (s *SessionService) ListActive(ctx context.Context, identityID string) ([]*models.Session, error) {
	sessions, err := s.sessions.FindActiveByIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	// Expired rows stay in the store; filter them here.
	now := time.Now()
	live := sessions[:0]
	for _, session := range sessions {
		if now.Before(session.ExpiresAt) {
			live = append(live, session)
		}
	}
	return live, nil
}
