// Package service holds the authentication business logic: the
// challenge/response orchestrator and the session lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"recordkeeper-auth/internal/audit"
	"recordkeeper-auth/internal/hashing"
	"recordkeeper-auth/internal/keys"
	"recordkeeper-auth/internal/models"
	"recordkeeper-auth/internal/nonce"
	"recordkeeper-auth/internal/repository"
	"recordkeeper-auth/internal/risk"
	"recordkeeper-auth/internal/token"
	"recordkeeper-auth/internal/util"
)

var (
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrIdentityExists     = errors.New("identity already exists")
	ErrChallengeExpired   = errors.New("challenge expired or not issued")
	ErrInvalidSignature   = errors.New("signature verification failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotActive   = errors.New("session is not active")
	ErrSessionNotFound    = errors.New("no active session found")
	ErrResetTokenInvalid  = errors.New("reset token is invalid or expired")
)

const resetTokenLifetime = time.Hour

// LoginResult is the outcome of a scored login attempt. When MFA is
// required no token or session exists yet; the caller gets the score
// and nothing else.
type LoginResult struct {
	MFARequired bool           `json:"mfa_required"`
	RiskScore   int            `json:"risk_score"`
	Token       string         `json:"token,omitempty"`
	ExpiresIn   int64          `json:"expires_in,omitempty"`
	Profile     models.Profile `json:"profile,omitempty"`
}

// AuthService orchestrates the authentication flows: registration,
// challenge/response and password logins, token refresh, logout and
// password reset. Every completed flow leaves an audit entry.
type AuthService struct {
	identities repository.IdentityStore
	sessions   *SessionService
	nonces     nonce.Store
	risk       *risk.Engine
	tokens     *token.Manager
	hasher     *hashing.Hasher
	recorder   *audit.Recorder
	dispatcher *audit.Dispatcher
}

func NewAuthService(
	identities repository.IdentityStore,
	sessions *SessionService,
	nonces nonce.Store,
	riskEngine *risk.Engine,
	tokens *token.Manager,
	hasher *hashing.Hasher,
	recorder *audit.Recorder,
	dispatcher *audit.Dispatcher,
) *AuthService {
	return &AuthService{
		identities: identities,
		sessions:   sessions,
		nonces:     nonces,
		risk:       riskEngine,
		tokens:     tokens,
		hasher:     hasher,
		recorder:   recorder,
		dispatcher: dispatcher,
	}
}

// Register creates a new identity. The username is derived from the
// legal name; the public key is stored exactly as the client sent it
// and only interpreted at verification time.
func (s *AuthService) Register(ctx context.Context, firstName, lastName, email, password, publicKey string, client ClientContext) (models.Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if _, err := keys.ParsePublicKey(publicKey); err != nil {
		return models.Profile{}, err
	}

	passwordHash, err := s.hasher.HashPassword(password)
	if err != nil {
		return models.Profile{}, fmt.Errorf("failed to hash password: %w", err)
	}

	identity := &models.Identity{
		IdentityID:   uuid.NewString(),
		Username:     deriveUsername(firstName, lastName),
		Email:        email,
		PasswordHash: passwordHash,
		PublicKey:    publicKey,
		Role:         "member",
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.Profile{}, ErrIdentityExists
		}
		return models.Profile{}, fmt.Errorf("failed to create identity: %w", err)
	}

	s.record(ctx, models.EventRegistration, identity, "", client.IP, 0)

	util.Info("Identity registered",
		zap.String("identity_id", identity.IdentityID),
		zap.String("username", identity.Username))
	return identity.Profile(), nil
}

// RequestChallenge issues a fresh single-use nonce for the identity.
// Re-requesting replaces any outstanding challenge.
func (s *AuthService) RequestChallenge(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if _, err := s.identities.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrIdentityNotFound
		}
		return "", fmt.Errorf("failed to look up identity: %w", err)
	}

	challenge, err := s.nonces.Issue(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to issue challenge: %w", err)
	}
	return challenge, nil
}

// VerifyChallenge consumes the outstanding nonce and checks the
// client's signature over it. A valid signature still only logs the
// caller in when the scored risk stays under the MFA threshold.
func (s *AuthService) VerifyChallenge(ctx context.Context, email, signature string, biometric *float64, client ClientContext) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	// The nonce is checked before anything else and is gone after this
	// whether or not the rest succeeds: no outstanding challenge means
	// ErrChallengeExpired even for emails that were never registered,
	// and a failed attempt must not leave a reusable challenge behind.
	challenge, ok, err := s.nonces.Consume(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}
	if !ok {
		return nil, ErrChallengeExpired
	}

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}

	publicKey, err := keys.ParsePublicKey(identity.PublicKey)
	if err != nil {
		return nil, err
	}
	if !keys.VerifySignature(publicKey, challenge, signature) {
		return nil, ErrInvalidSignature
	}

	return s.completeLogin(ctx, identity, biometric, client)
}

// LoginWithPassword verifies the password credential and runs the same
// scored login path, with no biometric signal.
func (s *AuthService) LoginWithPassword(ctx context.Context, email, password string, client ClientContext) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}

	ok, err := s.hasher.VerifyPassword(password, identity.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	return s.completeLogin(ctx, identity, nil, client)
}

// Refresh rotates the caller's token. The presented token must own an
// active session; that session is retired before the replacement is
// issued, so each token is usable for refresh exactly once.
func (s *AuthService) Refresh(ctx context.Context, tokenString string, client ClientContext) (*LoginResult, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil, err
	}

	active, err := s.sessions.Active(ctx, tokenString)
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	if !active {
		return nil, ErrSessionNotActive
	}

	identity, err := s.identities.GetByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotActive
		}
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}

	deactivated, err := s.sessions.Deactivate(ctx, tokenString)
	if err != nil {
		return nil, fmt.Errorf("failed to retire session: %w", err)
	}
	// Another refresh may have retired the session after the Active
	// check above; only the caller that retires it gets a replacement.
	if !deactivated {
		return nil, ErrSessionNotActive
	}

	newToken, err := s.tokens.Issue(identity.IdentityID, identity.Email)
	if err != nil {
		return nil, err
	}

	deviceInfo, location := s.sessions.Context(ctx, client)
	if _, err := s.sessions.Establish(ctx, identity.IdentityID, newToken, client, deviceInfo, location); err != nil {
		return nil, err
	}

	s.record(ctx, models.EventTokenRefresh, identity, newToken, client.IP, 0)

	return &LoginResult{
		Token:     newToken,
		ExpiresIn: int64(s.tokens.ExpiresIn().Seconds()),
		Profile:   identity.Profile(),
	}, nil
}

// Logout retires the session owning the token. Only the first call
// succeeds; repeats report that nothing was active.
func (s *AuthService) Logout(ctx context.Context, tokenString string, client ClientContext) error {
	session, err := s.sessions.Find(ctx, tokenString)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to look up session: %w", err)
	}

	deactivated, err := s.sessions.Deactivate(ctx, tokenString)
	if err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}
	if !deactivated {
		return ErrSessionNotFound
	}

	if identity, lookupErr := s.identities.GetByID(ctx, session.IdentityID); lookupErr == nil {
		s.record(ctx, models.EventLogout, identity, tokenString, client.IP, 0)
	}
	return nil
}

// Authorize validates a bearer token: the JWT must verify and must own
// an active session.
func (s *AuthService) Authorize(ctx context.Context, tokenString string) (*token.Claims, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil, err
	}

	active, err := s.sessions.Active(ctx, tokenString)
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	if !active {
		return nil, ErrSessionNotActive
	}
	return claims, nil
}

// ListSessions returns the identity's live sessions.
func (s *AuthService) ListSessions(ctx context.Context, identityID string) ([]*models.Session, error) {
	return s.sessions.ListActive(ctx, identityID)
}

// ForgotPassword issues a password-reset token when the email belongs
// to a registered identity. The empty-token success for unknown emails
// keeps the response indistinguishable, so the endpoint cannot be used
// to enumerate accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to look up identity: %w", err)
	}

	resetToken, err := s.hasher.GenerateResetToken()
	if err != nil {
		return "", err
	}

	expiry := time.Now().UTC().Add(resetTokenLifetime)
	if err := s.identities.SetResetToken(ctx, identity.IdentityID, s.hasher.HashResetToken(resetToken), expiry); err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}

	util.Info("Password reset token issued",
		zap.String("identity_id", identity.IdentityID))
	return resetToken, nil
}

// ResetPassword consumes a reset token and installs a new password.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string, client ClientContext) error {
	identity, err := s.identities.GetByResetTokenHash(ctx, s.hasher.HashResetToken(resetToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("failed to look up reset token: %w", err)
	}

	if identity.ResetTokenExpiry == nil || time.Now().After(*identity.ResetTokenExpiry) {
		return ErrResetTokenInvalid
	}

	passwordHash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.identities.UpdatePassword(ctx, identity.IdentityID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.identities.ClearResetToken(ctx, identity.IdentityID); err != nil {
		return fmt.Errorf("failed to clear reset token: %w", err)
	}

	s.record(ctx, models.EventPasswordReset, identity, "", client.IP, 0)
	return nil
}

// completeLogin is the shared Verified→Scored tail of both login
// flows. The risk score decides between a live session and an MFA
// demand; no session or audit success is produced on the MFA path.
func (s *AuthService) completeLogin(ctx context.Context, identity *models.Identity, biometric *float64, client ClientContext) (*LoginResult, error) {
	deviceInfo, location := s.sessions.Context(ctx, client)

	score := s.risk.Score(biometric, deviceInfo, location)
	if s.risk.ShouldTriggerMFA(score) {
		util.Info("Login deferred to MFA",
			zap.String("identity_id", identity.IdentityID),
			zap.Int("risk_score", score))
		return &LoginResult{MFARequired: true, RiskScore: score}, nil
	}

	signed, err := s.tokens.Issue(identity.IdentityID, identity.Email)
	if err != nil {
		return nil, err
	}

	if _, err := s.sessions.Establish(ctx, identity.IdentityID, signed, client, deviceInfo, location); err != nil {
		return nil, err
	}

	if err := s.identities.UpdateLastLogin(ctx, identity.IdentityID, time.Now().UTC()); err != nil {
		util.Warn("Failed to update last login",
			zap.String("identity_id", identity.IdentityID),
			zap.Error(err))
	}

	s.record(ctx, models.EventLoginSuccess, identity, signed, client.IP, score)

	return &LoginResult{
		RiskScore: score,
		Token:     signed,
		ExpiresIn: int64(s.tokens.ExpiresIn().Seconds()),
		Profile:   identity.Profile(),
	}, nil
}

func (s *AuthService) record(ctx context.Context, event string, identity *models.Identity, tokenString, ip string, riskScore int) {
	entry, err := s.recorder.Entry(ctx, event, identity, tokenString, ip, riskScore)
	if err != nil {
		util.Warn("Failed to build audit entry",
			zap.String("event", event),
			zap.Error(err))
		return
	}
	s.dispatcher.Enqueue(entry)
}

func deriveUsername(firstName, lastName string) string {
	first := strings.ToLower(strings.TrimSpace(firstName))
	last := strings.ToLower(strings.TrimSpace(lastName))
	return first + "." + last
}
