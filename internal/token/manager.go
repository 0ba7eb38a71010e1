package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims carried by every bearer token. The JTI is unique per token so
// refresh can revoke the superseded session and replay is detectable.
type Claims struct {
	IdentityID string `json:"userId"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

// Manager signs and verifies bearer tokens with HS256 under a
// process-wide secret.
type Manager struct {
	secret    []byte
	expiresIn time.Duration
}

func NewManager(secret string, expiresIn time.Duration) *Manager {
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	return &Manager{
		secret:    []byte(secret),
		expiresIn: expiresIn,
	}
}

// Issue creates a signed token for the identity with a fresh JTI.
func (m *Manager) Issue(identityID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		IdentityID: identityID,
		Email:      email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiresIn)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExpiresIn returns the configured token lifetime.
func (m *Manager) ExpiresIn() time.Duration {
	return m.expiresIn
}
