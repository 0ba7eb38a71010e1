// Package audit builds and persists the privacy-preserving audit trail.
// Entries carry pseudonymized correlation fields in the clear and an
// encrypted payload holding the recoverable identity details.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"recordkeeper-auth/internal/encryption"
	"recordkeeper-auth/internal/models"
)

// payload is what gets sealed into the encrypted envelope. Only a short
// token prefix is retained, enough to correlate with client logs.
type payload struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	TokenPrefix string    `json:"tokenPrefix,omitempty"`
	RiskScore   int       `json:"riskScore"`
	Timestamp   time.Time `json:"timestamp"`
}

const tokenPrefixLen = 10

// Recorder assembles audit entries. It is pure assembly: persistence
// and fan-out belong to the Dispatcher.
type Recorder struct {
	encryptor *encryption.Manager
	retention time.Duration
}

func NewRecorder(encryptor *encryption.Manager, retention time.Duration) *Recorder {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Recorder{
		encryptor: encryptor,
		retention: retention,
	}
}

// Pseudonymize returns the stable SHA-256 pseudonym for a value. The
// same input always maps to the same pseudonym so entries for one
// identity stay correlatable without revealing it.
func Pseudonymize(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Entry builds a complete audit entry for an authentication event.
func (r *Recorder) Entry(ctx context.Context, event string, identity *models.Identity, token, ip string, riskScore int) (*models.AuditEntry, error) {
	now := time.Now().UTC()

	p := payload{
		UserID:    identity.IdentityID,
		Email:     identity.Email,
		RiskScore: riskScore,
		Timestamp: now,
	}
	if token != "" {
		prefix := token
		if len(prefix) > tokenPrefixLen {
			prefix = prefix[:tokenPrefixLen]
		}
		p.TokenPrefix = prefix
	}

	plaintext, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	sealed, err := r.encryptor.Encrypt(ctx, string(plaintext))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt audit payload: %w", err)
	}

	envelope, err := json.Marshal(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit envelope: %w", err)
	}

	entry := &models.AuditEntry{
		EntryID:             uuid.NewString(),
		Event:               event,
		PseudonymizedUserID: Pseudonymize(identity.IdentityID),
		PseudonymizedEmail:  Pseudonymize(identity.Email),
		IP:                  ip,
		EncryptedData:       string(envelope),
		RiskScore:           riskScore,
		Timestamp:           now,
		RetainUntil:         now.Add(r.retention),
	}
	if token != "" {
		entry.TokenHash = Pseudonymize(token)
	}
	return entry, nil
}

// Reveal decrypts an entry's payload back into its recoverable fields.
func (r *Recorder) Reveal(ctx context.Context, entry *models.AuditEntry) (map[string]interface{}, error) {
	var sealed encryption.EncryptedData
	if err := json.Unmarshal([]byte(entry.EncryptedData), &sealed); err != nil {
		return nil, fmt.Errorf("failed to parse audit envelope: %w", err)
	}

	plaintext, err := r.encryptor.Decrypt(ctx, &sealed)
	if err != nil {
		return nil, err
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(plaintext), &fields); err != nil {
		return nil, fmt.Errorf("failed to parse audit payload: %w", err)
	}
	return fields, nil
}

// Retention returns the configured retention window.
func (r *Recorder) Retention() time.Duration {
	return r.retention
}
