package models

import "time"

// AuditEntry is an immutable, privacy-preserving record of an
// authentication event. The pseudonymized fields exist only to
// correlate entries for the same identity; the encrypted payload is the
// only place the true identity/email are recoverable.
type AuditEntry struct {
	EntryID             string    `db:"entry_id" json:"entry_id"`
	Event               string    `db:"event" json:"event"`
	PseudonymizedUserID string    `db:"pseudonymized_user_id" json:"pseudonymized_user_id"`
	PseudonymizedEmail  string    `db:"pseudonymized_email" json:"pseudonymized_email"`
	IP                  string    `db:"ip" json:"ip"`
	TokenHash           string    `db:"token_hash" json:"token_hash,omitempty"`
	EncryptedData       string    `db:"encrypted_data" json:"-"`
	RiskScore           int       `db:"risk_score" json:"risk_score"`
	Timestamp           time.Time `db:"timestamp" json:"timestamp"`
	RetainUntil         time.Time `db:"retain_until" json:"retain_until"`
}

// Audit event kinds written by the authentication flows.
const (
	EventRegistration  = "registration"
	EventLoginSuccess  = "login_success"
	EventTokenRefresh  = "token_refresh"
	EventLogout        = "logout"
	EventPasswordReset = "password_reset"
)
