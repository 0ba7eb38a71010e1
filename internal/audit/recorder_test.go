package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"recordkeeper-auth/internal/config"
	"recordkeeper-auth/internal/encryption"
	"recordkeeper-auth/internal/models"
)

func testRecorder() *Recorder {
	encryptor := encryption.NewManager(&config.Config{
		KMS: config.KMSConfig{Enabled: false},
	}, nil)
	return NewRecorder(encryptor, 30*24*time.Hour)
}

func testIdentity() *models.Identity {
	return &models.Identity{
		IdentityID: "4f4606e1-9d5a-4b3e-8a3e-0d5a89e35a01",
		Email:      "alice@example.com",
		Username:   "alice.smith",
	}
}

func TestPseudonymize(t *testing.T) {
	sum := sha256.Sum256([]byte("alice@example.com"))
	want := hex.EncodeToString(sum[:])

	if got := Pseudonymize("alice@example.com"); got != want {
		t.Errorf("Pseudonymize = %q, want %q", got, want)
	}
	if Pseudonymize("alice@example.com") != Pseudonymize("alice@example.com") {
		t.Error("pseudonym is not stable")
	}
	if Pseudonymize("alice@example.com") == Pseudonymize("bob@example.com") {
		t.Error("distinct values share a pseudonym")
	}
}

func TestEntry(t *testing.T) {
	ctx := context.Background()
	recorder := testRecorder()
	identity := testIdentity()
	tokenString := "eyJhbGciOiJIUzI1NiJ9.payload.signature"

	entry, err := recorder.Entry(ctx, models.EventLoginSuccess, identity, tokenString, "198.51.100.7", 12)
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}

	if entry.EntryID == "" {
		t.Error("entry missing id")
	}
	if entry.Event != models.EventLoginSuccess {
		t.Errorf("Event = %q", entry.Event)
	}
	if entry.PseudonymizedUserID != Pseudonymize(identity.IdentityID) {
		t.Error("wrong user pseudonym")
	}
	if entry.PseudonymizedEmail != Pseudonymize(identity.Email) {
		t.Error("wrong email pseudonym")
	}
	if entry.TokenHash != Pseudonymize(tokenString) {
		t.Error("wrong token hash")
	}
	if entry.RiskScore != 12 {
		t.Errorf("RiskScore = %d", entry.RiskScore)
	}

	if strings.Contains(entry.EncryptedData, identity.Email) {
		t.Error("encrypted payload leaks the email")
	}
	if strings.Contains(entry.EncryptedData, identity.IdentityID) {
		t.Error("encrypted payload leaks the identity id")
	}

	wantRetain := entry.Timestamp.Add(30 * 24 * time.Hour)
	if !entry.RetainUntil.Equal(wantRetain) {
		t.Errorf("RetainUntil = %v, want %v", entry.RetainUntil, wantRetain)
	}
}

func TestEntryRevealRoundTrip(t *testing.T) {
	ctx := context.Background()
	recorder := testRecorder()
	identity := testIdentity()
	tokenString := "eyJhbGciOiJIUzI1NiJ9.payload.signature"

	entry, err := recorder.Entry(ctx, models.EventLoginSuccess, identity, tokenString, "198.51.100.7", 12)
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}

	fields, err := recorder.Reveal(ctx, entry)
	if err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}

	if fields["userId"] != identity.IdentityID {
		t.Errorf("userId = %v", fields["userId"])
	}
	if fields["email"] != identity.Email {
		t.Errorf("email = %v", fields["email"])
	}
	if fields["tokenPrefix"] != tokenString[:10] {
		t.Errorf("tokenPrefix = %v, want %q", fields["tokenPrefix"], tokenString[:10])
	}
	if fields["riskScore"] != float64(12) {
		t.Errorf("riskScore = %v", fields["riskScore"])
	}
}

func TestEntryWithoutToken(t *testing.T) {
	ctx := context.Background()
	recorder := testRecorder()

	entry, err := recorder.Entry(ctx, models.EventRegistration, testIdentity(), "", "198.51.100.7", 0)
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}
	if entry.TokenHash != "" {
		t.Error("token hash set without a token")
	}

	fields, err := recorder.Reveal(ctx, entry)
	if err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}
	if _, present := fields["tokenPrefix"]; present {
		t.Error("tokenPrefix present without a token")
	}
}

func TestEntryShortToken(t *testing.T) {
	ctx := context.Background()
	recorder := testRecorder()

	entry, err := recorder.Entry(ctx, models.EventLogout, testIdentity(), "short", "198.51.100.7", 0)
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}

	fields, err := recorder.Reveal(ctx, entry)
	if err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}
	if fields["tokenPrefix"] != "short" {
		t.Errorf("tokenPrefix = %v", fields["tokenPrefix"])
	}
}
