package hashing

import (
	"strings"
	"testing"

	"recordkeeper-auth/internal/config"
)

func testHasher() *Hasher {
	// Light parameters keep the argon2 work factor test-friendly.
	return NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8192,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	})
}

func TestHashAndVerifyPassword(t *testing.T) {
	hasher := testHasher()

	encoded, err := hasher.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Errorf("unexpected hash format: %s", encoded)
	}

	ok, err := hasher.VerifyPassword("correct horse battery staple", encoded)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if !ok {
		t.Error("correct password rejected")
	}

	ok, err = hasher.VerifyPassword("wrong password", encoded)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if ok {
		t.Error("wrong password accepted")
	}
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	hasher := testHasher()

	a, _ := hasher.HashPassword("same password")
	b, _ := hasher.HashPassword("same password")
	if a == b {
		t.Error("two hashes of the same password are identical")
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	hasher := testHasher()

	for _, encoded := range []string{"", "plaintext", "$argon2id$v=19$broken", "$bcrypt$whatever"} {
		if _, err := hasher.VerifyPassword("password", encoded); err == nil {
			t.Errorf("expected error for malformed hash %q", encoded)
		}
	}
}

func TestResetTokens(t *testing.T) {
	hasher := testHasher()

	tokenValue, err := hasher.GenerateResetToken()
	if err != nil {
		t.Fatalf("GenerateResetToken failed: %v", err)
	}
	if len(tokenValue) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(tokenValue))
	}

	first := hasher.HashResetToken(tokenValue)
	second := hasher.HashResetToken(tokenValue)
	if first != second {
		t.Error("reset token hash is not deterministic")
	}
	if first == tokenValue {
		t.Error("reset token stored unhashed")
	}

	other, _ := hasher.GenerateResetToken()
	if hasher.HashResetToken(other) == first {
		t.Error("distinct tokens collide")
	}
}
