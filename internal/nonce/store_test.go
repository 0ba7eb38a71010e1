package nonce

import (
	"context"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}

	b, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if a == b {
		t.Error("two generated nonces are identical")
	}
}

func TestMemoryStoreConsumeOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	issued, err := store.Issue(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	value, ok, err := store.Consume(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if !ok || value != issued {
		t.Fatalf("expected to consume %q, got %q ok=%v", issued, value, ok)
	}

	if _, ok, _ := store.Consume(ctx, "alice@example.com"); ok {
		t.Error("second consume succeeded")
	}
}

func TestMemoryStoreConsumeUnknown(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	if _, ok, _ := store.Consume(context.Background(), "nobody@example.com"); ok {
		t.Error("consume succeeded with no issued challenge")
	}
}

func TestMemoryStoreReissueReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	first, _ := store.Issue(ctx, "alice@example.com")
	second, _ := store.Issue(ctx, "alice@example.com")
	if first == second {
		t.Fatal("reissue returned the same nonce")
	}

	value, ok, _ := store.Consume(ctx, "alice@example.com")
	if !ok || value != second {
		t.Errorf("expected latest nonce %q, got %q ok=%v", second, value, ok)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10 * time.Millisecond)

	if _, err := store.Issue(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	time.Sleep(25 * time.Millisecond)

	if _, ok, _ := store.Consume(ctx, "alice@example.com"); ok {
		t.Error("expired challenge consumed")
	}
}

func TestMemoryStoreIdentitiesIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	aliceNonce, _ := store.Issue(ctx, "alice@example.com")
	bobNonce, _ := store.Issue(ctx, "bob@example.com")

	if _, ok, _ := store.Consume(ctx, "alice@example.com"); !ok {
		t.Fatal("alice's challenge missing")
	}

	value, ok, _ := store.Consume(ctx, "bob@example.com")
	if !ok || value != bobNonce {
		t.Error("bob's challenge affected by alice's consume")
	}
	if aliceNonce == bobNonce {
		t.Error("identities share a nonce value")
	}
}
