package nonce

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"recordkeeper-auth/internal/client"
	"recordkeeper-auth/internal/config"
	"recordkeeper-auth/internal/util"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := &config.Config{
		Redis: config.RedisConfig{
			URL:      "redis://" + mr.Addr(),
			PoolSize: 10,
		},
	}

	redisClient, err := client.NewRedisClient(cfg, util.Get())
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	return NewRedisStore(redisClient, time.Minute), mr
}

func TestRedisStoreConsumeOnce(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

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

func TestRedisStoreReissueReplaces(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	if _, err := store.Issue(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	second, err := store.Issue(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	value, ok, _ := store.Consume(ctx, "alice@example.com")
	if !ok || value != second {
		t.Errorf("expected latest nonce %q, got %q ok=%v", second, value, ok)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	if _, err := store.Issue(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, ok, _ := store.Consume(ctx, "alice@example.com"); ok {
		t.Error("expired challenge consumed")
	}
}

func TestRedisStoreUnknownIdentity(t *testing.T) {
	store, _ := newTestRedisStore(t)
	if _, ok, _ := store.Consume(context.Background(), "nobody@example.com"); ok {
		t.Error("consume succeeded with no issued challenge")
	}
}
