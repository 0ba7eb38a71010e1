package audit

import (
	"context"
	"testing"
	"time"

	"recordkeeper-auth/internal/models"
	"recordkeeper-auth/internal/repository/memory"
)

func TestDispatcherPersistsAndDrains(t *testing.T) {
	store := memory.NewAuditStore()
	dispatcher := NewDispatcher(store, DispatcherOptions{BufferSize: 16})
	recorder := testRecorder()

	for i := 0; i < 5; i++ {
		entry, err := recorder.Entry(context.Background(), models.EventLoginSuccess,
			testIdentity(), "", "198.51.100.7", i)
		if err != nil {
			t.Fatalf("Entry failed: %v", err)
		}
		dispatcher.Enqueue(entry)
	}

	// Close drains the buffer before returning.
	dispatcher.Close()

	if got := store.Len(); got != 5 {
		t.Errorf("store holds %d entries, want 5", got)
	}
}

func TestDispatcherFindByPseudonym(t *testing.T) {
	store := memory.NewAuditStore()
	dispatcher := NewDispatcher(store, DispatcherOptions{BufferSize: 16})
	recorder := testRecorder()

	entry, _ := recorder.Entry(context.Background(), models.EventRegistration,
		testIdentity(), "", "198.51.100.7", 0)
	dispatcher.Enqueue(entry)
	dispatcher.Close()

	found, err := store.FindByPseudonym(context.Background(), entry.PseudonymizedUserID, 10)
	if err != nil {
		t.Fatalf("FindByPseudonym failed: %v", err)
	}
	if len(found) != 1 || found[0].EntryID != entry.EntryID {
		t.Errorf("unexpected lookup result: %+v", found)
	}
}

func TestSweeperPurgesExpired(t *testing.T) {
	store := memory.NewAuditStore()

	fresh := &models.AuditEntry{
		EntryID:     "fresh",
		Timestamp:   time.Now().UTC(),
		RetainUntil: time.Now().UTC().Add(time.Hour),
	}
	stale := &models.AuditEntry{
		EntryID:     "stale",
		Timestamp:   time.Now().UTC().Add(-31 * 24 * time.Hour),
		RetainUntil: time.Now().UTC().Add(-24 * time.Hour),
	}
	store.Insert(context.Background(), fresh)
	store.Insert(context.Background(), stale)

	sweeper := NewSweeper(store, time.Hour)
	sweeper.Start()
	sweeper.Stop()

	if got := store.Len(); got != 1 {
		t.Fatalf("store holds %d entries after sweep, want 1", got)
	}
}
