package journal_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"capstan/internal/api"
	"capstan/internal/journal"
)

func openStore(t *testing.T) *journal.Store {
	t.Helper()
	store, err := journal.Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleEvent(eventType, taskID string) api.Event {
	payload, _ := json.Marshal(map[string]string{"taskId": taskID})
	return api.Event{
		Type:          eventType,
		Payload:       payload,
		Timestamp:     time.Now().UTC().Truncate(time.Millisecond),
		CorrelationID: "corr-" + taskID,
	}
}

func TestAppendAndList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first, err := store.Append(ctx, sampleEvent(api.EventTaskCreated, "t-1"))
	if err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	second, err := store.Append(ctx, sampleEvent(api.EventTaskCompleted, "t-1"))
	if err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if second <= first {
		t.Fatalf("sequence numbers must increase: %d then %d", first, second)
	}

	entries, err := store.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Event.Type != api.EventTaskCreated {
		t.Fatalf("order broken: %+v", entries[0])
	}
	if entries[0].Event.CorrelationID != "corr-t-1" {
		t.Fatalf("correlation id lost: %+v", entries[0])
	}
	if entries[0].ReceivedAt.IsZero() {
		t.Fatal("received_at not recorded")
	}
}

func TestListFiltersByType(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, eventType := range []string{api.EventTaskCreated, api.EventLogMessage, api.EventTaskCreated} {
		if _, err := store.Append(ctx, sampleEvent(eventType, "t-2")); err != nil {
			t.Fatalf("Append returned error: %v", err)
		}
	}

	entries, err := store.List(ctx, api.EventTaskCreated, 0)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 filtered entries, got %d", len(entries))
	}

	limited, err := store.List(ctx, "", 1)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit not applied, got %d", len(limited))
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
}

func TestOpenRefusesSecondWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	store, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer store.Close()

	if _, err := journal.Open(path); err == nil {
		t.Fatal("second Open must fail while the lock is held")
	}
}

func TestReopenAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	store, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if _, err := store.Append(context.Background(), sampleEvent(api.EventStatusChanged, "t-3")); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	reopened, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	defer reopened.Close()
	entries, err := reopened.List(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("journal lost data across reopen, got %d entries", len(entries))
	}
}
