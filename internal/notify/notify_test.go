package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEventWriterCreatesFile(t *testing.T) {
	dir := t.TempDir()
	w := NewEventWriter(dir)

	if err := w.Notify(MemoryAdded, "abc123", "alice"); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "events"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 event file, got %d", len(entries))
	}
	if filepath.Ext(entries[0].Name()) != ".event" {
		t.Errorf("expected .event extension, got %s", entries[0].Name())
	}
}

func TestEventWatcherReceivesEvent(t *testing.T) {
	dir := t.TempDir()

	received := make(chan Event, 1)
	watcher := NewEventWatcher(dir, func(event Event) {
		received <- event
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	// Give fsnotify a moment to register
	time.Sleep(50 * time.Millisecond)

	writer := NewEventWriter(dir)
	if err := writer.Notify(MemoryUpdated, "mem123", "alice"); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	select {
	case event := <-received:
		if event.Type != MemoryUpdated {
			t.Errorf("expected event type %s, got %s", MemoryUpdated, event.Type)
		}
		if event.MemoryID != "mem123" || event.OwnerID != "alice" {
			t.Errorf("payload round-trip failed: %+v", event)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventWatcherDrainsExisting(t *testing.T) {
	dir := t.TempDir()

	// Write events BEFORE starting watcher
	writer := NewEventWriter(dir)
	_ = writer.Notify(MemoryAdded, "drain1", "alice")
	_ = writer.Notify(MemoryDeleted, "drain2", "alice")

	received := make(chan Event, 10)
	watcher := NewEventWatcher(dir, func(event Event) {
		received <- event
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	// Drain should have processed both files synchronously during Start
	time.Sleep(100 * time.Millisecond)

	if len(received) != 2 {
		t.Fatalf("expected 2 drained events, got %d", len(received))
	}
}

func TestEventTypeRoundTrip(t *testing.T) {
	// Verify all three event types survive the write→watch round-trip
	for _, evtType := range []string{MemoryAdded, MemoryUpdated, MemoryDeleted} {
		t.Run(evtType, func(t *testing.T) {
			dir := t.TempDir()

			received := make(chan Event, 1)
			watcher := NewEventWatcher(dir, func(event Event) {
				received <- event
			})
			if err := watcher.Start(); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			defer watcher.Stop()

			time.Sleep(50 * time.Millisecond)

			writer := NewEventWriter(dir)
			if err := writer.Notify(evtType, "roundtrip", "bob"); err != nil {
				t.Fatalf("Notify failed: %v", err)
			}

			select {
			case event := <-received:
				if event.Type != evtType {
					t.Errorf("expected event type %s, got %s", evtType, event.Type)
				}
			case <-time.After(3 * time.Second):
				t.Fatal("timeout waiting for event")
			}
		})
	}
}

func TestSanitizeID(t *testing.T) {
	got := sanitizeID("abc/def:ghi")
	if got != "abc_def_ghi" {
		t.Errorf("expected abc_def_ghi, got %s", got)
	}
}
