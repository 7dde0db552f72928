package bus

import (
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testEBLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestEventBus_EmitAndReceive(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var received int32
	var category any
	eb.On(EventMessageRouted, func(e Event) {
		atomic.AddInt32(&received, 1)
		category = e.Payload["category"]
	})

	eb.Emit(Event{Type: EventMessageRouted, Payload: map[string]any{"category": "request"}})

	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("expected 1 event received, got %d", received)
	}
	if category != "request" {
		t.Errorf("expected payload category 'request', got %v", category)
	}
}

func TestEventBus_WildcardHandler(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var count int32
	eb.On("*", func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	eb.Emit(Event{Type: EventMessageRouted})
	eb.Emit(Event{Type: EventMessageSuppressed})

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("expected 2, got %d", count)
	}
}

func TestEventBus_HandlerIDsUnique(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	seen := make(map[string]bool)
	for _, eventType := range []string{"a", "a", "b", "a"} {
		id := eb.On(eventType, func(e Event) {})
		if seen[id] {
			t.Fatalf("duplicate handler ID %q", id)
		}
		seen[id] = true
	}
}

func TestEventBus_PanicRecovery(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var after int32
	eb.On("panic", func(e Event) {
		panic("test panic")
	})
	eb.On("panic", func(e Event) {
		atomic.AddInt32(&after, 1)
	})

	// Should not panic the caller, and later handlers still run.
	eb.Emit(Event{Type: "panic"})

	if atomic.LoadInt32(&after) != 1 {
		t.Errorf("expected handler after panic to run, got %d", after)
	}
}

func TestEventBus_TimestampAutoSet(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var ts time.Time
	eb.On("test", func(e Event) { ts = e.Timestamp })
	eb.Emit(Event{Type: "test"})

	if ts.IsZero() {
		t.Error("timestamp should be auto-set")
	}
}
