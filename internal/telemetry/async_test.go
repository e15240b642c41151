package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"authsession/internal/telemetry/domain"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*domain.Event
	emitErr error
	delay   time.Duration
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Event(nil), m.events...)
}

func waitForEvents(t *testing.T, m *mockEventEmitter, n int) []*domain.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := m.getEvents(); len(events) >= n {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	events := m.getEvents()
	t.Fatalf("expected %d events, got %d", n, len(events))
	return nil
}

func TestEmitAsync_NilEmitter(t *testing.T) {
	// Should not panic
	EmitAsync(nil, context.Background(), &domain.Event{Type: domain.EventLogin})
}

func TestEmitAsync_NilEvent(t *testing.T) {
	emitter := &mockEventEmitter{}

	EmitAsync(emitter, context.Background(), nil)
	time.Sleep(10 * time.Millisecond)

	if events := emitter.getEvents(); len(events) != 0 {
		t.Errorf("expected 0 events, got %d", len(events))
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := &mockEventEmitter{}
	event := &domain.Event{
		Type:     domain.EventLogin,
		UserID:   "user-1",
		DeviceID: "dev-1",
		Source:   "test",
	}

	EmitAsync(emitter, context.Background(), event)

	events := waitForEvents(t, emitter, 1)
	if events[0].UserID != "user-1" {
		t.Errorf("event user_id = %q, want %q", events[0].UserID, "user-1")
	}
	if events[0].Type != domain.EventLogin {
		t.Errorf("event type = %q, want %q", events[0].Type, domain.EventLogin)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped")
	}
}

func TestEmitAsync_DetachedFromCallerContext(t *testing.T) {
	emitter := &mockEventEmitter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	EmitAsync(emitter, ctx, &domain.Event{Type: domain.EventLogout})

	waitForEvents(t, emitter, 1)
}

func TestEmitAsync_ErrorHandling(t *testing.T) {
	emitter := &mockEventEmitter{emitErr: context.DeadlineExceeded}

	// Should not panic on error
	EmitAsync(emitter, context.Background(), &domain.Event{Type: domain.EventRefresh})

	waitForEvents(t, emitter, 1)
}

func TestEmitAsync_ConcurrentAccess(t *testing.T) {
	emitter := &mockEventEmitter{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(emitter, context.Background(), &domain.Event{Type: domain.EventRefresh})
		}()
	}
	wg.Wait()

	waitForEvents(t, emitter, 10)
}

func TestMultiEmitter_FansOutAndJoinsErrors(t *testing.T) {
	ok := &mockEventEmitter{}
	failing := &mockEventEmitter{emitErr: errors.New("broker down")}
	m := MultiEmitter{ok, nil, failing}

	err := m.Emit(context.Background(), &domain.Event{Type: domain.EventLogin})
	if err == nil || err.Error() != "broker down" {
		t.Fatalf("Emit error = %v, want broker down", err)
	}
	if len(ok.getEvents()) != 1 || len(failing.getEvents()) != 1 {
		t.Errorf("every emitter should receive the event")
	}
}

func TestDrain_WaitsForInflightEmits(t *testing.T) {
	emitter := &mockEventEmitter{delay: 50 * time.Millisecond}
	EmitAsync(emitter, context.Background(), &domain.Event{Type: domain.EventLogout})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := len(emitter.getEvents()); got != 1 {
		t.Errorf("events after Drain = %d, want 1", got)
	}
}

func TestDrain_StopsAtContextDeadline(t *testing.T) {
	emitter := &mockEventEmitter{delay: 500 * time.Millisecond}
	EmitAsync(emitter, context.Background(), &domain.Event{Type: domain.EventLogout})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain error = %v, want deadline exceeded", err)
	}
	waitForEvents(t, emitter, 1)
}
