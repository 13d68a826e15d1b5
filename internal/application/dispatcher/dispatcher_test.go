package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/approval-workflow/internal/domain/event"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) hasError(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.errors {
		if e == msg {
			return true
		}
	}
	return false
}

func newEvent(t event.Type) *event.Event {
	return event.NewEvent(t, "REQ-1", map[string]interface{}{"request_type": "expense"})
}

func TestSubscribe_MultipleTypes(t *testing.T) {
	d := NewDispatcher()
	var calls atomic.Int32

	d.Subscribe("counter", func(ctx context.Context, evt *event.Event) error {
		calls.Add(1)
		return nil
	}, event.TypeRequestApproved, event.TypeRequestRejected)

	for _, typ := range []event.Type{event.TypeRequestApproved, event.TypeRequestRejected, event.TypeRequestSubmitted} {
		if err := d.Dispatch(context.Background(), newEvent(typ)); err != nil {
			t.Fatalf("Dispatch(%s) error = %v", typ, err)
		}
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("handler called %d times, want 2", got)
	}

	infos := d.Handlers(event.TypeRequestApproved)
	if len(infos) != 1 || infos[0].Name != "counter" || infos[0].Handler != nil {
		t.Errorf("Handlers() = %+v", infos)
	}
}

func TestDispatch_StopsAtFirstError(t *testing.T) {
	d := NewDispatcher()
	boom := errors.New("boom")
	secondCalled := false

	d.Subscribe("failing", func(ctx context.Context, evt *event.Event) error { return boom }, event.TypeRequestSubmitted)
	d.Subscribe("second", func(ctx context.Context, evt *event.Event) error {
		secondCalled = true
		return nil
	}, event.TypeRequestSubmitted)

	err := d.Dispatch(context.Background(), newEvent(event.TypeRequestSubmitted))
	if !errors.Is(err, boom) {
		t.Fatalf("Dispatch() error = %v, want boom", err)
	}
	if secondCalled {
		t.Error("second handler should not run after a failure")
	}
}

func TestDispatch_RecoversPanic(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	d.Subscribe("panicky", func(ctx context.Context, evt *event.Event) error {
		panic("nil map")
	}, event.TypeRequestRejected)

	if err := d.Dispatch(context.Background(), newEvent(event.TypeRequestRejected)); err == nil {
		t.Fatal("Dispatch() should surface the recovered panic")
	}
	if !logger.hasError("Handler panic recovered") {
		t.Error("expected panic to be logged")
	}
}

func TestDispatchAsync_DetachesFromCallerContext(t *testing.T) {
	d := NewDispatcher()
	done := make(chan error, 1)

	d.Subscribe("slow", func(ctx context.Context, evt *event.Event) error {
		time.Sleep(10 * time.Millisecond)
		done <- ctx.Err()
		return nil
	}, event.TypeRequestApproved)

	ctx, cancel := context.WithCancel(context.Background())
	d.DispatchAsync(ctx, newEvent(event.TypeRequestApproved))
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("handler context error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("async handler did not run")
	}
}

func TestDispatchAsync_ErrorsAreLogged(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	d.Subscribe("failing", func(ctx context.Context, evt *event.Event) error {
		return errors.New("lark unavailable")
	}, event.TypeRequestApproved)

	d.DispatchAsync(context.Background(), newEvent(event.TypeRequestApproved))
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !logger.hasError("Async handler error") {
		t.Error("expected async failure to be logged")
	}
}

func TestClose(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))
	var finished atomic.Bool

	d.Subscribe("slow", func(ctx context.Context, evt *event.Event) error {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	}, event.TypeRequestSubmitted)

	d.DispatchAsync(context.Background(), newEvent(event.TypeRequestSubmitted))

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !finished.Load() {
		t.Error("Close() should wait for in-flight handlers")
	}

	if err := d.Close(); err == nil {
		t.Error("second Close() should fail")
	}
	if err := d.Dispatch(context.Background(), newEvent(event.TypeRequestSubmitted)); err == nil {
		t.Error("Dispatch() after Close() should fail")
	}

	d.DispatchAsync(context.Background(), newEvent(event.TypeRequestSubmitted))
	if !logger.hasError("Dropping event, dispatcher is closed") {
		t.Error("expected dropped event to be logged")
	}
}
