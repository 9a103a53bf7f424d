package registry

import (
	"errors"
	"sync"
	"testing"
)

func TestDispatchOrderAndIsolationByName(t *testing.T) {
	r := New(nil)

	var calls []string
	r.OnEvent("ping", func(_ []byte) { calls = append(calls, "ping-1") })
	r.OnEvent("ping", func(_ []byte) { calls = append(calls, "ping-2") })
	r.OnEvent("pong", func(_ []byte) { calls = append(calls, "pong-1") })

	r.Dispatch("ping", nil)

	if len(calls) != 2 || calls[0] != "ping-1" || calls[1] != "ping-2" {
		t.Errorf("Dispatch(\"ping\") invoked %v, want [ping-1 ping-2]", calls)
	}
}

func TestDispatchPassesPayload(t *testing.T) {
	r := New(nil)

	var got []byte
	r.OnEvent("data", func(p []byte) { got = p })
	r.Dispatch("data", []byte{4, 5, 6})

	if len(got) != 3 || got[0] != 4 {
		t.Errorf("callback received %v, want [4 5 6]", got)
	}
}

func TestDispatchUnknownNameIsNoop(t *testing.T) {
	r := New(nil)
	r.Dispatch("never-registered", []byte("x"))
	r.DispatchLifecycle("never-registered")
}

func TestPanickingCallbackDoesNotStopDispatch(t *testing.T) {
	var reported []error
	r := New(func(err error) { reported = append(reported, err) })

	var secondRan bool
	r.OnEvent("boom", func(_ []byte) { panic("first callback failed") })
	r.OnEvent("boom", func(_ []byte) { secondRan = true })

	r.Dispatch("boom", nil)

	if !secondRan {
		t.Error("second callback did not run after first panicked")
	}
	if len(reported) != 1 {
		t.Errorf("got %d reported errors, want 1", len(reported))
	}
}

func TestOnLifecycleRejectsUnknownKind(t *testing.T) {
	r := New(nil)

	if err := r.OnLifecycle(LifecycleConnected, func() {}); err != nil {
		t.Errorf("OnLifecycle(connected) returned error: %v", err)
	}
	if err := r.OnLifecycle(LifecycleDisconnected, func() {}); err != nil {
		t.Errorf("OnLifecycle(disconnected) returned error: %v", err)
	}

	err := r.OnLifecycle("reconnected", func() {})
	if !errors.Is(err, ErrUnknownLifecycleEvent) {
		t.Errorf("OnLifecycle(reconnected) error = %v, want ErrUnknownLifecycleEvent", err)
	}

	// The failed registration must not have created a new lifecycle kind.
	var fired bool
	_ = r.OnLifecycle(LifecycleConnected, func() { fired = true })
	r.DispatchLifecycle("reconnected")
	if fired {
		t.Error("dispatch of rejected lifecycle kind invoked a callback")
	}
}

func TestClear(t *testing.T) {
	r := New(nil)

	var events, lifecycle int
	r.OnEvent("a", func(_ []byte) { events++ })
	_ = r.OnLifecycle(LifecycleConnected, func() { lifecycle++ })

	r.ClearEvents()
	r.Dispatch("a", nil)
	if events != 0 {
		t.Error("event callback survived ClearEvents")
	}

	r.ClearLifecycle()
	r.DispatchLifecycle(LifecycleConnected)
	if lifecycle != 0 {
		t.Error("lifecycle callback survived ClearLifecycle")
	}

	// Lifecycle names remain registrable after a clear.
	if err := r.OnLifecycle(LifecycleConnected, func() {}); err != nil {
		t.Errorf("OnLifecycle after ClearLifecycle returned error: %v", err)
	}
}

func TestConcurrentRegisterAndDispatch(t *testing.T) {
	r := New(nil)

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			r.OnEvent("tick", func(_ []byte) {})
		}
		close(done)
	}()

	for {
		r.Dispatch("tick", nil)
		select {
		case <-done:
			wg.Wait()
			return
		default:
		}
	}
}
