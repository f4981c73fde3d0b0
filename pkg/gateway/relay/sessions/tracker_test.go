package sessions

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTracker_RegisterUnregister_CountAndWait(t *testing.T) {
	tr := NewTracker()
	if tr.Count() != 0 {
		t.Fatalf("initial count=%d, want 0", tr.Count())
	}

	u1 := tr.Register("c1", Handle{})
	u2 := tr.Register("c2", Handle{})
	if tr.Count() != 2 {
		t.Fatalf("count=%d, want 2", tr.Count())
	}

	u1()
	u1()
	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}

	u2()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if ok := tr.Wait(ctx); !ok {
		t.Fatalf("expected Wait to return true")
	}
}

func TestTracker_Wait_TimesOutWithOpenConnections(t *testing.T) {
	tr := NewTracker()
	tr.Register("c1", Handle{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if ok := tr.Wait(ctx); ok {
		t.Fatalf("expected Wait to time out")
	}
}

func TestTracker_ReRegisterReplacesEntry(t *testing.T) {
	tr := NewTracker()
	tr.Register("c1", Handle{})
	u := tr.Register("c1", Handle{})
	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}
	u()
	if ok := tr.Wait(context.Background()); !ok {
		t.Fatalf("expected Wait to return true")
	}
}

func TestTracker_CancelAll_CallsCancel(t *testing.T) {
	tr := NewTracker()
	var c1, c2 atomic.Int64
	tr.Register("c1", Handle{Cancel: func() { c1.Add(1) }})
	tr.Register("c2", Handle{Cancel: func() { c2.Add(1) }})

	if n := tr.CancelAll(); n != 2 {
		t.Fatalf("canceled=%d, want 2", n)
	}
	if c1.Load() != 1 || c2.Load() != 1 {
		t.Fatalf("cancel calls=%d/%d, want 1/1", c1.Load(), c2.Load())
	}
}

func TestTracker_CloseAll_BestEffort(t *testing.T) {
	tr := NewTracker()
	var gotCode atomic.Int64
	tr.Register("c1", Handle{Close: func(code int, reason string) error {
		gotCode.Store(int64(code))
		return nil
	}})
	tr.Register("c2", Handle{Close: func(int, string) error { return errors.New("queue full") }})
	tr.Register("c3", Handle{})

	if n := tr.CloseAll(1001, "server shutting down"); n != 1 {
		t.Fatalf("sent=%d, want 1", n)
	}
	if gotCode.Load() != 1001 {
		t.Fatalf("code=%d, want 1001", gotCode.Load())
	}
}

func TestTracker_NilSafe(t *testing.T) {
	var tr *Tracker
	tr.Register("c1", Handle{})()
	if tr.Count() != 0 || tr.CloseAll(1001, "") != 0 || tr.CancelAll() != 0 || !tr.Wait(context.Background()) {
		t.Fatalf("nil tracker must be a no-op")
	}
}
