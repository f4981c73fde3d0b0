package stt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeRecognizer struct {
	mu       sync.Mutex
	starts   []Options
	sessions chan chan Result
	startErr error
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{sessions: make(chan chan Result, 8)}
}

func (f *fakeRecognizer) Start(ctx context.Context, opts Options) (<-chan Result, error) {
	f.mu.Lock()
	f.starts = append(f.starts, opts)
	err := f.startErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	ch := make(chan Result, 8)
	f.sessions <- ch
	return ch, nil
}

func (f *fakeRecognizer) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func (f *fakeRecognizer) next(t *testing.T) chan Result {
	t.Helper()
	select {
	case ch := <-f.sessions:
		return ch
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for recognition session")
		return nil
	}
}

func recvEvent(t *testing.T, c *Capture) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		return ev, ok
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for capture event")
		return Event{}, false
	}
}

func TestSupervisor_StartUsesRecognizerFlags(t *testing.T) {
	rec := newFakeRecognizer()
	s := NewSupervisor(rec, nil)
	c, err := s.Start(context.Background(), "hi-IN")
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer c.Stop()

	if got := rec.starts[0]; got.Language != "hi-IN" || got.Continuous || !got.InterimResults {
		t.Fatalf("opts=%+v", got)
	}
	if c.Language() != "hi-IN" {
		t.Fatalf("language=%q", c.Language())
	}
}

func TestSupervisor_RestartsAfterEngineEnd(t *testing.T) {
	rec := newFakeRecognizer()
	s := NewSupervisor(rec, nil)
	s.RestartDelay = time.Millisecond

	c, err := s.Start(context.Background(), "en-IN")
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer c.Stop()

	first := rec.next(t)
	first <- Result{Text: "hel"}
	first <- Result{Text: "hello", IsFinal: true}
	close(first)

	ev, _ := recvEvent(t, c)
	if ev.PartialText != "hel" || ev.IsFinal {
		t.Fatalf("event=%+v", ev)
	}
	ev, _ = recvEvent(t, c)
	if ev.PartialText != "hello" || !ev.IsFinal {
		t.Fatalf("event=%+v", ev)
	}

	second := rec.next(t)
	second <- Result{Text: "again", IsFinal: true}
	ev, _ = recvEvent(t, c)
	if ev.PartialText != "again" {
		t.Fatalf("event=%+v", ev)
	}
}

func TestSupervisor_NoRestartAfterStop(t *testing.T) {
	rec := newFakeRecognizer()
	s := NewSupervisor(rec, nil)
	s.RestartDelay = time.Millisecond

	c, err := s.Start(context.Background(), "en-IN")
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	first := rec.next(t)
	c.Stop()
	c.Stop()
	close(first)

	time.Sleep(20 * time.Millisecond)
	if n := rec.startCount(); n != 1 {
		t.Fatalf("starts=%d, want 1", n)
	}
	if _, ok := <-c.Events(); ok {
		t.Fatalf("expected closed events channel")
	}
}

func TestSupervisor_ErrorIsFinalEvent(t *testing.T) {
	rec := newFakeRecognizer()
	s := NewSupervisor(rec, nil)
	s.RestartDelay = time.Millisecond

	c, err := s.Start(context.Background(), "en-IN")
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer c.Stop()

	first := rec.next(t)
	first <- Result{Err: &CaptureError{Reason: ReasonNoSpeech}}

	ev, ok := recvEvent(t, c)
	if !ok {
		t.Fatalf("events closed before error")
	}
	var ce *CaptureError
	if !errors.As(ev.Err, &ce) || ce.Reason != ReasonNoSpeech {
		t.Fatalf("err=%v", ev.Err)
	}
	if _, ok := recvEvent(t, c); ok {
		t.Fatalf("expected events channel closed after error")
	}
	if n := rec.startCount(); n != 1 {
		t.Fatalf("starts=%d, want 1", n)
	}
}

func TestSupervisor_StartErrorWrapsReason(t *testing.T) {
	rec := newFakeRecognizer()
	rec.startErr = &CaptureError{Reason: ReasonNotAllowed}
	s := NewSupervisor(rec, nil)

	_, err := s.Start(context.Background(), "en-IN")
	var ce *CaptureError
	if !errors.As(err, &ce) || ce.Reason != ReasonNotAllowed {
		t.Fatalf("err=%v", err)
	}
	if got := ce.CoreError().Type; got != "permission_error" {
		t.Fatalf("type=%q", got)
	}

	rec.startErr = errors.New("device busy")
	_, err = s.Start(context.Background(), "en-IN")
	if !errors.As(err, &ce) || ce.Reason != ReasonAborted {
		t.Fatalf("err=%v", err)
	}
}

func TestSupervisor_NilRecognizer(t *testing.T) {
	var s Supervisor
	if _, err := s.Start(context.Background(), "en-IN"); !errors.Is(err, ErrNoRecognizer) {
		t.Fatalf("err=%v, want ErrNoRecognizer", err)
	}
}
