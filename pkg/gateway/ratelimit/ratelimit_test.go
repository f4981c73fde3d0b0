package ratelimit

import (
	"testing"
	"time"
)

func TestAcquireConnection_EnforcesPerClientCap(t *testing.T) {
	l := New(Config{MaxConnectionsPerClient: 1})
	now := time.Now()

	first := l.AcquireConnection("10.0.0.1", now)
	if !first.Allowed || first.Permit == nil {
		t.Fatalf("first allowed=%v permit=%v", first.Allowed, first.Permit)
	}

	second := l.AcquireConnection("10.0.0.1", now)
	if second.Allowed {
		t.Fatalf("second should be denied")
	}
	if second.RetryAfter != 1 {
		t.Fatalf("RetryAfter=%d", second.RetryAfter)
	}

	other := l.AcquireConnection("10.0.0.2", now)
	if !other.Allowed {
		t.Fatalf("other client should be allowed")
	}

	first.Permit.Release()
	first.Permit.Release()
	third := l.AcquireConnection("10.0.0.1", now)
	if !third.Allowed {
		t.Fatalf("third should be allowed after release")
	}
}

func TestAcquireConnection_DisabledAndNil(t *testing.T) {
	var nilLimiter *Limiter
	if d := nilLimiter.AcquireConnection("x", time.Now()); !d.Allowed {
		t.Fatalf("nil limiter should allow")
	}
	l := New(Config{})
	for i := 0; i < 5; i++ {
		if d := l.AcquireConnection("x", time.Now()); !d.Allowed {
			t.Fatalf("disabled cap should allow, attempt %d", i)
		}
	}
}

func TestBucket_RefillsOverTime(t *testing.T) {
	b := NewBucket(2, 2)
	now := time.Unix(1000, 0)

	for i := 0; i < 2; i++ {
		if ok, _ := b.Allow(now); !ok {
			t.Fatalf("burst token %d denied", i)
		}
	}
	ok, retry := b.Allow(now)
	if ok || retry != 1 {
		t.Fatalf("ok=%v retry=%d, want denied with retry 1", ok, retry)
	}

	if ok, _ := b.Allow(now.Add(500 * time.Millisecond)); !ok {
		t.Fatalf("expected a token after refill")
	}
}

func TestNewBucket_DisabledAllowsEverything(t *testing.T) {
	b := NewBucket(0, 5)
	if b != nil {
		t.Fatalf("expected nil bucket when rps is 0")
	}
	if ok, _ := b.Allow(time.Now()); !ok {
		t.Fatalf("nil bucket should allow")
	}
}
