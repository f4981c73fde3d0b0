// Package ratelimit bounds relay usage: concurrent connections per client
// address and message rate per connection.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

type Config struct {
	// MaxConnectionsPerClient caps open relay connections per client key.
	// Zero disables the cap.
	MaxConnectionsPerClient int

	// Operational bounds for the in-memory map (single-process only).
	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*clientLimiter
}

type clientLimiter struct {
	connSem  chan struct{}
	lastSeen time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*clientLimiter),
	}
}

type Permit struct {
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed    bool
	RetryAfter int
	Permit     *Permit
}

// AcquireConnection reserves a connection slot for client. A nil Limiter
// allows everything.
func (l *Limiter) AcquireConnection(client string, now time.Time) Decision {
	if l == nil || l.cfg.MaxConnectionsPerClient <= 0 {
		return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
	}
	if client == "" {
		client = "anonymous"
	}

	cl := l.getOrCreate(client, now)
	select {
	case cl.connSem <- struct{}{}:
		return Decision{
			Allowed: true,
			Permit:  &Permit{release: func() { <-cl.connSem }},
		}
	default:
		return Decision{Allowed: false, RetryAfter: 1}
	}
}

func (l *Limiter) getOrCreate(client string, now time.Time) *clientLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cl, ok := l.m[client]; ok {
		cl.lastSeen = now
		return cl
	}

	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
	}
	cl := &clientLimiter{
		connSem:  make(chan struct{}, l.cfg.MaxConnectionsPerClient),
		lastSeen: now,
	}
	l.m[client] = cl
	return cl
}

// gcLocked drops idle entries. Entries holding open connections are kept so
// their permits stay accounted for.
func (l *Limiter) gcLocked(now time.Time) {
	for k, v := range l.m {
		if len(v.connSem) == 0 && now.Sub(v.lastSeen) > l.cfg.EntryTTL {
			delete(l.m, k)
		}
	}
}

// Bucket is a token bucket for one connection's inbound messages. It is not
// safe for concurrent use; each relay session owns one.
type Bucket struct {
	rps      float64
	capacity float64

	tokens float64
	last   time.Time
}

// NewBucket returns a bucket refilling at rps up to burst tokens. A nil
// bucket, or one with rps or burst <= 0, allows everything.
func NewBucket(rps float64, burst int) *Bucket {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &Bucket{rps: rps, capacity: float64(burst), tokens: float64(burst)}
}

// Allow takes a token, or reports how many whole seconds until one is free.
func (b *Bucket) Allow(now time.Time) (bool, int) {
	if b == nil {
		return true, 0
	}
	if b.last.IsZero() {
		b.last = now
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+(elapsed*b.rps))
		b.last = now
	}

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true, 0
	}

	needed := 1.0 - b.tokens
	retryAfter := int(math.Ceil(needed / b.rps))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}
