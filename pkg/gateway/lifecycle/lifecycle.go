// Package lifecycle holds process state shared by the HTTP handlers.
package lifecycle

import "sync/atomic"

// Lifecycle flips to draining when shutdown starts: readiness reports 503 and
// the relay refuses new websocket upgrades.
type Lifecycle struct {
	draining atomic.Bool
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
