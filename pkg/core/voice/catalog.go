// Package voice holds the synthesis voice catalog and the language
// negotiation rules shared by the capture and output adapters.
package voice

import (
	"slices"
	"sync"
)

// Voice is a synthesis voice reported by the platform.
type Voice struct {
	Name    string
	Lang    string
	Default bool
}

// Catalog is an observable snapshot of the voices the platform currently
// reports. The platform refreshes it asynchronously via Update.
type Catalog struct {
	mu     sync.RWMutex
	voices []Voice
	subs   map[int]chan struct{}
	nextID int
}

// NewCatalog creates a catalog seeded with voices.
func NewCatalog(voices ...Voice) *Catalog {
	return &Catalog{
		voices: slices.Clone(voices),
		subs:   make(map[int]chan struct{}),
	}
}

// Snapshot returns a copy of the current voice list.
func (c *Catalog) Snapshot() []Voice {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.voices)
}

// Update replaces the voice list and notifies subscribers. Notifications are
// coalesced: a subscriber that has not drained the previous one receives a
// single pending signal.
func (c *Catalog) Update(voices []Voice) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.voices = slices.Clone(voices)
	subs := make([]chan struct{}, 0, len(c.subs))
	for _, ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a change notification channel and a cancel func.
func (c *Catalog) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	if c == nil {
		return ch, func() {}
	}
	c.mu.Lock()
	if c.subs == nil {
		c.subs = make(map[int]chan struct{})
	}
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}
