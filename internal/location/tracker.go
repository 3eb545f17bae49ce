// Package location tracks the user's current position for delivery pricing.
package location

import (
	"slices"
	"sync"

	"delivery-cart/internal/geo"
)

// Fix is a resolved user position with its display address
type Fix struct {
	Point   geo.Point
	Address string
}

// Tracker holds the latest known user position and notifies subscribers when the coordinates change.
type Tracker struct {
	mu      sync.RWMutex
	current *Fix
	subs    map[int]func(*geo.Point)
	nextID  int
}

// NewTracker creates a tracker with no known position
func NewTracker() *Tracker {
	return &Tracker{subs: make(map[int]func(*geo.Point))}
}

// Current returns the user's coordinates, or nil when unknown
func (t *Tracker) Current() *geo.Point {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.current == nil {
		return nil
	}
	p := t.current.Point
	return &p
}

// Fix returns the last fix and whether one is known
func (t *Tracker) Fix() (Fix, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.current == nil {
		return Fix{}, false
	}
	return *t.current, true
}

// Update records a new fix. Subscribers run only if the coordinates moved;
// an address-only change is stored silently.
func (t *Tracker) Update(fix Fix) {
	t.mu.Lock()
	moved := t.current == nil || t.current.Point != fix.Point
	f := fix
	t.current = &f
	subs := t.snapshotSubs()
	t.mu.Unlock()

	if moved {
		p := fix.Point
		notify(subs, &p)
	}
}

// Clear forgets the current position, e.g. when permission is revoked
func (t *Tracker) Clear() {
	t.mu.Lock()
	had := t.current != nil
	t.current = nil
	subs := t.snapshotSubs()
	t.mu.Unlock()

	if had {
		notify(subs, nil)
	}
}

// Subscribe registers fn for position changes and returns a function that removes it
func (t *Tracker) Subscribe(fn func(*geo.Point)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.subs[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

func (t *Tracker) snapshotSubs() []func(*geo.Point) {
	ids := make([]int, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	// registration order
	slices.Sort(ids)

	subs := make([]func(*geo.Point), len(ids))
	for i, id := range ids {
		subs[i] = t.subs[id]
	}
	return subs
}

func notify(subs []func(*geo.Point), p *geo.Point) {
	for _, fn := range subs {
		fn(p)
	}
}
