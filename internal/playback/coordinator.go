package playback

import (
	"log"
	"sync"
)

// Kind distinguishes playback handles from capture handles in the registry.
type Kind string

const (
	KindPlayback Kind = "playback"
	KindCapture  Kind = "capture"
)

// StopFunc tears down one unit of audio activity. It must be safe to call
// when the activity already finished or never started.
type StopFunc func()

// Snapshot is the coordinator state delivered to subscribers.
type Snapshot struct {
	AnyActive  bool
	ActiveID   string
	Registered int
	Generation uint64
}

type handle struct {
	kind   Kind
	stop   StopFunc
	active bool
}

// Coordinator is the single source of truth for "is anything audible right
// now". Every playable or recordable resource registers here at creation;
// activation stops everything else first, so no two handles are ever active
// at once. Its operations are total: they never fail, and a stop callback
// that panics cannot prevent the remaining handles from being stopped.
type Coordinator struct {
	mu         sync.Mutex
	handles    map[string]*handle
	subs       map[int]func(Snapshot)
	nextSub    int
	generation uint64

	logf func(format string, args ...any)
}

func NewCoordinator() *Coordinator {
	return &Coordinator{
		handles: make(map[string]*handle),
		subs:    make(map[int]func(Snapshot)),
		logf:    log.Printf,
	}
}

// SetLogf overrides the destination for stop-callback failure logs.
func (c *Coordinator) SetLogf(logf func(format string, args ...any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if logf != nil {
		c.logf = logf
	}
}

// Register stores or overwrites the stop callback for id. Idempotent; it has
// no effect on playback state.
func (c *Coordinator) Register(id string, kind Kind, stop StopFunc) {
	if id == "" || stop == nil {
		return
	}
	c.mu.Lock()
	if h, ok := c.handles[id]; ok {
		h.kind = kind
		h.stop = stop
	} else {
		c.handles[id] = &handle{kind: kind, stop: stop}
	}
	snap := c.snapshotLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, snap)
}

// Unregister removes the bookkeeping entry for id. The owner is responsible
// for stopping its own audio before teardown. Safe to call repeatedly.
func (c *Coordinator) Unregister(id string) {
	c.mu.Lock()
	if _, ok := c.handles[id]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.handles, id)
	snap := c.snapshotLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, snap)
}

// SetActive marks id active after stopping every other active handle, or
// marks it inactive. All other handles are stopped and marked inactive
// before id becomes active; there is never a window with two active handles.
func (c *Coordinator) SetActive(id string, active bool) {
	c.mu.Lock()
	h, ok := c.handles[id]
	if !ok {
		c.mu.Unlock()
		return
	}

	var stops []StopFunc
	if active {
		stops = c.deactivateOthersLocked(id)
		h.active = true
	} else {
		h.active = false
	}
	snap := c.snapshotLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	c.invokeStops(stops)
	notify(subs, snap)
}

// StopAll stops every active handle, marks all inactive, and bumps the
// suppression generation so audio still in flight is skipped when it lands.
// Used for global interrupts: navigation away, tab hidden, escape, outside click.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	stops := c.deactivateOthersLocked("")
	c.generation++
	snap := c.snapshotLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	c.invokeStops(stops)
	notify(subs, snap)
}

// IsAnyActive reports whether any handle is currently active.
func (c *Coordinator) IsAnyActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.handles {
		if h.active {
			return true
		}
	}
	return false
}

// IsActive reports whether the handle with the given id is active.
func (c *Coordinator) IsActive(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[id]
	return ok && h.active
}

// Registered reports whether id currently has a registry entry.
func (c *Coordinator) Registered(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handles[id]
	return ok
}

// RegisteredCount returns the number of registry entries.
func (c *Coordinator) RegisteredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// Generation returns the current suppression generation. Backends capture it
// when a speak starts and compare before starting playback: a mismatch means
// a global stop arrived while audio was still in flight.
func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Subscribe adds a change listener invoked after every mutating operation.
// The returned cancel removes it.
func (c *Coordinator) Subscribe(fn func(Snapshot)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// deactivateOthersLocked marks every active handle except keep inactive and
// returns their stop callbacks. Marking happens under the lock so the
// at-most-one-active invariant holds before any callback runs.
func (c *Coordinator) deactivateOthersLocked(keep string) []StopFunc {
	var stops []StopFunc
	for id, h := range c.handles {
		if id == keep || !h.active {
			continue
		}
		h.active = false
		stops = append(stops, h.stop)
	}
	return stops
}

func (c *Coordinator) invokeStops(stops []StopFunc) {
	for _, stop := range stops {
		c.invokeStop(stop)
	}
}

// invokeStop isolates one callback so a failure cannot block the rest.
func (c *Coordinator) invokeStop(stop StopFunc) {
	defer func() {
		if r := recover(); r != nil {
			c.logf("playback: stop callback panicked: %v", r)
		}
	}()
	stop()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	snap := Snapshot{Registered: len(c.handles), Generation: c.generation}
	for id, h := range c.handles {
		if h.active {
			snap.AnyActive = true
			snap.ActiveID = id
			break
		}
	}
	return snap
}

func (c *Coordinator) subscribersLocked() []func(Snapshot) {
	if len(c.subs) == 0 {
		return nil
	}
	out := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}
