package playback

import (
	"sync/atomic"
	"testing"
)

func TestSetActiveStopsPreviousHandleExactlyOnce(t *testing.T) {
	c := NewCoordinator()

	var stopsA, stopsB atomic.Int64
	c.Register("a", KindPlayback, func() { stopsA.Add(1) })
	c.Register("b", KindPlayback, func() { stopsB.Add(1) })

	c.SetActive("a", true)
	c.SetActive("b", true)

	if got := stopsA.Load(); got != 1 {
		t.Fatalf("stop(a) invoked %d times, want 1", got)
	}
	if got := stopsB.Load(); got != 0 {
		t.Fatalf("stop(b) invoked %d times, want 0", got)
	}
	if c.IsActive("a") {
		t.Fatalf("a should be inactive after b activates")
	}
	if !c.IsActive("b") {
		t.Fatalf("b should be active")
	}
}

func TestMutualExclusionAcrossRapidToggling(t *testing.T) {
	c := NewCoordinator()
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		c.Register(id, KindPlayback, func() {})
	}

	for i := 0; i < 50; i++ {
		id := ids[i%len(ids)]
		c.SetActive(id, true)
		active := 0
		for _, other := range ids {
			if c.IsActive(other) {
				active++
			}
		}
		if active != 1 {
			t.Fatalf("after SetActive(%q, true): %d handles active, want 1", id, active)
		}
		if !c.IsActive(id) {
			t.Fatalf("after SetActive(%q, true): %q not active", id, id)
		}
	}
}

func TestCaptureAndPlaybackDoNotOverlap(t *testing.T) {
	c := NewCoordinator()
	var micStopped bool
	c.Register("mic", KindCapture, func() { micStopped = true })
	c.Register("reader", KindPlayback, func() {})

	c.SetActive("mic", true)
	c.SetActive("reader", true)

	if !micStopped {
		t.Fatalf("activating playback should stop the capture handle")
	}
	if c.IsActive("mic") {
		t.Fatalf("capture handle should be inactive while playback is active")
	}
}

func TestStopAllStopsEverythingAndBumpsGeneration(t *testing.T) {
	c := NewCoordinator()
	var stopped atomic.Int64
	c.Register("a", KindPlayback, func() { stopped.Add(1) })
	c.Register("b", KindCapture, func() { stopped.Add(1) })
	c.SetActive("a", true)

	gen := c.Generation()
	c.StopAll()

	if got := stopped.Load(); got != 1 {
		t.Fatalf("StopAll invoked %d callbacks, want 1 (only active handles)", got)
	}
	if c.IsAnyActive() {
		t.Fatalf("no handle should be active after StopAll")
	}
	if c.Generation() == gen {
		t.Fatalf("StopAll should bump the suppression generation")
	}
}

func TestStopCallbackPanicIsIsolated(t *testing.T) {
	c := NewCoordinator()
	var logged bool
	c.SetLogf(func(string, ...any) { logged = true })

	c.Register("bad", KindPlayback, func() { panic("boom") })
	c.Register("good", KindPlayback, func() {})
	c.SetActive("bad", true)

	// Activating good stops bad; the panic must be contained and logged,
	// and good must still end up as the single active handle.
	c.SetActive("good", true)

	if !logged {
		t.Fatalf("panicking stop callback should be logged")
	}
	if c.IsActive("bad") {
		t.Fatalf("bad must be marked inactive despite its stop panicking")
	}
	if !c.IsActive("good") {
		t.Fatalf("good must become active despite the previous stop panicking")
	}
}

func TestRegisterIsIdempotentAndOverwritesCallback(t *testing.T) {
	c := NewCoordinator()
	var first, second bool
	c.Register("x", KindPlayback, func() { first = true })
	c.Register("x", KindPlayback, func() { second = true })
	c.SetActive("x", true)
	c.StopAll()

	if first {
		t.Fatalf("overwritten stop callback must not be invoked")
	}
	if !second {
		t.Fatalf("latest stop callback should be invoked")
	}
	if c.RegisteredCount() != 1 {
		t.Fatalf("re-registering the same id must not grow the registry")
	}
}

func TestUnregisterClearsBookkeeping(t *testing.T) {
	c := NewCoordinator()
	c.Register("gone", KindPlayback, func() {})
	c.SetActive("gone", true)

	c.Unregister("gone")
	c.Unregister("gone") // safe to repeat

	if c.Registered("gone") {
		t.Fatalf("unregistered handle must leave the registry")
	}
	if c.IsAnyActive() {
		t.Fatalf("unregistering the active handle clears activity bookkeeping")
	}
	if c.RegisteredCount() != 0 {
		t.Fatalf("registry leaked entries: %d", c.RegisteredCount())
	}
}

func TestSubscribersNotifiedOnEveryMutation(t *testing.T) {
	c := NewCoordinator()
	var events []Snapshot
	cancel := c.Subscribe(func(s Snapshot) { events = append(events, s) })

	c.Register("a", KindPlayback, func() {})
	c.SetActive("a", true)
	c.SetActive("a", false)
	c.StopAll()
	c.Unregister("a")

	if len(events) != 5 {
		t.Fatalf("subscriber saw %d events, want 5", len(events))
	}
	if !events[1].AnyActive || events[1].ActiveID != "a" {
		t.Fatalf("activation snapshot = %+v, want active a", events[1])
	}
	if events[2].AnyActive {
		t.Fatalf("deactivation snapshot should report nothing active")
	}

	cancel()
	c.Register("b", KindPlayback, func() {})
	if len(events) != 5 {
		t.Fatalf("cancelled subscriber must not receive further events")
	}
}

func TestSetActiveOnUnknownIDIsTotal(t *testing.T) {
	c := NewCoordinator()
	c.SetActive("missing", true)
	c.SetActive("missing", false)
	if c.IsAnyActive() {
		t.Fatalf("unknown id must not create activity")
	}
}
