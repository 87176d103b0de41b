package playback

import (
	"context"
	"sync"
)

// Prober attempts inaudible playback against the client platform. Probes are
// used to detect and clear autoplay restrictions without the user hearing
// anything.
type Prober interface {
	// Silent plays a zero-volume clip to check whether playback is allowed.
	Silent(ctx context.Context) error
	// AudioContext primes the low-level audio-context path.
	AudioContext(ctx context.Context) error
	// AudioElement primes the HTML audio-element path.
	AudioElement(ctx context.Context) error
}

// Unlocker is the one-shot workaround for mobile autoplay policies. Mobile
// platforms silently block the first playback unless audio was primed during
// a user gesture; Unlocker detects that condition and clears it once.
type Unlocker struct {
	mu          sync.Mutex
	prober      Prober
	mobile      bool
	unlocked    bool
	needsUnlock bool
}

func NewUnlocker(prober Prober, mobile bool) *Unlocker {
	return &Unlocker{prober: prober, mobile: mobile}
}

// Probe runs the passive detection pass. Desktop platforms are considered
// unlocked outright; on mobile a silent probe decides whether the UI needs
// to ask for a tap.
func (u *Unlocker) Probe(ctx context.Context) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.unlocked {
		return
	}
	if !u.mobile || u.prober == nil {
		u.unlocked = true
		return
	}
	if err := u.prober.Silent(ctx); err != nil {
		u.needsUnlock = true
		return
	}
	u.unlocked = true
}

// NeedsUnlock reports whether the UI should prompt for a tap before playback.
func (u *Unlocker) NeedsUnlock() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.needsUnlock && !u.unlocked
}

// Unlocked reports whether playback is considered allowed.
func (u *Unlocker) Unlocked() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.unlocked
}

// Unlock primes audio in direct response to a user gesture. Both the
// audio-context and audio-element paths run to cover platform inconsistencies.
// The unlocked flag is set regardless of outcome: a genuine attempt must never
// re-prompt, or the user gets stuck in an unlock loop.
func (u *Unlocker) Unlock(ctx context.Context) {
	u.mu.Lock()
	if u.unlocked {
		u.mu.Unlock()
		return
	}
	prober := u.prober
	u.mu.Unlock()

	if prober != nil {
		_ = prober.AudioContext(ctx)
		_ = prober.AudioElement(ctx)
	}

	u.mu.Lock()
	u.unlocked = true
	u.needsUnlock = false
	u.mu.Unlock()
}
