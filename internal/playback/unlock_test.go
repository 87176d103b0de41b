package playback

import (
	"context"
	"errors"
	"testing"
)

type stubProber struct {
	silentErr  error
	contextErr error
	elementErr error

	silentCalls  int
	contextCalls int
	elementCalls int
}

func (p *stubProber) Silent(context.Context) error {
	p.silentCalls++
	return p.silentErr
}

func (p *stubProber) AudioContext(context.Context) error {
	p.contextCalls++
	return p.contextErr
}

func (p *stubProber) AudioElement(context.Context) error {
	p.elementCalls++
	return p.elementErr
}

func TestProbeDesktopIsUnlockedImmediately(t *testing.T) {
	p := &stubProber{}
	u := NewUnlocker(p, false)
	u.Probe(context.Background())

	if !u.Unlocked() {
		t.Fatalf("desktop platform should be unlocked without probing")
	}
	if p.silentCalls != 0 {
		t.Fatalf("desktop probe should not run the silent probe")
	}
}

func TestProbeMobileFailureFlagsNeedsUnlock(t *testing.T) {
	p := &stubProber{silentErr: errors.New("autoplay blocked")}
	u := NewUnlocker(p, true)
	u.Probe(context.Background())

	if u.Unlocked() {
		t.Fatalf("blocked probe must not mark unlocked")
	}
	if !u.NeedsUnlock() {
		t.Fatalf("blocked probe should surface the unlock prompt")
	}
}

func TestProbeMobileSuccessUnlocks(t *testing.T) {
	p := &stubProber{}
	u := NewUnlocker(p, true)
	u.Probe(context.Background())

	if !u.Unlocked() {
		t.Fatalf("successful silent probe should unlock")
	}
	if u.NeedsUnlock() {
		t.Fatalf("unlocked state must not prompt")
	}
}

func TestUnlockRunsBothPathsAndNeverReblocks(t *testing.T) {
	p := &stubProber{
		silentErr:  errors.New("blocked"),
		contextErr: errors.New("still blocked"),
		elementErr: errors.New("still blocked"),
	}
	u := NewUnlocker(p, true)
	u.Probe(context.Background())
	u.Unlock(context.Background())

	if p.contextCalls != 1 || p.elementCalls != 1 {
		t.Fatalf("unlock should try both priming paths, got context=%d element=%d", p.contextCalls, p.elementCalls)
	}
	if !u.Unlocked() {
		t.Fatalf("unlock marks unlocked even when both probes fail")
	}
	if u.NeedsUnlock() {
		t.Fatalf("a genuine unlock attempt must clear the prompt for good")
	}

	u.Unlock(context.Background())
	if p.contextCalls != 1 {
		t.Fatalf("repeat unlock should be a no-op")
	}
}
