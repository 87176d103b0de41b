package voicepref

import (
	"context"
	"testing"
)

func TestCurrentResolvesDefaultWhenNothingPersisted(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemoryStore(), "voice-default", "Sarah")

	p, err := svc.Current(ctx)
	if err != nil {
		t.Fatalf("Current() unexpected error = %v", err)
	}
	if p.Backend != BackendRemote {
		t.Fatalf("default backend = %q, want remote", p.Backend)
	}
	if p.RemoteVoiceID != "voice-default" {
		t.Fatalf("default remote voice = %q, want voice-default", p.RemoteVoiceID)
	}
}

func TestSetPersistsAndSurvivesReload(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	svc := NewService(store, "voice-default", "Sarah")

	chosen := Preference{
		ID:            "voice-lily",
		DisplayName:   "Lily",
		Backend:       BackendRemote,
		RemoteVoiceID: "voice-lily",
	}
	if err := svc.Set(ctx, chosen); err != nil {
		t.Fatalf("Set() unexpected error = %v", err)
	}

	// A fresh service over the same store simulates the next process start.
	reloaded := NewService(store, "voice-default", "Sarah")
	p, err := reloaded.Current(ctx)
	if err != nil {
		t.Fatalf("Current() unexpected error = %v", err)
	}
	if p.ID != "voice-lily" || p.RemoteVoiceID != "voice-lily" {
		t.Fatalf("reloaded preference = %+v, want persisted voice-lily", p)
	}
}

func TestSetRejectsAmbiguousPreference(t *testing.T) {
	svc := NewService(NewInMemoryStore(), "voice-default", "Sarah")

	bad := Preference{ID: "x", Backend: BackendLocal} // local without a voice name
	if err := svc.Set(context.Background(), bad); err == nil {
		t.Fatalf("Set() should reject a local preference without a local voice")
	}
	bad = Preference{ID: "x", Backend: "cloud"}
	if err := svc.Set(context.Background(), bad); err == nil {
		t.Fatalf("Set() should reject an unknown backend tag")
	}
}

func TestSubscribersSeeChanges(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemoryStore(), "voice-default", "Sarah")

	var seen []Preference
	cancel := svc.Subscribe(func(p Preference) { seen = append(seen, p) })

	local := Preference{ID: "Samantha", DisplayName: "Samantha", Backend: BackendLocal, LocalVoice: "Samantha"}
	if err := svc.Set(ctx, local); err != nil {
		t.Fatalf("Set() unexpected error = %v", err)
	}
	if len(seen) != 1 || seen[0].LocalVoice != "Samantha" {
		t.Fatalf("subscriber saw %+v, want one local Samantha preference", seen)
	}

	cancel()
	remote := Preference{ID: "v2", DisplayName: "V2", Backend: BackendRemote, RemoteVoiceID: "v2"}
	if err := svc.Set(ctx, remote); err != nil {
		t.Fatalf("Set() unexpected error = %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("cancelled subscriber must not receive further changes")
	}
}

func TestLoadAcceptsLegacyTypeNames(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	// Records written by the original web client used system/elevenlabs tags.
	_ = store.Set(ctx, keyVoiceID, "Google US English")
	_ = store.Set(ctx, keyVoiceName, "Google US English")
	_ = store.Set(ctx, keyVoiceType, "system")

	svc := NewService(store, "voice-default", "Sarah")
	p, err := svc.Current(ctx)
	if err != nil {
		t.Fatalf("Current() unexpected error = %v", err)
	}
	if p.Backend != BackendLocal || p.LocalVoice != "Google US English" {
		t.Fatalf("legacy system record = %+v, want local backend", p)
	}
}

func TestCorruptRecordFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	_ = store.Set(ctx, keyVoiceID, "mystery")
	_ = store.Set(ctx, keyVoiceType, "not-a-backend")

	svc := NewService(store, "voice-default", "Sarah")
	p, err := svc.Current(ctx)
	if err != nil {
		t.Fatalf("Current() unexpected error = %v", err)
	}
	if p.RemoteVoiceID != "voice-default" {
		t.Fatalf("corrupt record should resolve the default, got %+v", p)
	}
}
