package voicepref

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Service is the process-wide voice preference: one instance, loaded from the
// store on first use, broadcast to subscribers on change. When nothing has
// ever been chosen it resolves the system default remote voice, so every
// playback request always sees exactly one concrete backend+voice.
type Service struct {
	mu      sync.Mutex
	store   Store
	def     Preference
	current *Preference
	loaded  bool
	subs    map[int]func(Preference)
	nextSub int
}

func NewService(store Store, defaultRemoteVoiceID, defaultRemoteVoiceName string) *Service {
	return &Service{
		store: store,
		def: Preference{
			ID:            defaultRemoteVoiceID,
			DisplayName:   defaultRemoteVoiceName,
			Backend:       BackendRemote,
			RemoteVoiceID: defaultRemoteVoiceID,
		},
		subs: make(map[int]func(Preference)),
	}
}

// Current returns the resolved preference, loading persisted state on first
// call and falling back to the system default when nothing was ever chosen.
func (s *Service) Current(ctx context.Context) (Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return *s.current, nil
	}
	if !s.loaded {
		p, found, err := s.loadLocked(ctx)
		if err != nil {
			return Preference{}, err
		}
		s.loaded = true
		if found {
			s.current = &p
			return p, nil
		}
	}
	return s.def, nil
}

// Set validates, persists and broadcasts a new preference.
func (s *Service) Set(ctx context.Context, p Preference) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.persistLocked(ctx, p); err != nil {
		s.mu.Unlock()
		return err
	}
	cp := p
	s.current = &cp
	s.loaded = true
	subs := make([]func(Preference), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(p)
	}
	return nil
}

// Subscribe registers a change listener. The returned cancel removes it.
func (s *Service) Subscribe(fn func(Preference)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Service) Close() error {
	return s.store.Close()
}

func (s *Service) loadLocked(ctx context.Context) (Preference, bool, error) {
	id, okID, err := s.store.Get(ctx, keyVoiceID)
	if err != nil {
		return Preference{}, false, fmt.Errorf("load voice preference: %w", err)
	}
	if !okID || strings.TrimSpace(id) == "" {
		return Preference{}, false, nil
	}
	name, _, err := s.store.Get(ctx, keyVoiceName)
	if err != nil {
		return Preference{}, false, fmt.Errorf("load voice preference: %w", err)
	}
	rawType, _, err := s.store.Get(ctx, keyVoiceType)
	if err != nil {
		return Preference{}, false, fmt.Errorf("load voice preference: %w", err)
	}

	p := FromParts(id, name, rawType)
	if err := p.Validate(); err != nil {
		// A corrupt record behaves like no preference at all.
		return Preference{}, false, nil
	}
	return p, true, nil
}

func (s *Service) persistLocked(ctx context.Context, p Preference) error {
	if err := s.store.Set(ctx, keyVoiceID, p.ID); err != nil {
		return fmt.Errorf("persist voice preference: %w", err)
	}
	if err := s.store.Set(ctx, keyVoiceName, p.DisplayName); err != nil {
		return fmt.Errorf("persist voice preference: %w", err)
	}
	if err := s.store.Set(ctx, keyVoiceType, string(p.Backend)); err != nil {
		return fmt.Errorf("persist voice preference: %w", err)
	}
	return nil
}
