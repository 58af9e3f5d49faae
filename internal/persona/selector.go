package persona

import (
	"fmt"
	"sync"

	"github.com/soyeahso/colloquy/internal/config"
	"github.com/soyeahso/colloquy/internal/domain"
	"github.com/soyeahso/colloquy/internal/logging"
)

// Selector holds the mounted personalities and which one is active.
type Selector struct {
	mu     sync.RWMutex
	root   string
	refs   []string
	loaded []*domain.Personality // parallel to refs; nil when loading failed
	active int
	log    *logging.Logger
}

// NewSelector loads every personality listed in cfg from root. Personalities
// that fail to load are logged and cannot be activated.
func NewSelector(root string, cfg config.PersonalitiesConfig, log *logging.Logger) *Selector {
	s := &Selector{
		root:   root,
		refs:   append([]string(nil), cfg.List...),
		loaded: make([]*domain.Personality, len(cfg.List)),
		active: -1,
		log:    log.Sub("persona"),
	}

	for i, ref := range s.refs {
		p, err := Load(root, ref)
		if err != nil {
			s.log.Warn().Err(err).Str("ref", ref).Msg("personality not loaded")
			continue
		}
		s.loaded[i] = p
	}

	if err := s.Select(cfg.Active); err != nil {
		s.log.Warn().Err(err).Msg("no personality selected")
	}
	return s
}

// Active returns the selected personality, or false when none is selected.
func (s *Selector) Active() (*domain.Personality, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active < 0 {
		return nil, false
	}
	return s.loaded[s.active], true
}

// Select makes the personality at index active. -1 deselects. On error the
// previous selection is kept.
func (s *Selector) Select(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case index == -1:
		s.active = -1
		return nil
	case index < 0 || index >= len(s.refs):
		return fmt.Errorf("personality index %d out of range (0..%d)", index, len(s.refs)-1)
	case s.loaded[index] == nil:
		return fmt.Errorf("personality %q failed to load", s.refs[index])
	}

	s.active = index
	s.log.Info().Str("ref", s.refs[index]).Str("name", s.loaded[index].Name).Msg("personality selected")
	return nil
}

// List returns the loaded personalities in configuration order.
func (s *Selector) List() []*domain.Personality {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Personality, 0, len(s.loaded))
	for _, p := range s.loaded {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// ActiveIndex returns the index of the active personality, or -1.
func (s *Selector) ActiveIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}
