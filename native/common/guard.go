package common

import (
	"errors"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is a mutable PauseView keyed by module name.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauseSet(paused ...string) *PauseSet {
	s := &PauseSet{paused: make(map[string]bool)}
	for _, m := range paused {
		s.paused[m] = true
	}
	return s
}

func (s *PauseSet) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module]
}

// Set toggles module and reports whether the value changed.
func (s *PauseSet) Set(module string, paused bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused[module] == paused {
		return false
	}
	if paused {
		s.paused[module] = true
	} else {
		delete(s.paused, module)
	}
	return true
}

// Paused lists every paused module.
func (s *PauseSet) Paused() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.paused))
	for m := range s.paused {
		out = append(out, m)
	}
	return out
}
