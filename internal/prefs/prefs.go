// Package prefs stores display preferences. Dark mode is off until the
// user turns it on.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Esemudje/portfolio-manager-team02/internal/store"
)

// DarkModeKey is the store key of the dark-mode flag.
const DarkModeKey = "darkMode"

// Preferences is the user's display configuration.
type Preferences struct {
	DarkMode bool `json:"darkMode"`
}

// Service caches preferences in memory and writes every change through.
type Service struct {
	mu    sync.RWMutex
	st    store.Store
	prefs Preferences
}

// Load reads persisted preferences. An absent or unreadable value yields
// the defaults.
func Load(ctx context.Context, st store.Store) *Service {
	s := &Service{st: st}
	var dark bool
	err := store.GetJSON(ctx, st, DarkModeKey, &dark)
	switch {
	case err == nil:
		s.prefs.DarkMode = dark
	case errors.Is(err, store.ErrNotFound):
	default:
		slog.Warn("ignoring unreadable preference", "key", DarkModeKey, "err", err)
	}
	return s
}

// Get returns the current preferences.
func (s *Service) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// SetDarkMode persists the flag. The in-memory value only changes once the
// write succeeds.
func (s *Service) SetDarkMode(ctx context.Context, on bool) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := store.PutJSON(ctx, s.st, DarkModeKey, on); err != nil {
		return s.prefs, fmt.Errorf("save dark mode: %w", err)
	}
	s.prefs.DarkMode = on
	return s.prefs, nil
}
