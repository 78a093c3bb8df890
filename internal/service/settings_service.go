package service

import (
	"fmt"
	"strconv"

	"dbai/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Settings: theme and window size
// ─────────────────────────────────────────────────────────────
//
// Stored in SQLite as key-value rows in app_settings.

// KeyValueStore is the settings persistence the service needs.
type KeyValueStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Theme is the UI colour scheme.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// WindowSize holds the saved window dimensions.
type WindowSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

const (
	settingTheme        = "theme"
	settingWindowWidth  = "window_width"
	settingWindowHeight = "window_height"

	defaultTheme        = ThemeDark
	defaultWindowWidth  = 1400
	defaultWindowHeight = 900
	minWindowWidth      = 1200
	minWindowHeight     = 800
)

// SettingsService persists UI preferences between sessions.
type SettingsService struct {
	store KeyValueStore
}

// NewSettingsService creates a SettingsService. A nil store yields defaults
// and rejects writes.
func NewSettingsService(store KeyValueStore) *SettingsService {
	return &SettingsService{store: store}
}

// Theme returns the saved theme, or dark.
func (s *SettingsService) Theme() Theme {
	if s.store == nil {
		return defaultTheme
	}
	v, ok, err := s.store.Get(settingTheme)
	if err != nil || !ok {
		return defaultTheme
	}
	switch t := Theme(v); t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return t
	}
	return defaultTheme
}

// SetTheme saves t.
func (s *SettingsService) SetTheme(t Theme) error {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
	default:
		return domain.Errorf(domain.KindInvalidConfig, "unknown theme %q", t)
	}
	if s.store == nil {
		return fmt.Errorf("settings: no store")
	}
	return s.store.Set(settingTheme, string(t))
}

// LoadWindowSize returns the saved window dimensions, or defaults when
// missing or below the minimum size.
func (s *SettingsService) LoadWindowSize() WindowSize {
	size := WindowSize{Width: defaultWindowWidth, Height: defaultWindowHeight}
	if s.store == nil {
		return size
	}
	if w, ok := s.intSetting(settingWindowWidth); ok && w >= minWindowWidth {
		size.Width = w
	}
	if h, ok := s.intSetting(settingWindowHeight); ok && h >= minWindowHeight {
		size.Height = h
	}
	return size
}

func (s *SettingsService) intSetting(key string) (int, bool) {
	v, ok, err := s.store.Get(key)
	if err != nil || !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

// SaveWindowSize persists the current window dimensions.
func (s *SettingsService) SaveWindowSize(width, height int) error {
	if s.store == nil {
		return fmt.Errorf("settings: no store")
	}
	if err := s.store.Set(settingWindowWidth, strconv.Itoa(width)); err != nil {
		return fmt.Errorf("save window width: %w", err)
	}
	if err := s.store.Set(settingWindowHeight, strconv.Itoa(height)); err != nil {
		return fmt.Errorf("save window height: %w", err)
	}
	return nil
}
