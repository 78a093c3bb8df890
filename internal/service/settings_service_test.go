package service_test

import (
	"path/filepath"
	"testing"

	"dbai/internal/domain"
	"dbai/internal/service"
	"dbai/internal/storage"
)

func newSettings(t *testing.T) *service.SettingsService {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "app.db"), dir)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return service.NewSettingsService(storage.NewSettingsStore(db))
}

func TestSettings_ThemeDefaultsAndPersists(t *testing.T) {
	s := newSettings(t)

	if got := s.Theme(); got != service.ThemeDark {
		t.Fatalf("expected dark default, got %q", got)
	}
	if err := s.SetTheme(service.ThemeLight); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if got := s.Theme(); got != service.ThemeLight {
		t.Fatalf("expected light, got %q", got)
	}

	err := s.SetTheme("neon")
	if domain.KindOf(err) != domain.KindInvalidConfig {
		t.Fatalf("expected InvalidConfig, got %v", err)
	}
	if got := s.Theme(); got != service.ThemeLight {
		t.Fatalf("rejected theme must not be stored, got %q", got)
	}
}

func TestSettings_WindowSize(t *testing.T) {
	s := newSettings(t)

	if got := s.LoadWindowSize(); got.Width != 1400 || got.Height != 900 {
		t.Fatalf("expected 1400x900 default, got %+v", got)
	}
	if err := s.SaveWindowSize(1600, 1000); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := s.LoadWindowSize(); got.Width != 1600 || got.Height != 1000 {
		t.Fatalf("expected 1600x1000, got %+v", got)
	}

	// below minimum falls back per dimension
	if err := s.SaveWindowSize(800, 1000); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := s.LoadWindowSize(); got.Width != 1400 || got.Height != 1000 {
		t.Fatalf("expected 1400x1000, got %+v", got)
	}
}

func TestSettings_NilStore(t *testing.T) {
	s := service.NewSettingsService(nil)
	if s.Theme() != service.ThemeDark {
		t.Error("expected default theme")
	}
	if err := s.SaveWindowSize(1500, 900); err == nil {
		t.Error("expected error without a store")
	}
}
