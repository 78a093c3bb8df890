package app

import (
	"path/filepath"
	"strings"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"dbai/internal/service"
)

// PickDatabaseFile opens a native file picker for selecting a database file.
func (a *App) PickDatabaseFile() (string, error) {
	path, err := wailsRuntime.OpenFileDialog(a.ctx, wailsRuntime.OpenDialogOptions{
		Title: "Select Database File",
		Filters: []wailsRuntime.FileFilter{
			{DisplayName: "SQLite Files", Pattern: "*.db;*.sqlite;*.sqlite3;*.s3db"},
			{DisplayName: "DuckDB Files", Pattern: "*.duckdb;*.ddb"},
			{DisplayName: "All Files", Pattern: "*.*"},
		},
	})
	return path, err
}

func (a *App) pickExportFile() (string, error) {
	path, err := wailsRuntime.SaveFileDialog(a.ctx, wailsRuntime.SaveDialogOptions{
		Title:           "Export Results",
		DefaultFilename: "results.csv",
		Filters: []wailsRuntime.FileFilter{
			{DisplayName: "CSV", Pattern: "*.csv"},
			{DisplayName: "JSON", Pattern: "*.json"},
		},
	})
	if err != nil || path == "" {
		return "", err
	}
	switch service.ExportFormat(strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")) {
	case service.ExportCSV, service.ExportJSON:
		return path, nil
	}
	return path + ".csv", nil
}

// ============================================================
// Settings
// ============================================================

func (a *App) GetTheme() string {
	if a.rt == nil {
		return string(service.ThemeDark)
	}
	return string(a.rt.Settings.Theme())
}

func (a *App) SetTheme(theme string) error {
	if a.rt == nil {
		return nil
	}
	return a.rt.Settings.SetTheme(service.Theme(theme))
}
