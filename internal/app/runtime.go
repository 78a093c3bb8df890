package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"dbai/internal/config"
	"dbai/internal/dbclient"
	"dbai/internal/logging"
	"dbai/internal/secret"
	"dbai/internal/service"
	"dbai/internal/storage"
)

// Runtime is the headless core shared by the desktop shell, the CLI and the
// MCP server: config, logger, app database and the database service.
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	Database *service.DatabaseService
	Settings *service.SettingsService

	db      *storage.DB
	logFile *os.File
}

// Options configures Open.
type Options struct {
	ConfigPath string
	// LogOutput receives logs. Nil means <dataDir>/dbai.log.
	LogOutput io.Writer
	LogFormat string // overrides log.format when set
	LogLevel  string // overrides log.level when set
	Emitter   service.EventEmitter
}

// Open loads config, opens storage and the secret backend, and builds the
// database service. Close releases everything.
func Open(opts Options) (*Runtime, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	out := opts.LogOutput
	var logFile *os.File
	if out == nil {
		logFile, err = os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = logFile
	}
	format := cfg.Log.Format
	if opts.LogFormat != "" {
		format = opts.LogFormat
	}
	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger := logging.New(out, logging.Options{Level: level, Format: format})

	r := &Runtime{Config: cfg, Logger: logger, logFile: logFile}
	if r.db, err = storage.New(cfg.DBPath(), cfg.DataDir); err != nil {
		r.closeLog()
		return nil, fmt.Errorf("open app database: %w", err)
	}
	secrets, err := secret.Open(cfg.Secrets)
	if err != nil {
		r.db.Close()
		r.closeLog()
		return nil, err
	}

	r.Database, err = service.NewDatabaseService(service.Deps{
		Config:       cfg,
		Connections:  storage.NewDBConnectionStore(r.db),
		History:      storage.NewQueryHistoryStore(r.db),
		SavedQueries: storage.NewSavedQueryStore(r.db),
		Secrets:      secrets,
		Adapters:     dbclient.DefaultRegistry(logger),
		Emitter:      opts.Emitter,
		Logger:       logger,
	})
	if err != nil {
		r.db.Close()
		r.closeLog()
		return nil, err
	}
	r.Settings = service.NewSettingsService(storage.NewSettingsStore(r.db))

	logger.Info("runtime ready", "data_dir", cfg.DataDir, "secrets", cfg.Secrets.Backend)
	return r, nil
}

// Close disconnects every session and closes the app database.
func (r *Runtime) Close(ctx context.Context) error {
	err := r.Database.Close(ctx)
	if cerr := r.db.Close(); err == nil {
		err = cerr
	}
	r.closeLog()
	return err
}

func (r *Runtime) closeLog() {
	if r.logFile != nil {
		r.logFile.Close()
	}
}
