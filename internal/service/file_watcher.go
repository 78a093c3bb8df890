package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dbai/internal/domain"

	"github.com/fsnotify/fsnotify"
)

// ─────────────────────────────────────────────────────────────
// File watcher: embedded database files of connected sessions
// ─────────────────────────────────────────────────────────────

const watchDebounce = 500 * time.Millisecond

// sidecar suffixes written next to embedded database files
var sidecarSuffixes = []string{"-wal", "-journal", "-shm", ".wal"}

// FileWatcher invalidates the schema of an embedded-file session when its
// file changes and marks the session lost when the file disappears.
type FileWatcher struct {
	sessions *SessionRegistry
	schema   *SchemaCache
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	done     chan struct{}

	mu     sync.Mutex
	paths  map[string]watchEntry // abs file path -> owning session
	dirs   map[string]int        // watched dir -> file count
	timers map[string]*time.Timer
}

type watchEntry struct {
	id  string
	gen uint64
}

// NewFileWatcher starts the watch loop. Sessions are added with Watch and
// dropped when their generation is no longer connected.
func NewFileWatcher(sessions *SessionRegistry, schema *SchemaCache, logger *slog.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	fw := &FileWatcher{
		sessions: sessions,
		schema:   schema,
		logger:   logger.With("component", "watcher"),
		watcher:  w,
		cancel:   cancel,
		done:     make(chan struct{}),
		paths:    make(map[string]watchEntry),
		dirs:     make(map[string]int),
		timers:   make(map[string]*time.Timer),
	}
	sessions.OnLeaveConnected(fw.dropStale)
	go fw.loop(ctx)
	return fw, nil
}

// Watch starts watching the database file of cfg for session generation gen.
// Network configs are ignored, and so is a generation that already left
// connected.
func (fw *FileWatcher) Watch(cfg *domain.ConnectionConfig, gen uint64) error {
	if cfg.Kind.IsNetwork() || cfg.Database == ":memory:" {
		return nil
	}
	abs, err := filepath.Abs(cfg.Database)
	if err != nil {
		return fmt.Errorf("watch %q: %w", cfg.Database, err)
	}
	dir := filepath.Dir(abs)

	// the generation is read under fw.mu so a leave that follows always
	// finds the entry
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if cur, ok := fw.sessions.generation(cfg.ID); !ok || cur != gen {
		fw.logger.Debug("session moved on before watch", "id", cfg.ID, "generation", gen)
		return nil
	}
	if _, ok := fw.paths[abs]; ok {
		fw.paths[abs] = watchEntry{id: cfg.ID, gen: gen}
		return nil
	}
	if fw.dirs[dir] == 0 {
		if err := fw.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch dir %q: %w", dir, err)
		}
	}
	fw.dirs[dir]++
	fw.paths[abs] = watchEntry{id: cfg.ID, gen: gen}
	fw.logger.Debug("watching", "id", cfg.ID, "path", abs, "generation", gen)
	return nil
}

// dropStale stops watching the files of id whose generation is no longer
// the connected one. A late leave notice keeps a newer session's entry.
func (fw *FileWatcher) dropStale(id string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	cur, connected := fw.sessions.generation(id)
	for path, e := range fw.paths {
		if e.id == id && (!connected || e.gen != cur) {
			fw.removeLocked(path)
		}
	}
}

func (fw *FileWatcher) removeLocked(path string) {
	delete(fw.paths, path)
	if t, ok := fw.timers[path]; ok {
		t.Stop()
		delete(fw.timers, path)
	}
	dir := filepath.Dir(path)
	fw.dirs[dir]--
	if fw.dirs[dir] <= 0 {
		delete(fw.dirs, dir)
		if err := fw.watcher.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			fw.logger.Debug("unwatch dir failed", "dir", dir, "error", err)
		}
	}
}

// Watched reports how many files are being watched.
func (fw *FileWatcher) Watched() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.paths)
}

func basePath(name string) string {
	for _, suf := range sidecarSuffixes {
		if strings.HasSuffix(name, suf) {
			return strings.TrimSuffix(name, suf)
		}
	}
	return name
}

func (fw *FileWatcher) loop(ctx context.Context) {
	defer close(fw.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handle(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("watch error", "error", err)
		}
	}
}

func (fw *FileWatcher) handle(event fsnotify.Event) {
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	removed := event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
	path := abs
	if !removed {
		path = basePath(abs)
	}

	fw.mu.Lock()
	entry, ok := fw.paths[path]
	id := entry.id
	if !ok {
		fw.mu.Unlock()
		return
	}
	if removed {
		fw.mu.Unlock()
		fw.logger.Warn("database file removed", "id", id, "path", path)
		fw.sessions.MarkLost(id, domain.Errorf(domain.KindConnectionLost, "database file %s removed", path))
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		fw.mu.Unlock()
		return
	}
	if t, exists := fw.timers[path]; exists {
		t.Stop()
	}
	fw.timers[path] = time.AfterFunc(watchDebounce, func() {
		fw.logger.Debug("database file changed", "id", id, "path", path)
		fw.schema.Invalidate(id)
	})
	fw.mu.Unlock()
}

// Close stops the watch loop.
func (fw *FileWatcher) Close() error {
	fw.cancel()
	err := fw.watcher.Close()
	<-fw.done
	fw.mu.Lock()
	for _, t := range fw.timers {
		t.Stop()
	}
	fw.mu.Unlock()
	return err
}
