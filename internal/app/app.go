package app

import (
	"context"
	"fmt"
	"time"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"dbai/internal/service"
)

// App is the main Wails application struct.
// All exported methods are available as Wails bindings.
type App struct {
	ctx        context.Context
	configPath string
	rt         *Runtime
}

// New creates a new App. configPath may be empty.
func New(configPath string) *App {
	return &App{configPath: configPath}
}

// Startup is called when the app starts.
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx

	rt, err := Open(Options{ConfigPath: a.configPath, Emitter: a})
	if err != nil {
		wailsRuntime.LogFatalf(ctx, "Failed to start: %v", err)
		return
	}
	a.rt = rt
	if err := rt.Database.Start(); err != nil {
		rt.Logger.Error("start health checks", "error", err)
	}

	size := rt.Settings.LoadWindowSize()
	wailsRuntime.WindowSetSize(ctx, size.Width, size.Height)
}

// Shutdown is called when the app is closing.
func (a *App) Shutdown(ctx context.Context) {
	if a.rt == nil {
		return
	}
	if w, h := wailsRuntime.WindowGetSize(a.ctx); w > 0 && h > 0 {
		if err := a.rt.Settings.SaveWindowSize(w, h); err != nil {
			a.rt.Logger.Warn("save window size", "error", err)
		}
	}
	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.rt.Close(closeCtx); err != nil {
		wailsRuntime.LogErrorf(ctx, "shutdown: %v", err)
	}
}

// Emit forwards core events to the frontend.
func (a *App) Emit(_ context.Context, event string, data any) {
	if a.ctx == nil {
		return
	}
	wailsRuntime.EventsEmit(a.ctx, event, data)
}

var _ service.EventEmitter = (*App)(nil)

func (a *App) db() (*service.DatabaseService, error) {
	if a.rt == nil {
		return nil, fmt.Errorf("app is not started")
	}
	return a.rt.Database, nil
}
