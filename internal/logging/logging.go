// Package logging builds the slog loggers used across dbai. Every handler it
// returns masks credentials in messages and string attributes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/pterm/pterm"
)

// Formats accepted by New.
const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// Options selects the handler.
type Options struct {
	Level  string
	Format string
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	level := ParseLevel(opts.Level)

	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case FormatJSON:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case FormatPretty:
		pl := pterm.DefaultLogger.WithWriter(w).WithLevel(ptermLevel(level))
		h = pterm.NewSlogHandler(pl)
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(&maskHandler{next: h})
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ptermLevel(l slog.Level) pterm.LogLevel {
	switch {
	case l <= slog.LevelDebug:
		return pterm.LogLevelDebug
	case l <= slog.LevelInfo:
		return pterm.LogLevelInfo
	case l <= slog.LevelWarn:
		return pterm.LogLevelWarn
	default:
		return pterm.LogLevelError
	}
}

// maskHandler runs Mask over the record message and string attributes.
type maskHandler struct {
	next slog.Handler
}

func (h *maskHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *maskHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, Mask(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(maskAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *maskHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = maskAttr(a)
	}
	return &maskHandler{next: h.next.WithAttrs(masked)}
}

func (h *maskHandler) WithGroup(name string) slog.Handler {
	return &maskHandler{next: h.next.WithGroup(name)}
}

func maskAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Mask(v.String()))
	case slog.KindGroup:
		group := v.Group()
		masked := make([]any, len(group))
		for i, g := range group {
			masked[i] = maskAttr(g)
		}
		return slog.Group(a.Key, masked...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, Mask(err.Error()))
		}
	}
	return a
}
