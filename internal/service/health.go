package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dbai/internal/dbclient"

	"github.com/robfig/cron/v3"
)

// ─────────────────────────────────────────────────────────────
// Health checks: periodic ping of connected sessions
// ─────────────────────────────────────────────────────────────

// HealthChecker pings every connected session whose conn implements
// dbclient.Pinger. A failed ping marks the session lost.
type HealthChecker struct {
	sessions *SessionRegistry
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	cronSched *cron.Cron
}

// NewHealthChecker creates a HealthChecker. Nothing runs until Start.
func NewHealthChecker(sessions *SessionRegistry, interval, timeout time.Duration, logger *slog.Logger) *HealthChecker {
	return &HealthChecker{
		sessions: sessions,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "health"),
	}
}

// Start schedules CheckNow every interval.
func (h *HealthChecker) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cronSched != nil {
		return nil
	}
	c := cron.New()
	spec := fmt.Sprintf("@every %s", h.interval)
	if _, err := c.AddFunc(spec, func() { h.CheckNow(context.Background()) }); err != nil {
		return fmt.Errorf("schedule health check %q: %w", spec, err)
	}
	c.Start()
	h.cronSched = c
	h.logger.Info("health checks scheduled", "interval", h.interval)
	return nil
}

// Stop cancels the schedule and waits for a running check, bounded by ctx.
func (h *HealthChecker) Stop(ctx context.Context) {
	h.mu.Lock()
	c := h.cronSched
	h.cronSched = nil
	h.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// CheckNow pings every connected session once and returns how many were
// marked lost.
func (h *HealthChecker) CheckNow(ctx context.Context) int {
	lost := 0
	for _, sess := range h.sessions.connected() {
		pinger, ok := sess.Conn.(dbclient.Pinger)
		if !ok {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := pinger.Ping(pctx)
		cancel()
		if err == nil {
			continue
		}
		if sess.Ctx.Err() != nil {
			// disconnected while pinging
			continue
		}
		h.logger.Warn("ping failed", "id", sess.ID, "error", err)
		h.sessions.markLost(sess.ID, sess.Generation, err)
		lost++
	}
	return lost
}
