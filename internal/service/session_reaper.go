package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"
)

// SessionReaperOptions groups dependencies for SessionReaper.
type SessionReaperOptions struct {
	Manager  *SessionManager // Required
	Interval time.Duration   // Required: how often idle sessions are collected
	Logger   *slog.Logger    // Optional
}

// SessionReaper periodically disposes idle browser sessions.
type SessionReaper struct {
	manager  *SessionManager
	interval time.Duration
	logger   *slog.Logger
}

// NewSessionReaper constructs a SessionReaper.
func NewSessionReaper(opts SessionReaperOptions) (*SessionReaper, error) {
	if opts.Manager == nil {
		return nil, errors.New("session manager is required")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("reap interval must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionReaper{
		manager:  opts.Manager,
		interval: opts.Interval,
		logger:   logger.With("component", "session_reaper"),
	}, nil
}

// Run collects idle sessions at the configured interval until ctx is cancelled.
// Returns nil on graceful shutdown.
func (r *SessionReaper) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting session reaper", "interval", r.interval)

	// Spread replicas that start together.
	r.waitWithJitter(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "session reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if n := r.manager.Reap(ctx); n > 0 {
				r.logger.InfoContext(ctx, "reaped idle sessions", "count", n, "live", r.manager.Len())
			}
		}
	}
}

// waitWithJitter delays up to 10% of the interval.
func (r *SessionReaper) waitWithJitter(ctx context.Context) {
	maxJitter := int64(r.interval / 10)
	if maxJitter <= 0 {
		return
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		r.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}
