// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package supervisor runs embedfix's long-running background services
// (presently the grid directory size sweep, spec.md §5) under a
// github.com/thejerf/suture/v4 supervisor, the same restart-on-panic
// supervision the teacher's internal/supervisor package wraps its own
// background services in. This is a single flat supervisor rather than
// the teacher's three-layer tree: embedfix has one background service
// class to supervise, not the teacher's data/messaging/api split, so the
// extra tree layers would have no second service to isolate failures
// from.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Config mirrors the teacher's TreeConfig fields that are still
// meaningful for a single flat supervisor.
type Config struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64
	// FailureDecay is the rate at which failures decay, in seconds.
	FailureDecay float64
	// FailureBackoff is how long the supervisor waits once the threshold
	// is exceeded before retrying.
	FailureBackoff time.Duration
	// ShutdownTimeout bounds how long Serve waits for a service to stop
	// once its context is canceled.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the same defaults the teacher's
// DefaultTreeConfig documents as matching suture's own built-in
// defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Supervisor wraps a suture.Supervisor, restarting any added Service
// that panics or returns an error instead of letting one bad background
// tick take the whole process down.
type Supervisor struct {
	root *suture.Supervisor
}

// New creates a Supervisor logging service lifecycle events through
// logger via sutureslog.
func New(logger *slog.Logger, cfg Config) *Supervisor {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5.0
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30.0
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logger}
	root := suture.New("embedfix", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	})
	return &Supervisor{root: root}
}

// Add registers svc with the supervisor; svc is (re)started per suture's
// failure-threshold/backoff policy whenever it returns or panics.
func (s *Supervisor) Add(svc suture.Service) suture.ServiceToken {
	return s.root.Add(svc)
}

// Serve runs every added service until ctx is canceled.
func (s *Supervisor) Serve(ctx context.Context) error {
	return s.root.Serve(ctx)
}
