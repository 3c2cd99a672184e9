// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package singleflight coalesces concurrent calls sharing a key into a
// single underlying invocation, so a burst of requests resolving the same
// post never triggers a burst of duplicate upstream scrapes. This is a
// hand-rolled port of original_source/src/internal/singleflight.py's
// asyncio-based Singleflight rather than golang.org/x/sync/singleflight:
// the Python original also supports Forget, which cancels an in-flight
// call and removes it from the registry — a capability the stdlib-adjacent
// x/sync/singleflight package doesn't expose, and one spec.md's §4.3 and
// §9 call out explicitly (including the race-safe "only delete the map
// entry if it still points at the call we started" rule).
package singleflight

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/embedfix/internal/metrics"
)

// forgetTimeout bounds how long Forget waits for an in-flight call to
// observe its cancellation, mirroring the Python original's
// asyncio.wait_for(..., timeout=1.0).
const forgetTimeout = 1 * time.Second

// call represents an in-flight or completed invocation for one key.
type call[RT any] struct {
	wg     sync.WaitGroup
	val    RT
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

// Group coalesces calls to Do by key. Use NewGroup to construct one: the
// zero value's calls map is nil and the first Do would panic on it. name
// is used only to label metrics.
type Group[KT comparable, RT any] struct {
	name string

	mu    sync.Mutex
	calls map[KT]*call[RT]
}

// NewGroup creates a Group whose metrics are labeled with name (e.g.
// "post_resolve", "grid_compose").
func NewGroup[KT comparable, RT any](name string) *Group[KT, RT] {
	return &Group[KT, RT]{name: name, calls: make(map[KT]*call[RT])}
}

// Do executes fn for key, or waits on an already in-flight call for the
// same key and returns its result. ctx governs only the calling goroutine's
// wait, not the underlying call: a caller that leaves early (ctx canceled)
// does not cancel the call for other waiters, matching the original's
// fire-and-share semantics.
func (g *Group[KT, RT]) Do(ctx context.Context, key KT, fn func(context.Context) (RT, error)) (RT, error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		metrics.SingleflightCoalesced.WithLabelValues(g.name).Inc()
		return g.wait(ctx, c)
	}

	callCtx, cancel := context.WithCancel(detachDeadline(ctx))
	c := &call[RT]{cancel: cancel, done: make(chan struct{})}
	c.wg.Add(1)
	g.calls[key] = c
	g.mu.Unlock()

	metrics.SingleflightCalls.WithLabelValues(g.name).Inc()

	go func() {
		defer close(c.done)
		defer c.wg.Done()
		c.val, c.err = fn(callCtx)

		g.mu.Lock()
		// Only remove the entry if it still points at this call: a
		// Forget racing with natural completion may have already
		// replaced or removed it.
		if cur, ok := g.calls[key]; ok && cur == c {
			delete(g.calls, key)
		}
		g.mu.Unlock()
	}()

	return g.wait(ctx, c)
}

// wait blocks until c completes or ctx is canceled, whichever comes first.
func (g *Group[KT, RT]) wait(ctx context.Context, c *call[RT]) (RT, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero RT
		return zero, ctx.Err()
	}
}

// Forget cancels the in-flight call for key, if any, and removes it from
// the registry so the next Do starts a fresh call rather than joining the
// canceled one. It waits up to forgetTimeout for the call to observe
// cancellation before returning, mirroring the Python original's bounded
// wait; Forget on an absent or already-completed key is a no-op.
func (g *Group[KT, RT]) Forget(key KT) {
	g.mu.Lock()
	c, ok := g.calls[key]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(g.calls, key)
	g.mu.Unlock()

	c.cancel()

	select {
	case <-c.done:
	case <-time.After(forgetTimeout):
	}
}

// detachDeadline strips any deadline/cancellation from ctx while preserving
// its values, so one caller's timeout can't cut short a call shared by
// other waiters. It is a thin wrapper over context.WithoutCancel, kept as
// a named helper so the intent reads at the call site.
func detachDeadline(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
