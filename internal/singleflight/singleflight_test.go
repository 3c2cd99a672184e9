// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package singleflight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoCoalescesConcurrentCalls(t *testing.T) {
	t.Parallel()

	g := NewGroup[string, int]("test_coalesce")

	var calls int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = g.Do(context.Background(), "shared-key", fn)
		}(i)
	}

	time.Sleep(50 * time.Millisecond) // let all goroutines enter Do
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "fn should run exactly once for concurrent callers")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 42, results[i])
	}
}

func TestDoRunsAgainAfterCompletion(t *testing.T) {
	t.Parallel()

	g := NewGroup[string, int]("test_sequential")
	var calls int32
	fn := func(ctx context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}

	v1, err := g.Do(context.Background(), "k", fn)
	require.NoError(t, err)
	v2, err := g.Do(context.Background(), "k", fn)
	require.NoError(t, err)

	assert.Equal(t, 1, v1)
	assert.Equal(t, 2, v2)
}

func TestForgetCancelsInFlightCall(t *testing.T) {
	t.Parallel()

	g := NewGroup[string, int]("test_forget")
	started := make(chan struct{})
	fn := func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = g.Do(context.Background(), "k", fn)
	}()

	<-started
	g.Forget("k")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after Forget canceled the in-flight call")
	}
}

func TestForgetOnAbsentKeyIsNoop(t *testing.T) {
	t.Parallel()
	g := NewGroup[string, int]("test_forget_absent")
	g.Forget("never-started")
}
