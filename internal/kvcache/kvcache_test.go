// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package kvcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := Open("test", t.TempDir(), time.Hour)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "k1", []byte("v1"))

	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, "v1", string(got))
}

func TestGetMissingKeyIsAbsent(t *testing.T) {
	t.Parallel()

	c, err := Open("test", t.TempDir(), time.Hour)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get(context.Background(), "nope")
	assert.False(t, ok)
}

func TestExpiredEntryIsAbsentAndDeleted(t *testing.T) {
	t.Parallel()

	c, err := Open("test", t.TempDir(), time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "k1", []byte("v1"))
	time.Sleep(10 * time.Millisecond)

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEvictRemovesExpiredEntriesOnly(t *testing.T) {
	t.Parallel()

	c, err := Open("test", t.TempDir(), time.Hour)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "keep", []byte("v"))

	// Manually insert an already-expired entry by opening with a
	// negative-effective TTL cache pointed at the same value, simulating
	// what time passing would do without sleeping an hour in a test.
	expired, err := Open("test-expired", t.TempDir(), -time.Hour)
	require.NoError(t, err)
	defer expired.Close()
	expired.Set(ctx, "gone", []byte("v"))
	require.NoError(t, expired.evict())

	n, err := expired.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// The unrelated cache's live entry survives its own evict() pass.
	require.NoError(t, c.evict())
	got, ok := c.Get(ctx, "keep")
	assert.True(t, ok)
	assert.Equal(t, "v", string(got))
}

func TestOverwriteUpdatesValue(t *testing.T) {
	t.Parallel()

	c, err := Open("test", t.TempDir(), time.Hour)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "k", []byte("first"))
	c.Set(ctx, "k", []byte("second"))

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "second", string(got))
}

// TestOverwriteSurvivesEvictAfterExpiry reproduces the lifecycle spec.md
// §3/§8 requires: a key expires, its lazy-delete fires on Get, and a
// fresh Set with a new TTL must not be wiped out by the next evict()
// sweep finding the *first* Set's now-past-due index entry still
// pointing at this key's data entry.
func TestOverwriteSurvivesEvictAfterExpiry(t *testing.T) {
	t.Parallel()

	c, err := Open("test", t.TempDir(), 5*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "k", []byte("stale"))
	time.Sleep(10 * time.Millisecond)

	// Lazily expires and deletes the first entry.
	_, ok := c.Get(ctx, "k")
	require.False(t, ok)

	c.Set(ctx, "k", []byte("fresh"))

	require.NoError(t, c.evict())

	got, ok := c.Get(ctx, "k")
	require.True(t, ok, "evict() must not delete a freshly Set, non-expired entry")
	assert.Equal(t, "fresh", string(got))
}

// TestReSetBeforeExpiryLeavesNoStaleIndexEntry covers the other path into
// the same hazard: overwriting a key before its first TTL has elapsed
// must not leave the original Set's index entry behind for a later
// evict() to misfire on once it does elapse.
func TestReSetBeforeExpiryLeavesNoStaleIndexEntry(t *testing.T) {
	t.Parallel()

	c, err := Open("test", t.TempDir(), 5*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "k", []byte("first"))
	c.Set(ctx, "k", []byte("second"))

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.evict())

	// The second Set's own TTL has also elapsed by now, so it should be
	// gone too — but via its own index entry, not a stale leftover from
	// the first Set that would have fired earlier and deleted it too
	// soon.
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
