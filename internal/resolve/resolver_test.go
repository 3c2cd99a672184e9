// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package resolve

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/embedfix/internal/kvcache"
	"github.com/tomtom215/embedfix/internal/model"
)

type fakeEmbed struct {
	calls int32
	post  *model.Post
	ok    bool
}

func (f *fakeEmbed) Fetch(ctx context.Context, shortCode string) (*model.Post, bool) {
	atomic.AddInt32(&f.calls, 1)
	return f.post, f.ok
}

type fakeGraphQL struct {
	calls int32
	post  *model.Post
	err   error
}

func (f *fakeGraphQL) Fetch(ctx context.Context, shortCode string) (*model.Post, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.post, f.err
}

func newTestCache(t *testing.T) *kvcache.Cache {
	t.Helper()
	c, err := kvcache.Open("test-post", t.TempDir(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestResolveReturnsEmbedPostWhenNotBlocked(t *testing.T) {
	t.Parallel()

	post := &model.Post{PostID: "ABC", Media: []model.Media{{URL: "https://x/1.jpg"}}}
	embed := &fakeEmbed{post: post, ok: true}
	gql := &fakeGraphQL{}

	r := New(newTestCache(t), embed, gql)
	got, err := r.Resolve(context.Background(), "ABC")
	require.NoError(t, err)
	assert.Equal(t, post, got)
	assert.EqualValues(t, 0, gql.calls, "graphql fallback should not run when embed succeeds unblocked")
}

func TestResolveFallsBackToGraphQLWhenBlocked(t *testing.T) {
	t.Parallel()

	blocked := &model.Post{PostID: "ABC", Media: []model.Media{{URL: "https://x/1.jpg"}}, Blocked: true}
	fallback := &model.Post{PostID: "ABC", Media: []model.Media{{URL: "https://x/2.jpg"}}}

	embed := &fakeEmbed{post: blocked, ok: true}
	gql := &fakeGraphQL{post: fallback}

	r := New(newTestCache(t), embed, gql)
	got, err := r.Resolve(context.Background(), "ABC")
	require.NoError(t, err)
	assert.Equal(t, fallback, got)
}

func TestResolveKeepsBlockedPostWhenGraphQLYieldsNothing(t *testing.T) {
	t.Parallel()

	blocked := &model.Post{PostID: "ABC", Media: []model.Media{{URL: "https://x/1.jpg"}}, Blocked: true}

	embed := &fakeEmbed{post: blocked, ok: true}
	gql := &fakeGraphQL{post: nil, err: nil}

	r := New(newTestCache(t), embed, gql)
	got, err := r.Resolve(context.Background(), "ABC")
	require.NoError(t, err)
	assert.Equal(t, blocked, got)
}

func TestResolvePropagatesRestrictedError(t *testing.T) {
	t.Parallel()

	embed := &fakeEmbed{post: nil, ok: false}
	gql := &fakeGraphQL{err: &RestrictedError{Reason: "this content isn't available"}}

	r := New(newTestCache(t), embed, gql)
	_, err := r.Resolve(context.Background(), "ABC")
	require.Error(t, err)

	restricted, ok := AsRestricted(err)
	require.True(t, ok)
	assert.Equal(t, "this content isn't available", restricted.Reason)
}

func TestResolveReturnsAbsentWhenNothingProducesAPost(t *testing.T) {
	t.Parallel()

	embed := &fakeEmbed{post: nil, ok: false}
	gql := &fakeGraphQL{post: nil, err: nil}

	r := New(newTestCache(t), embed, gql)
	_, err := r.Resolve(context.Background(), "ABC")
	require.Error(t, err)
	assert.True(t, IsAbsent(err))
}

func TestResolveUsesCacheOnSecondCall(t *testing.T) {
	t.Parallel()

	post := &model.Post{PostID: "ABC", Media: []model.Media{{URL: "https://x/1.jpg"}}}
	embed := &fakeEmbed{post: post, ok: true}
	gql := &fakeGraphQL{}

	r := New(newTestCache(t), embed, gql)

	_, err := r.Resolve(context.Background(), "ABC")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "ABC")
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&embed.calls), "second resolve should hit the cache, not the scraper")
}

func TestIsAbsentFalseForOtherErrors(t *testing.T) {
	t.Parallel()
	assert.False(t, IsAbsent(errors.New("some other failure")))
}

func TestAsRestrictedFalseForOtherErrors(t *testing.T) {
	t.Parallel()
	_, ok := AsRestricted(errors.New("some other failure"))
	assert.False(t, ok)
}
