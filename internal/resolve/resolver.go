// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package resolve

import (
	"context"

	"github.com/tomtom215/embedfix/internal/kvcache"
	"github.com/tomtom215/embedfix/internal/model"
	"github.com/tomtom215/embedfix/internal/singleflight"
)

// EmbedFetcher is the subset of the embed scraper the resolver depends on.
type EmbedFetcher interface {
	Fetch(ctx context.Context, shortCode string) (*model.Post, bool)
}

// GraphQLFetcher is the subset of the GraphQL scraper the resolver depends
// on; it may return a *RestrictedError in addition to (nil, nil) absence.
type GraphQLFetcher interface {
	Fetch(ctx context.Context, shortCode string) (*model.Post, error)
}

// Resolver orchestrates post resolution per spec.md §4.8: a post-cache
// lookup, then a singleflight-coalesced scraper chain falling back from
// embed HTML to GraphQL, persisting the winning Post.
type Resolver struct {
	cache   *kvcache.Cache
	embed   EmbedFetcher
	graphql GraphQLFetcher
	group   *singleflight.Group[string, *model.Post]
}

// New creates a Resolver. cache must be the post-cache instance.
func New(cache *kvcache.Cache, embed EmbedFetcher, graphql GraphQLFetcher) *Resolver {
	return &Resolver{
		cache:   cache,
		embed:   embed,
		graphql: graphql,
		group:   singleflight.NewGroup[string, *model.Post]("post_resolve"),
	}
}

// Resolve returns the Post for shortCode, consulting the cache first and
// falling back to the coalesced scraper chain. It returns ErrAbsent when
// no scraper produced a valid Post, and propagates *RestrictedError from
// the GraphQL fallback unchanged, per spec.md §4.8 step 3.
func (r *Resolver) Resolve(ctx context.Context, shortCode string) (*model.Post, error) {
	if cached, ok := r.cache.Get(ctx, shortCode); ok {
		post, err := model.UnmarshalPost(cached)
		if err == nil && post.Valid() {
			return post, nil
		}
	}

	return r.group.Do(ctx, shortCode, func(ctx context.Context) (*model.Post, error) {
		return r.resolveUncached(ctx, shortCode)
	})
}

// resolveUncached is the singleflight-owned body: §4.8's "_resolve".
func (r *Resolver) resolveUncached(ctx context.Context, shortCode string) (*model.Post, error) {
	post, ok := r.embed.Fetch(ctx, shortCode)
	if !ok || post.Blocked {
		gqlPost, err := r.graphql.Fetch(ctx, shortCode)
		if err != nil {
			return nil, err
		}
		if gqlPost != nil && gqlPost.Valid() {
			post = gqlPost
			ok = true
		}
	}

	if !ok || !post.Valid() {
		return nil, ErrAbsent
	}

	if data, err := post.Marshal(); err == nil {
		r.cache.Set(ctx, shortCode, data)
	}
	return post, nil
}
