// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package shareresolve resolves a share code (one beginning with "B" or
// "_") to the canonical short-code it redirects to, per spec.md §4.5. It
// is grounded directly on original_source/src/scrapers/share.py: a
// shareid-cache check, then a redirect-disabled HEAD request with a fixed
// timeout, a "/login" check on the Location header, and a final-segment
// parse of the resolved path.
package shareresolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomtom215/embedfix/internal/httpfetch"
	"github.com/tomtom215/embedfix/internal/kvcache"
	"github.com/tomtom215/embedfix/internal/logging"
)

// Resolver resolves share codes to canonical short-codes.
type Resolver struct {
	fetcher *httpfetch.Fetcher
	cache   *kvcache.Cache
	baseURL string // e.g. "https://www.instagram.com"
}

// New creates a Resolver using fetcher for outbound calls and cache as the
// shareid-cache instance.
func New(fetcher *httpfetch.Fetcher, cache *kvcache.Cache, baseURL string) *Resolver {
	return &Resolver{fetcher: fetcher, cache: cache, baseURL: strings.TrimRight(baseURL, "/")}
}

// Resolve returns the canonical short-code for shareCode, or ("", false)
// if the upstream requires login to view it (an absent result per §4.5).
func (r *Resolver) Resolve(ctx context.Context, shareCode string) (string, bool) {
	if cached, ok := r.cache.Get(ctx, shareCode); ok {
		return string(cached), true
	}

	location, err := r.fetcher.HeadRedirect(ctx, fmt.Sprintf("%s/share/reel/%s/", r.baseURL, shareCode))
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("share_code", shareCode).Msg("shareresolve: head request failed")
		return "", false
	}

	if location == "" || strings.Contains(location, "/login") {
		return "", false
	}

	code := finalPathSegment(location)
	if code == "" {
		return "", false
	}

	r.cache.Set(ctx, shareCode, []byte(code))
	return code, true
}

// finalPathSegment extracts the last non-empty "/"-delimited segment of a
// URL or path, e.g. "https://site/p/XYZ/" -> "XYZ".
func finalPathSegment(location string) string {
	trimmed := strings.TrimRight(location, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx == -1 {
		return trimmed
	}
	return trimmed[idx+1:]
}
