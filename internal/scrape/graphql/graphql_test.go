// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package graphql

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/embedfix/internal/httpfetch"
	"github.com/tomtom215/embedfix/internal/resolve"
)

const mediaJSON = `{"data":{"xdt_shortcode_media":{
	"__typename":"XDTGraphImage",
	"display_url":"https://cdn.example/img.jpg",
	"dimensions":{"width":1080,"height":1080},
	"owner":{"username":"dana","full_name":"Dana D","profile_pic_url":"https://cdn.example/avatar.jpg"},
	"edge_media_to_caption":{"edges":[{"node":{"text":"caption text"}}]}
}}}`

func TestFetchExtractsPostFromGraphQLResponse(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql/query", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(mediaJSON))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher, err := httpfetch.New(httpfetch.Options{})
	require.NoError(t, err)

	s := New(fetcher, srv.URL)
	post, err := s.Fetch(context.Background(), "ABC")
	require.NoError(t, err)
	require.Len(t, post.Media, 1)
	assert.Equal(t, "https://cdn.example/img.jpg", post.Media[0].URL)
	assert.Equal(t, "dana", post.Username)
	assert.Equal(t, "caption text", post.Caption)
}

func TestFetchReturnsRestrictedWhenMediaAbsent(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql/query", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	mux.HandleFunc("/api/v1/media/ABC/ruling/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"Content violates guidelines"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher, err := httpfetch.New(httpfetch.Options{})
	require.NoError(t, err)

	s := New(fetcher, srv.URL)
	_, err = s.Fetch(context.Background(), "ABC")
	require.Error(t, err)

	restricted, ok := resolve.AsRestricted(err)
	require.True(t, ok)
	assert.Equal(t, "Content violates guidelines", restricted.Reason)
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var attempts int32
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql/query", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(mediaJSON))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher, err := httpfetch.New(httpfetch.Options{})
	require.NoError(t, err)

	s := New(fetcher, srv.URL)
	post, err := s.Fetch(context.Background(), "ABC")
	require.NoError(t, err)
	require.Len(t, post.Media, 1)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(3))
}

func TestFetchReturnsNilAfterExhaustingRetries(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql/query", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher, err := httpfetch.New(httpfetch.Options{})
	require.NoError(t, err)

	s := New(fetcher, srv.URL)
	post, err := s.Fetch(context.Background(), "ABC")
	require.NoError(t, err, "transient exhaustion is an absent result, not a propagated error")
	assert.Nil(t, post)
}
