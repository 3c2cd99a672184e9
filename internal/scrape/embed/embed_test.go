// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package embed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/embedfix/internal/httpfetch"
)

// scriptMediaPage builds a minimal embed page whose inline script carries
// a double-JSON-encoded shortcode_media payload, matching the shape
// extractFromScripts expects.
func scriptMediaPage(t *testing.T, innerPayload interface{}, blocked bool) string {
	t.Helper()
	inner, err := json.Marshal(innerPayload)
	require.NoError(t, err)

	// The literal itself must be a valid JS string literal: JSON-encode
	// the inner JSON text so it comes out quoted and escaped.
	literal, err := json.Marshal(string(inner))
	require.NoError(t, err)

	marker := ""
	if blocked {
		marker = "<div>WatchOnInstagram</div>"
	}

	return fmt.Sprintf(`<html><body>%s<script>window.__d("shortcode_media_container", %s);</script></body></html>`, marker, string(literal))
}

func singleImagePayload(username string) map[string]interface{} {
	return map[string]interface{}{
		"gql_data": map[string]interface{}{
			"shortcode_media": map[string]interface{}{
				"is_video":     false,
				"display_url":  "https://cdn.example/img.jpg",
				"dimensions":   map[string]interface{}{"width": 1080, "height": 1080},
				"owner": map[string]interface{}{
					"username":        username,
					"full_name":       "Example User",
					"profile_pic_url": "https://cdn.example/avatar.jpg",
				},
				"edge_media_to_caption": map[string]interface{}{
					"edges": []interface{}{
						map[string]interface{}{"node": map[string]interface{}{"text": "a caption"}},
					},
				},
			},
		},
	}
}

func sidecarPayload() map[string]interface{} {
	return map[string]interface{}{
		"gql_data": map[string]interface{}{
			"shortcode_media": map[string]interface{}{
				"edge_sidecar_to_children": map[string]interface{}{
					"edges": []interface{}{
						map[string]interface{}{"node": map[string]interface{}{
							"is_video": false, "display_url": "https://cdn.example/1.jpg",
							"dimensions": map[string]interface{}{"width": 800, "height": 800},
						}},
						map[string]interface{}{"node": map[string]interface{}{
							"is_video": true, "video_url": "https://cdn.example/1.mp4", "display_url": "https://cdn.example/1-preview.jpg",
							"dimensions": map[string]interface{}{"width": 800, "height": 450},
						}},
					},
				},
				"owner": map[string]interface{}{"username": "carousel_user"},
			},
		},
	}
}

func TestFetchExtractsSingleImageFromInlineScript(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(scriptMediaPage(t, singleImagePayload("alice"), false)))
	}))
	defer srv.Close()

	fetcher, err := httpfetch.New(httpfetch.Options{})
	require.NoError(t, err)

	s := New(fetcher, srv.URL)
	post, ok := s.Fetch(context.Background(), "ABC123")
	require.True(t, ok)
	require.Len(t, post.Media, 1)
	assert.Equal(t, "https://cdn.example/img.jpg", post.Media[0].URL)
	assert.Equal(t, "alice", post.Username)
	assert.Equal(t, "Example User", post.FullName)
	assert.Equal(t, "a caption", post.Caption)
	assert.False(t, post.Blocked)
}

func TestFetchExtractsSidecarMedia(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(scriptMediaPage(t, sidecarPayload(), false)))
	}))
	defer srv.Close()

	fetcher, err := httpfetch.New(httpfetch.Options{})
	require.NoError(t, err)

	s := New(fetcher, srv.URL)
	post, ok := s.Fetch(context.Background(), "ABC123")
	require.True(t, ok)
	require.Len(t, post.Media, 2)
	assert.Equal(t, "https://cdn.example/1.jpg", post.Media[0].URL)
	assert.Equal(t, "https://cdn.example/1.mp4", post.Media[1].URL)
	assert.Equal(t, "https://cdn.example/1-preview.jpg", post.Media[1].PreviewURL)
}

func TestFetchFlagsBlockedInterstitial(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(scriptMediaPage(t, singleImagePayload("bob"), true)))
	}))
	defer srv.Close()

	fetcher, err := httpfetch.New(httpfetch.Options{})
	require.NoError(t, err)

	s := New(fetcher, srv.URL)
	post, ok := s.Fetch(context.Background(), "ABC123")
	require.True(t, ok)
	assert.True(t, post.Blocked)
}

func TestFetchFallsBackToHTMLSelectors(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<a class="Avatar"><img src="https://cdn.example/avatar.jpg"></a>
<img class="EmbeddedMediaImage" src="https://cdn.example/fallback.jpg">
<span class="UsernameText">carol</span>
<div class="Caption">hello world</div>
</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	fetcher, err := httpfetch.New(httpfetch.Options{})
	require.NoError(t, err)

	s := New(fetcher, srv.URL)
	post, ok := s.Fetch(context.Background(), "XYZ")
	require.True(t, ok)
	require.Len(t, post.Media, 1)
	assert.Equal(t, "https://cdn.example/fallback.jpg", post.Media[0].URL)
	assert.Equal(t, "carol", post.Username)
}

func TestFetchReturnsFalseOnEmptyPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>nothing here</body></html>`))
	}))
	defer srv.Close()

	fetcher, err := httpfetch.New(httpfetch.Options{})
	require.NoError(t, err)

	s := New(fetcher, srv.URL)
	_, ok := s.Fetch(context.Background(), "NONE")
	assert.False(t, ok)
}

func TestFetchReturnsFalseOnNetworkFailure(t *testing.T) {
	t.Parallel()

	fetcher, err := httpfetch.New(httpfetch.Options{})
	require.NoError(t, err)

	s := New(fetcher, "http://127.0.0.1:1")
	_, ok := s.Fetch(context.Background(), "ABC")
	assert.False(t, ok)
}
