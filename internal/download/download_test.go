// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/embedfix/internal/httpfetch"
	"github.com/tomtom215/embedfix/internal/model"
)

func TestDownloadImagesFetchesEachMediaItem(t *testing.T) {
	t.Parallel()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("fake-bytes-" + r.URL.Path))
	}))
	defer srv.Close()

	fetcher, err := httpfetch.New(httpfetch.Options{})
	require.NoError(t, err)

	d, err := New(fetcher, t.TempDir())
	require.NoError(t, err)

	post := &model.Post{
		PostID: "ABC",
		Media: []model.Media{
			{URL: srv.URL + "/1.jpg", Type: model.MediaTypeImage},
			{URL: srv.URL + "/2.mp4", Type: model.MediaTypeVideo, PreviewURL: srv.URL + "/2-preview.jpg"},
		},
	}

	paths, err := d.DownloadImages(context.Background(), post)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, 2, hits)

	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestDownloadImagesSkipsVideoWithoutPreview(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("bytes"))
	}))
	defer srv.Close()

	fetcher, err := httpfetch.New(httpfetch.Options{})
	require.NoError(t, err)

	d, err := New(fetcher, t.TempDir())
	require.NoError(t, err)

	post := &model.Post{
		PostID: "ABC",
		Media:  []model.Media{{URL: srv.URL + "/1.mp4", Type: model.MediaTypeVideo}},
	}

	_, err = d.DownloadImages(context.Background(), post)
	assert.Error(t, err, "a video with no preview_url leaves nothing to download")
}

func TestDownloadImagesPropagatesFetchError(t *testing.T) {
	t.Parallel()

	fetcher, err := httpfetch.New(httpfetch.Options{})
	require.NoError(t, err)

	d, err := New(fetcher, t.TempDir())
	require.NoError(t, err)

	post := &model.Post{
		PostID: "ABC",
		Media:  []model.Media{{URL: "http://127.0.0.1:1/broken.jpg", Type: model.MediaTypeImage}},
	}

	_, err = d.DownloadImages(context.Background(), post)
	assert.Error(t, err)
}

func TestNewCreatesScratchDir(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "scratch")
	_, err := New(nil, dir)
	require.NoError(t, err)
	_, statErr := os.Stat(dir)
	assert.NoError(t, statErr)
}
