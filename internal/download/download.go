// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package download fetches a Post's media items to local files so the
// grid composer (internal/grid) has something to decode: it is the glue
// between the PostResolver's URLs and GridComposer's file-path contract,
// not one of spec.md's four hard-core subsystems itself, but necessary
// wiring the dispatch grid handler depends on (internal/dispatch's
// MediaDownloader interface).
package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tomtom215/embedfix/internal/httpfetch"
	"github.com/tomtom215/embedfix/internal/model"
)

// Downloader fetches media files into a scratch directory ahead of grid
// composition.
type Downloader struct {
	fetcher *httpfetch.Fetcher
	dir     string
}

// New creates a Downloader writing scratch files under dir.
func New(fetcher *httpfetch.Fetcher, dir string) (*Downloader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("download: create scratch dir: %w", err)
	}
	return &Downloader{fetcher: fetcher, dir: dir}, nil
}

// DownloadImages fetches the still-image representation of every media
// item in post (the media URL itself for images, PreviewURL for videos)
// and returns the local file paths in order, matching the order
// GridComposer.Compose expects to lay rows out in. A video with no
// PreviewURL is skipped; if nothing is left to download it returns an
// error.
func (d *Downloader) DownloadImages(ctx context.Context, post *model.Post) ([]string, error) {
	paths := make([]string, 0, len(post.Media))
	for i, m := range post.Media {
		src := m.URL
		if m.Type == model.MediaTypeVideo {
			if m.PreviewURL == "" {
				continue
			}
			src = m.PreviewURL
		}

		body, err := d.fetcher.Get(ctx, src, httpfetch.RequestOptions{})
		if err != nil {
			return nil, fmt.Errorf("download: fetch media %d: %w", i, err)
		}

		path := filepath.Join(d.dir, fmt.Sprintf("%s-%d.jpg", post.PostID, i))
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return nil, fmt.Errorf("download: write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("download: no images downloaded for post %s", post.PostID)
	}
	return paths, nil
}
