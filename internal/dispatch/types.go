// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package dispatch provides the HTTP handler contracts spec.md §6 names:
// route registration, user-agent gating, numeric/Mastodon id re-encoding,
// and the response shapes (oEmbed JSON, ActivityPub status JSON) an
// out-of-scope HTML templating layer fills in. The router itself is
// assembled against go-chi/chi/v5, the teacher's routing library
// (internal/api/chi_router.go), though embedfix's route table is the much
// smaller one spec.md §6 describes rather than the teacher's dashboard API.
package dispatch

import (
	"context"
	"net/http"

	"github.com/tomtom215/embedfix/internal/model"
)

// PostResolver is the subset of internal/resolve.Resolver the dispatch
// layer depends on.
type PostResolver interface {
	Resolve(ctx context.Context, shortCode string) (*model.Post, error)
}

// ShareResolver is the subset of internal/shareresolve.Resolver the
// dispatch layer depends on.
type ShareResolver interface {
	Resolve(ctx context.Context, shareCode string) (string, bool)
}

// GridComposer is the subset of internal/grid.Composer the dispatch layer
// depends on, plus the singleflight coalescing spec.md §4.9 requires
// around it (the Handler wraps calls to this interface in its own
// per-post_id singleflight group rather than requiring the composer
// itself to coalesce).
type GridComposer interface {
	Lookup(key string) (string, bool)
	Compose(ctx context.Context, key string, imagePaths []string) (string, error)
}

// MediaDownloader fetches a Post's media to local disk so the grid
// composer has files to read; out of spec.md's four hard-core subsystems
// but necessary glue the grid handler needs, implemented by whatever
// fetches via internal/httpfetch and writes to a temp directory.
type MediaDownloader interface {
	DownloadImages(ctx context.Context, post *model.Post) ([]string, error)
}

// EmbedViewData is what the out-of-scope HTML templating layer needs to
// render an embed page's Open Graph / Twitter Card / ActivityPub meta
// tags (spec.md §8 end-to-end scenarios reference og:image and
// og:description specifically).
type EmbedViewData struct {
	Post        *model.Post
	OGImage     string
	OGVideo     string
	OGDescription string
	CanonicalURL  string
}

// TemplateRenderer is the out-of-scope HTML templating collaborator
// (spec.md §1's "HTML template rendering" external scope) the embed and
// restricted-post handlers call into.
type TemplateRenderer interface {
	RenderEmbed(w http.ResponseWriter, data EmbedViewData) error
	RenderRestricted(w http.ResponseWriter, reason string) error
}

// OEmbedResponse is the JSON shape /oembed/ returns, per the oEmbed 1.0
// spec's photo/video types (the two kinds embedfix's Post.Media can be).
type OEmbedResponse struct {
	Version      string `json:"version"`
	Type         string `json:"type"`
	Title        string `json:"title,omitempty"`
	AuthorName   string `json:"author_name,omitempty"`
	AuthorURL    string `json:"author_url,omitempty"`
	ProviderName string `json:"provider_name"`
	ProviderURL  string `json:"provider_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	HTML         string `json:"html,omitempty"`
}

// ActivityPubStatus is the minimal Mastodon-compatible status shape
// /api/v1/statuses/{id} returns, per SPEC_FULL.md §D.
type ActivityPubStatus struct {
	ID          string               `json:"id"`
	CreatedAt   string               `json:"created_at"`
	Content     string               `json:"content"`
	Account     ActivityPubAccount   `json:"account"`
	MediaAttach []ActivityPubAttach  `json:"media_attachments"`
	URL         string               `json:"url"`
}

// ActivityPubAccount is the embedded author shape of ActivityPubStatus.
type ActivityPubAccount struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
	URL         string `json:"url"`
}

// ActivityPubAttach is one entry of ActivityPubStatus's media_attachments.
type ActivityPubAttach struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	URL        string `json:"url"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// PostJSON is the response shape for /api/p/{id}, a direct serialization
// of the resolved Post for internal/debugging consumers.
type PostJSON struct {
	PostID   string        `json:"post_id"`
	Username string        `json:"username"`
	FullName string        `json:"full_name,omitempty"`
	Avatar   string        `json:"avatar"`
	Caption  string        `json:"caption"`
	Media    []model.Media `json:"media"`
	Blocked  bool          `json:"blocked"`
}
