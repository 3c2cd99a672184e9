// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package dispatch

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/embedfix/internal/logging"
	"github.com/tomtom215/embedfix/internal/metrics"
	"github.com/tomtom215/embedfix/internal/model"
	"github.com/tomtom215/embedfix/internal/resolve"
	"github.com/tomtom215/embedfix/internal/shortcode"
	"github.com/tomtom215/embedfix/internal/singleflight"
)

// Handler holds every collaborator the spec.md §6 HTTP surface needs:
// the PostResolver, ShareResolver, and GridComposer "hard core"
// subsystems, plus the out-of-scope template renderer and a media
// downloader for feeding the grid composer.
type Handler struct {
	Resolver     PostResolver
	ShareResolve ShareResolver
	Grid         GridComposer
	Downloader   MediaDownloader
	Renderer     TemplateRenderer

	// UpstreamBase is the scheme+host of the site being embedded, e.g.
	// "https://www.instagram.com", used to build the 307 redirect target
	// for human browsers and failure fallbacks.
	UpstreamBase string

	gridGroup *singleflight.Group[string, string]
}

// NewHandler constructs a Handler with its internal grid singleflight
// group initialized.
func NewHandler(resolver PostResolver, shareResolve ShareResolver, grid GridComposer, downloader MediaDownloader, renderer TemplateRenderer, upstreamBase string) *Handler {
	return &Handler{
		Resolver:     resolver,
		ShareResolve: shareResolve,
		Grid:         grid,
		Downloader:   downloader,
		Renderer:     renderer,
		UpstreamBase: strings.TrimRight(upstreamBase, "/"),
		gridGroup:    singleflight.NewGroup[string, string]("grid_compose"),
	}
}

// Health answers liveness checks at "/".
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// upstreamURLFor builds the canonical upstream URL for a resolved
// short-code, the redirect target for human browsers and absent/error
// fallbacks per spec.md §7.
func (h *Handler) upstreamURLFor(shortCode string) string {
	return fmt.Sprintf("%s/p/%s/", h.UpstreamBase, shortCode)
}

func (h *Handler) redirectUpstream(w http.ResponseWriter, r *http.Request, shortCode, reason string) {
	metrics.DispatchRedirects.WithLabelValues(reason).Inc()
	http.Redirect(w, r, h.upstreamURLFor(shortCode), http.StatusTemporaryRedirect)
}

// resolveRequestedCode extracts the raw id path param and resolves it
// through numeric re-encoding (spec.md §6) and, if isShare, through the
// ShareResolver first.
func (h *Handler) resolveRequestedCode(ctx context.Context, raw string, isShare bool) (string, bool) {
	if isShare {
		return h.ShareResolve.Resolve(ctx, raw)
	}
	if shortcode.IsNumeric(raw) {
		n, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return "", false
		}
		return shortcode.EncodeNumeric(n), true
	}
	return raw, true
}

// Embed implements spec.md §6's embed handler: human browsers get a 307
// to the upstream post, crawlers get a resolved Post rendered to HTML via
// the external TemplateRenderer, with the og:image/og:video target
// chosen between a direct media redirect (single media) and the grid
// composer (sidecar), matching §8 scenario 2/3.
func (h *Handler) Embed(w http.ResponseWriter, r *http.Request) {
	h.embed(w, r, chi.URLParam(r, "id"), false)
}

// EmbedShare is the share-code variant of Embed: the id path param is a
// share code resolved via ShareResolver before the rest of the pipeline.
func (h *Handler) EmbedShare(w http.ResponseWriter, r *http.Request) {
	h.embed(w, r, chi.URLParam(r, "id"), true)
}

func (h *Handler) embed(w http.ResponseWriter, r *http.Request, rawID string, isShare bool) {
	ctx := r.Context()

	if !IsCrawlerUA(r.UserAgent()) {
		fallback := h.upstreamURLFor(rawID)
		ctx = ContextWithUpstreamFallback(ctx, fallback)
		metrics.DispatchRedirects.WithLabelValues("human").Inc()
		http.Redirect(w, r.WithContext(ctx), fallback, http.StatusTemporaryRedirect)
		return
	}

	shortCode, ok := h.resolveRequestedCode(ctx, rawID, isShare)
	if !ok {
		h.redirectUpstream(w, r, rawID, "absent")
		return
	}
	ctx = ContextWithUpstreamFallback(ctx, h.upstreamURLFor(shortCode))

	post, err := h.Resolver.Resolve(ctx, shortCode)
	if err != nil {
		if resolve.IsAbsent(err) {
			h.redirectUpstream(w, r, shortCode, "absent")
			return
		}
		if restricted, ok := resolve.AsRestricted(err); ok {
			metrics.DispatchRestricted.Inc()
			w.WriteHeader(http.StatusForbidden)
			if rerr := h.Renderer.RenderRestricted(w, restricted.Reason); rerr != nil {
				logging.Ctx(ctx).Error().Err(rerr).Msg("dispatch: render restricted failed")
			}
			return
		}
		logging.Ctx(ctx).Warn().Err(err).Str("short_code", shortCode).Msg("dispatch: resolve failed")
		h.redirectUpstream(w, r, shortCode, "error")
		return
	}

	data := EmbedViewData{
		Post:         post,
		CanonicalURL: h.upstreamURLFor(shortCode),
	}
	h.populateOGMedia(&data, shortCode)
	data.OGDescription = post.Caption

	if err := h.Renderer.RenderEmbed(w, data); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("short_code", shortCode).Msg("dispatch: render embed failed")
		h.redirectUpstream(w, r, shortCode, "error")
	}
}

// populateOGMedia chooses the single-media redirect routes for a
// one-item post, or the grid route for a sidecar, per spec.md §8
// scenarios 2 and 3.
func (h *Handler) populateOGMedia(data *EmbedViewData, shortCode string) {
	post := data.Post
	if len(post.Media) == 1 {
		m := post.Media[0]
		if m.Type == model.MediaTypeVideo {
			data.OGVideo = fmt.Sprintf("/videos/%s/1", shortCode)
		} else {
			data.OGImage = fmt.Sprintf("/images/%s/1", shortCode)
		}
		return
	}
	data.OGImage = fmt.Sprintf("/grid/%s/", shortCode)
}

// MediaRedirect implements "/images/{id}/{k}" and "/videos/{id}/{k}":
// resolve the post, 307-redirect to the k-th media item's direct URL (or
// its preview_url when ?preview=1 is set on a video route).
func (h *Handler) MediaRedirect(wantVideo bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		shortCode := chi.URLParam(r, "id")
		k, err := strconv.Atoi(chi.URLParam(r, "k"))
		if err != nil || k < 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		post, err := h.Resolver.Resolve(ctx, shortCode)
		if err != nil || k > len(post.Media) {
			h.redirectUpstream(w, r, shortCode, "absent")
			return
		}

		m := post.Media[k-1]
		target := m.URL
		if wantVideo && r.URL.Query().Get("preview") == "1" && m.PreviewURL != "" {
			target = m.PreviewURL
		}
		if target == "" {
			h.redirectUpstream(w, r, shortCode, "absent")
			return
		}
		http.Redirect(w, r, target, http.StatusTemporaryRedirect)
	}
}

// GridHandler implements "/grid/{id}": compose (or serve the cached) justified
// grid JPEG for a sidecar post, coalesced through a per-post_id
// singleflight group per spec.md §4.9, falling back to the first media
// item's direct URL on any composition failure (spec.md §4.9's "any
// exception ... redirect to a single-image URL rather than surface an
// error").
func (h *Handler) GridHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shortCode := chi.URLParam(r, "id")

	post, err := h.Resolver.Resolve(ctx, shortCode)
	if err != nil || len(post.Media) == 0 {
		h.redirectUpstream(w, r, shortCode, "absent")
		return
	}

	if len(post.Media) == 1 {
		http.Redirect(w, r, post.Media[0].URL, http.StatusTemporaryRedirect)
		return
	}

	if path, ok := h.Grid.Lookup(shortCode); ok {
		http.ServeFile(w, r, path)
		return
	}

	path, err := h.gridGroup.Do(ctx, shortCode, func(ctx context.Context) (string, error) {
		paths, err := h.Downloader.DownloadImages(ctx, post)
		if err != nil {
			return "", err
		}
		return h.Grid.Compose(ctx, shortCode, paths)
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("short_code", shortCode).Msg("dispatch: grid composition failed, falling back to single image")
		http.Redirect(w, r, post.Media[0].URL, http.StatusTemporaryRedirect)
		return
	}
	http.ServeFile(w, r, path)
}

// OEmbed implements "/oembed/": parse the canonical post URL passed in
// ?url=, resolve it, and return the oEmbed 1.0 JSON shape.
func (h *Handler) OEmbed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rawURL := r.URL.Query().Get("url")
	shortCode := extractShortCodeFromURL(rawURL)
	if shortCode == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	post, err := h.Resolver.Resolve(ctx, shortCode)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	resp := OEmbedResponse{
		Version:      "1.0",
		Type:         "photo",
		Title:        post.Caption,
		AuthorName:   post.Username,
		AuthorURL:    fmt.Sprintf("%s/%s/", h.UpstreamBase, post.Username),
		ProviderName: "embedfix",
		ProviderURL:  h.UpstreamBase,
	}
	if len(post.Media) > 0 {
		m := post.Media[0]
		resp.Width, resp.Height = m.Width, m.Height
		if m.Type == model.MediaTypeVideo {
			resp.Type = "video"
			resp.ThumbnailURL = m.PreviewURL
			resp.HTML = fmt.Sprintf(`<video src="%s" controls></video>`, m.URL)
		} else {
			resp.ThumbnailURL = m.URL
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// APIStatus implements "/api/v1/statuses/{int_id}": decode the Mastodon
// numeric id back to a short-code, resolve, and return an ActivityPub
// status shape.
func (h *Handler) APIStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	intID := chi.URLParam(r, "int_id")

	shortCode, err := shortcode.FromMastodonID(intID)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	post, err := h.Resolver.Resolve(ctx, shortCode)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	status := ActivityPubStatus{
		ID:        intID,
		CreatedAt: time.Unix(post.FetchedAt, 0).UTC().Format(time.RFC3339),
		Content:   post.Caption,
		Account: ActivityPubAccount{
			ID:          post.Username,
			Username:    post.Username,
			DisplayName: post.FullName,
			Avatar:      post.Avatar,
			URL:         fmt.Sprintf("%s/%s/", h.UpstreamBase, post.Username),
		},
		URL: h.upstreamURLFor(shortCode),
	}
	for i, m := range post.Media {
		typ := "image"
		if m.Type == model.MediaTypeVideo {
			typ = "video"
		}
		status.MediaAttach = append(status.MediaAttach, ActivityPubAttach{
			ID:         fmt.Sprintf("%s-%d", shortCode, i+1),
			Type:       typ,
			URL:        m.URL,
			PreviewURL: m.PreviewURL,
		})
	}

	writeJSON(w, http.StatusOK, status)
}

// APIPost implements "/api/p/{id}": a direct JSON serialization of the
// resolved Post, 404 on an absent/errored resolution per spec.md §6.
func (h *Handler) APIPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shortCode := chi.URLParam(r, "id")

	post, err := h.Resolver.Resolve(ctx, shortCode)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, PostJSON{
		PostID:   shortCode,
		Username: post.Username,
		FullName: post.FullName,
		Avatar:   post.Avatar,
		Caption:  post.Caption,
		Media:    post.Media,
		Blocked:  post.Blocked,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// extractShortCodeFromURL pulls the short-code segment out of a canonical
// "/p/{id}/" style URL passed to the oEmbed endpoint's ?url= parameter.
func extractShortCodeFromURL(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		if p == "p" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}
