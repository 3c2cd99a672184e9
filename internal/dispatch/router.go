// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package dispatch

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles embedfix's full route table against chi, mirroring
// the teacher's internal/api/chi_router.go layering (global middleware,
// then route groups) but with the much smaller surface spec.md §6
// describes. Every route name spec.md lists (including trailing-slash
// variants, which chi.StripSlashes normalizes) is registered.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Recoverer(h.UpstreamBase))
	r.Use(chimiddleware.StripSlashes)

	r.Get("/", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/p/{id}", h.Embed)
	r.Get("/p/{id}/{n}", h.Embed)
	r.Get("/tv/{id}", h.Embed)
	r.Get("/reel/{id}", h.Embed)
	r.Get("/reels/{id}", h.Embed)
	r.Get("/{user}/p/{id}", h.Embed)
	r.Get("/{user}/p/{id}/{n}", h.Embed)
	r.Get("/{user}/reel/{id}", h.Embed)
	r.Get("/stories/{user}/{id}", h.Embed)

	r.Get("/share/{id}", h.EmbedShare)
	r.Get("/share/{id}/{n}", h.EmbedShare)
	r.Get("/share/p/{id}", h.EmbedShare)
	r.Get("/share/p/{id}/{n}", h.EmbedShare)
	r.Get("/share/reel/{id}", h.EmbedShare)
	r.Get("/share/reel/{id}/{n}", h.EmbedShare)

	r.Get("/images/{id}/{k}", h.MediaRedirect(false))
	r.Get("/videos/{id}/{k}", h.MediaRedirect(true))

	r.Get("/grid/{id}", h.GridHandler)

	r.Get("/oembed", h.OEmbed)
	r.Get("/api/v1/statuses/{int_id}", h.APIStatus)
	r.Get("/api/p/{id}", h.APIPost)

	return r
}
