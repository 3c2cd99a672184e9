// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package main is embedfix's entry point.
//
// # Application Architecture
//
// The server initializes components in staged order, mirroring the
// teacher's cmd/server/main.go sequencing:
//
//  1. Configuration: load config.toml + EMBEDFIX_ env vars (Koanf v2)
//  2. Logging: zerolog, configured from the loaded config
//  3. KV-Cache: two badger-backed instances (post-cache, shareid-cache)
//  4. HTTP-Fetcher: the shared outbound client every scraper uses
//  5. Scraper chain: ShareResolver, EmbedScraper, GraphQLScraper
//  6. PostResolver: wraps the chain in cache + singleflight
//  7. GridComposer: LFU-cached justified-grid image composer
//  8. Supervisor: a suture.Supervisor running the grid size-sweep service
//  9. HTTP server: chi router, graceful shutdown on SIGINT/SIGTERM
//
// # Signal handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: it stops
// accepting new connections, waits up to 10s for in-flight requests to
// complete, then closes the badger databases.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/embedfix/internal/config"
	"github.com/tomtom215/embedfix/internal/dispatch"
	"github.com/tomtom215/embedfix/internal/download"
	"github.com/tomtom215/embedfix/internal/grid"
	"github.com/tomtom215/embedfix/internal/httpfetch"
	"github.com/tomtom215/embedfix/internal/kvcache"
	"github.com/tomtom215/embedfix/internal/logging"
	"github.com/tomtom215/embedfix/internal/resolve"
	"github.com/tomtom215/embedfix/internal/scrape/embed"
	"github.com/tomtom215/embedfix/internal/scrape/graphql"
	"github.com/tomtom215/embedfix/internal/shareresolve"
	"github.com/tomtom215/embedfix/internal/supervisor"
)

// upstreamBaseURL is the site embedfix fixes embeds for. It is not
// presently a config key (spec.md §6 lists only HOST/PORT/HTTP_PROXY)
// but is isolated here so a future multi-site build can promote it to one.
const upstreamBaseURL = "https://www.instagram.com"

// gridSweepInterval is how often the background task sweeps the grid
// directory against its size cap, per spec.md §5.
const gridSweepInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logging.Info().Str("addr", cfg.Addr()).Msg("embedfix starting")

	postCache, err := kvcache.OpenPostCache(cfg.CacheDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open post-cache")
	}
	defer func() {
		if err := postCache.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing post-cache")
		}
	}()

	shareIDCache, err := kvcache.OpenShareIDCache(cfg.CacheDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open shareid-cache")
	}
	defer func() {
		if err := shareIDCache.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing shareid-cache")
		}
	}()

	fetcher, err := httpfetch.New(httpfetch.Options{
		ProxyURL:          cfg.HTTPProxy,
		DNSRewriteEnabled: cfg.DNSRewriteEnabled,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to construct http fetcher")
	}

	shareResolver := shareresolve.New(fetcher, shareIDCache, upstreamBaseURL)
	embedScraper := embed.New(fetcher, upstreamBaseURL)
	graphqlScraper := graphql.New(fetcher, upstreamBaseURL)
	resolver := resolve.New(postCache, embedScraper, graphqlScraper)

	composer, err := grid.NewComposer(cfg.GridDir, cfg.GridMaxBytes)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to construct grid composer")
	}
	if n, err := composer.PopulateFromDisk(); err != nil {
		logging.Warn().Err(err).Msg("failed to populate grid LFU from disk")
	} else {
		logging.Info().Int("files", n).Msg("grid cache populated from disk")
	}

	downloader, err := download.New(fetcher, cfg.GridDir+"scratch/")
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to construct media downloader")
	}

	renderer, err := dispatch.NewHTMLRenderer()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to parse templates")
	}

	handler := dispatch.NewHandler(resolver, shareResolver, composer, downloader, renderer, upstreamBaseURL)
	router := dispatch.NewRouter(handler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup := supervisor.New(logging.NewSlogLogger(), supervisor.DefaultConfig())
	sup.Add(&grid.SizeSweepService{Composer: composer, Interval: gridSweepInterval})
	go func() {
		if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor exited")
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("error during graceful shutdown")
	}
}
