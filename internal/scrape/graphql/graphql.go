// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package graphql implements spec.md §4.7's GraphQLScraper: a retried,
// circuit-broken POST against the site's internal GraphQL endpoint, with
// a media-ruling fallback lookup when the post turns out to be
// Restricted. The circuit breaker wrapping mirrors the teacher's
// internal/sync/circuit_breaker.go (sony/gobreaker/v2, counted
// open/half-open/closed transitions, Prometheus state gauge); the retry
// loop is the REDESIGN-flagged broadened version SPEC_FULL.md §E commits
// to (any transport error or 4xx/5xx response, not one narrow transport
// error class).
package graphql

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/embedfix/internal/httpfetch"
	"github.com/tomtom215/embedfix/internal/logging"
	"github.com/tomtom215/embedfix/internal/metrics"
	"github.com/tomtom215/embedfix/internal/model"
	"github.com/tomtom215/embedfix/internal/resolve"
	"github.com/tomtom215/embedfix/internal/scrape"
)

// docID is the site-specific persisted-query document id the GraphQL
// endpoint expects; a fixed constant per spec.md §4.7 step 1.
const docID = "8845758582119845"

const maxAttempts = 5

// Scraper fetches and parses the internal GraphQL endpoint.
type Scraper struct {
	fetcher *httpfetch.Fetcher
	baseURL string
	cb      *gobreaker.CircuitBreaker[[]byte]
}

// New creates a Scraper using fetcher for outbound calls, wrapped in a
// circuit breaker named "graphql-scraper".
func New(fetcher *httpfetch.Fetcher, baseURL string) *Scraper {
	name := "graphql-scraper"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("component", "graphql_scraper").
				Str("from", from.String()).Str("to", to.String()).
				Msg("graphql: circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Scraper{fetcher: fetcher, baseURL: baseURL, cb: cb}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Fetch implements spec.md §4.7's full protocol: POST with retry, parse
// data.xdt_shortcode_media, consult the ruling endpoint and raise
// *resolve.RestrictedError when absent, else extract the Post.
func (s *Scraper) Fetch(ctx context.Context, shortCode string) (*model.Post, error) {
	start := time.Now()
	post, err := s.fetch(ctx, shortCode)
	outcome := "success"
	switch {
	case err == nil:
	case errorsAsRestricted(err):
		outcome = "restricted"
	default:
		outcome = "failure"
	}
	metrics.ObserveScrape("graphql", time.Since(start), outcome)
	return post, err
}

func errorsAsRestricted(err error) bool {
	_, ok := resolve.AsRestricted(err)
	return ok
}

func (s *Scraper) fetch(ctx context.Context, shortCode string) (*model.Post, error) {
	body, err := s.postWithRetry(ctx, shortCode)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("short_code", shortCode).Msg("graphql: all attempts failed")
		return nil, nil //nolint:nilnil // transient failure on this path is "absent", not an error
	}

	node, err := model.ParseNode(body)
	if err != nil {
		return nil, fmt.Errorf("graphql: parse response: %w", err)
	}

	sm := node.Get("data.xdt_shortcode_media")
	if sm.IsZero() {
		reason := s.fetchRuling(ctx, shortCode)
		return nil, &resolve.RestrictedError{Reason: reason}
	}

	post := &model.Post{
		PostID:    shortCode,
		FetchedAt: time.Now().Unix(),
		Blocked:   false,
	}

	for _, n := range scrape.MediaNodes(sm) {
		typ := scrape.TypeNameToMediaType(n.Get("__typename").AsStringOrDefault(""))
		post.Media = append(post.Media, scrape.BuildMedia(n, typ))
	}

	owner := sm.Get("owner")
	post.Username = owner.Get("username").AsStringOrDefault("")
	post.FullName = owner.Get("full_name").AsStringOrDefault("")
	post.Avatar = owner.Get("profile_pic_url").AsStringOrDefault("")
	post.Caption = sm.Get("edge_media_to_caption.edges").Index(0).Get("node.text").AsStringOrDefault("")

	if !post.Valid() {
		return nil, nil //nolint:nilnil // no media extracted is an absent result, not a failure
	}
	return post, nil
}

// postWithRetry issues the graphql POST up to maxAttempts times, retrying
// on any error from the fetcher (a transport error or any 4xx/5xx status),
// guarded by the circuit breaker; an open breaker stops the retries early.
func (s *Scraper) postWithRetry(ctx context.Context, shortCode string) ([]byte, error) {
	variables, err := json.Marshal(map[string]interface{}{
		"shortcode":              shortCode,
		"fetch_tagged_user_count": nil,
		"hoisted_comment_id":      nil,
		"hoisted_reply_id":        nil,
	})
	if err != nil {
		return nil, fmt.Errorf("graphql: marshal variables: %w", err)
	}

	form := map[string]string{
		"fb_api_caller_class":       "RelayModern",
		"fb_api_req_friendly_name":  "PolarisPostActionLoadPostQueryQuery",
		"server_timestamps":         "true",
		"doc_id":                    docID,
		"variables":                 string(variables),
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		body, err := s.cb.Execute(func() ([]byte, error) {
			return s.fetcher.Post(ctx, s.baseURL+"/graphql/query", form, httpfetch.RequestOptions{
				Headers: map[string]string{"x-csrftoken": "-"},
			})
		})
		if err == nil {
			return body, nil
		}
		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
	}
	return nil, fmt.Errorf("graphql: post failed after %d attempts: %w", maxAttempts, lastErr)
}

// fetchRuling implements SPEC_FULL.md §D's media-ruling endpoint: a GET
// returning a description/message string explaining why a post is
// Restricted, consulted when data.xdt_shortcode_media is absent per
// spec.md §4.7 step 3.
func (s *Scraper) fetchRuling(ctx context.Context, shortCode string) string {
	body, err := s.fetcher.Get(ctx, s.baseURL+"/api/v1/media/"+shortCode+"/ruling/", httpfetch.RequestOptions{IgnoreStatus: true})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("short_code", shortCode).Msg("graphql: ruling fetch failed")
		return "This content isn't available."
	}

	node, err := model.ParseNode(body)
	if err != nil {
		return "This content isn't available."
	}
	if desc := node.Get("description").AsStringOrDefault(""); desc != "" {
		return desc
	}
	return node.Get("message").AsStringOrDefault("This content isn't available.")
}
