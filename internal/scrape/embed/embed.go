// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package embed implements spec.md §4.6's EmbedScraper: fetch the public
// "embed/captioned" page for a short-code, dig a Post out of its inline
// shortcode_media JSON, and fall back to a shallow HTML scrape
// (goquery selectors) when the JSON route yields nothing. Grounded on
// original_source/src/scrapers/html.py for the fetch/selector shapes and
// SPEC_FULL.md's goquery wiring (itself grounded on the
// other_examples/Easonliuliang-purify scraper's go.mod, which pulls in
// goquery for exactly this kind of DOM traversal).
package embed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/embedfix/internal/httpfetch"
	"github.com/tomtom215/embedfix/internal/jslex"
	"github.com/tomtom215/embedfix/internal/logging"
	"github.com/tomtom215/embedfix/internal/metrics"
	"github.com/tomtom215/embedfix/internal/model"
	"github.com/tomtom215/embedfix/internal/scrape"
)

// blockedMarker is the string spec.md §4.6 step 6 says indicates the
// embed HTML shows an interstitial rather than the real post.
const blockedMarker = "WatchOnInstagram"

// Scraper fetches and parses the public embed page.
type Scraper struct {
	fetcher *httpfetch.Fetcher
	baseURL string
}

// New creates a Scraper using fetcher for the outbound request.
func New(fetcher *httpfetch.Fetcher, baseURL string) *Scraper {
	return &Scraper{fetcher: fetcher, baseURL: strings.TrimRight(baseURL, "/")}
}

// Fetch retrieves and parses the embed page for shortCode, returning
// (post, true) on success or (nil, false) on any failure or empty result —
// per spec.md §4.6's failure semantics, network errors are logged and
// treated as absent rather than surfaced to the caller.
func (s *Scraper) Fetch(ctx context.Context, shortCode string) (*model.Post, bool) {
	start := time.Now()
	post, ok := s.fetch(ctx, shortCode)
	outcome := "miss"
	if ok {
		outcome = "hit"
	}
	metrics.ObserveScrape("embed", time.Since(start), outcome)
	return post, ok
}

func (s *Scraper) fetch(ctx context.Context, shortCode string) (*model.Post, bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/p/%s/embed/captioned/", s.baseURL, shortCode)
	body, err := s.fetcher.Get(ctx, url, httpfetch.RequestOptions{})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("short_code", shortCode).Msg("embed: fetch failed")
		return nil, false
	}
	html := string(body)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("short_code", shortCode).Msg("embed: html parse failed")
		return nil, false
	}

	post := &model.Post{PostID: shortCode, FetchedAt: time.Now().Unix()}

	media, user := extractFromScripts(doc)
	if len(media) > 0 {
		post.Media = media
		post.Username = user.username
		post.FullName = user.fullName
		post.Avatar = user.avatar
		post.Caption = user.caption
	} else if m, ok := extractFromHTML(doc); ok {
		post.Media = []model.Media{m.media}
		post.Username = m.username
		post.Avatar = m.avatar
		post.Caption = m.caption
	}

	if len(post.Media) == 0 {
		return nil, false
	}

	post.Blocked = strings.Contains(html, blockedMarker)
	return post, true
}

type scriptUser struct {
	username, fullName, avatar, caption string
}

// extractFromScripts implements spec.md §4.6 step 2-3: every <script>
// whose text contains "shortcode_media" is scanned for double-quoted
// string literals; each literal is JSON-decoded twice (spec.md §9's
// "downstream code double-decodes") since the embedded payload is itself
// a JSON-encoded string within the surrounding JS.
func extractFromScripts(doc *goquery.Document) ([]model.Media, scriptUser) {
	var media []model.Media
	var user scriptUser

	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if !strings.Contains(text, "shortcode_media") {
			return true
		}
		for _, literal := range jslex.FindStringLiterals(text) {
			node, ok := doubleDecodeJSON(literal)
			if !ok {
				continue
			}
			sm := node.Get("gql_data.shortcode_media")
			if sm.IsZero() {
				continue
			}
			for _, n := range scrape.MediaNodes(sm) {
				typ := model.MediaTypeImage
				if n.Get("is_video").AsBool() {
					typ = model.MediaTypeVideo
				}
				media = append(media, scrape.BuildMedia(n, typ))
			}
			owner := sm.Get("owner")
			user.username = owner.Get("username").AsStringOrDefault(user.username)
			user.fullName = owner.Get("full_name").AsStringOrDefault(user.fullName)
			user.avatar = owner.Get("profile_pic_url").AsStringOrDefault(user.avatar)
			user.caption = sm.Get("edge_media_to_caption.edges").Index(0).Get("node.text").AsStringOrDefault(user.caption)
			if len(media) > 0 {
				return false
			}
		}
		return true
	})

	return media, user
}

// doubleDecodeJSON unmarshals literal (a quoted JS string, backslash
// escapes and all) once to recover the inner JSON text as a Go string,
// then unmarshals that text again to obtain the actual JSON tree.
func doubleDecodeJSON(literal string) (model.Node, bool) {
	var inner string
	if err := json.Unmarshal([]byte(literal), &inner); err != nil {
		return model.Node{}, false
	}
	node, err := model.ParseNode([]byte(inner))
	if err != nil {
		return model.Node{}, false
	}
	return node, true
}

type htmlFallback struct {
	username, avatar, caption string
	media                     model.Media
}

// extractFromHTML implements spec.md §4.6 step 4: the pure-HTML fallback
// scrape used when the inline JSON yields no media.
func extractFromHTML(doc *goquery.Document) (htmlFallback, bool) {
	avatar, ok := doc.Find("a.Avatar > img").First().Attr("src")
	if !ok || avatar == "" {
		return htmlFallback{}, false
	}

	imgURL, ok := doc.Find(".EmbeddedMediaImage").First().Attr("src")
	if !ok || imgURL == "" {
		return htmlFallback{}, false
	}

	username := strings.TrimSpace(doc.Find("span.UsernameText").First().Text())

	var captionLines []string
	doc.Find("div.Caption").First().Contents().Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			captionLines = append(captionLines, text)
		}
	})

	return htmlFallback{
		username: username,
		avatar:   avatar,
		caption:  strings.Join(captionLines, "\n"),
		media:    model.Media{URL: imgURL, Type: model.MediaTypeImage},
	}, true
}
