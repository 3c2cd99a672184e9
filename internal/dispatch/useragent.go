// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package dispatch

import "strings"

// crawlerUAFragments is the fixed set of lowercased substrings spec.md §6
// matches a request's User-Agent against to decide whether to render the
// embed page (crawler/preview bot) or redirect a human browser straight
// to the upstream site. SPEC_FULL.md §E resolves the open question on
// historical narrower gating in favor of the full union listed here.
var crawlerUAFragments = []string{
	"discordbot",
	"telegrambot",
	"facebook",
	"whatsapp",
	"firefox/92",
	"vkshare",
	"revoltchat",
	"preview",
	"iframely",
}

// IsCrawlerUA reports whether ua matches one of the fixed crawler/preview
// substrings, case-insensitively, per spec.md §6.
func IsCrawlerUA(ua string) bool {
	lower := strings.ToLower(ua)
	for _, frag := range crawlerUAFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
