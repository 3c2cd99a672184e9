// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package jslex extracts double-quoted JavaScript string literals from a
// blob of embedded <script> text, the same narrow job as
// original_source/src/internal/jslex.py's JS_STRING_REGEX. The embed
// scraper uses it to pull the GraphQL JSON payload (itself double-encoded
// as a JS string literal) out of an inline script tag without parsing the
// surrounding JS.
package jslex

import "regexp"

// stringLiteral matches a double-quoted string, including escaped
// characters (\" in particular), non-greedily enough to stop at the first
// unescaped closing quote — the direct Go equivalent of the Python
// original's JS_STRING_REGEX.
var stringLiteral = regexp.MustCompile(`"[^"\\]*(?:\\.[^"\\]*)*"`)

// FindStringLiterals returns every double-quoted string literal found in
// js, quotes included, in order of appearance. Unquoting/unescaping the
// literal is deliberately left to the caller's own JSON decoder (spec.md
// §9: "downstream code double-decodes (parse_json twice)") rather than a
// hand-rolled unescaper here, so the full JSON escape grammar (\uXXXX
// included) is honored instead of a narrower approximation of it.
func FindStringLiterals(js string) []string {
	return stringLiteral.FindAllString(js, -1)
}
