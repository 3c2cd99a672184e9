// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package jslex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindStringLiteralsBasic(t *testing.T) {
	t.Parallel()
	js := `var x = "hello"; var y = "world";`
	got := FindStringLiterals(js)
	assert.Equal(t, []string{`"hello"`, `"world"`}, got)
}

func TestFindStringLiteralsWithEscapedQuote(t *testing.T) {
	t.Parallel()
	js := `window.__d("a\"b", "plain");`
	got := FindStringLiterals(js)
	assert.Equal(t, []string{`"a\"b"`, `"plain"`}, got)
}

func TestFindStringLiteralsNoMatch(t *testing.T) {
	t.Parallel()
	assert.Empty(t, FindStringLiterals("no strings here"))
}
