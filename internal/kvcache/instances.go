// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package kvcache

import (
	"path/filepath"
	"time"
)

// postCacheTTL and shareIDCacheTTL are the two fixed TTLs spec.md §4.1
// requires: one day for resolved posts, one year for share-code
// redirect targets (which almost never change once observed).
const (
	postCacheTTL    = 24 * time.Hour
	shareIDCacheTTL = 365 * 24 * time.Hour
)

// OpenPostCache opens the post-cache instance under baseDir/post.
func OpenPostCache(baseDir string) (*Cache, error) {
	return Open("post", filepath.Join(baseDir, "post"), postCacheTTL)
}

// OpenShareIDCache opens the shareid-cache instance under baseDir/shareid.
func OpenShareIDCache(baseDir string) (*Cache, error) {
	return Open("shareid", filepath.Join(baseDir, "shareid"), shareIDCacheTTL)
}
