// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package resolve implements the PostResolver orchestration of spec.md
// §4.8: cache lookup, then a singleflight-coalesced scraper chain (embed
// HTML first, GraphQL as fallback), persisting the winning Post back to
// the post-cache. It also defines the three error kinds spec.md §7
// distinguishes, modeled as Go error values/types per SPEC_FULL.md §A.3
// rather than the teacher's HTTP-status-coded respondError helper, since
// this layer sits below the HTTP boundary.
package resolve

import (
	"errors"
	"fmt"
)

// ErrAbsent is returned (wrapped, where context helps) when resolution
// completes without error but produces no Post — spec.md §7's "Absent"
// kind. Handlers treat this as a 307 to the upstream URL, not a failure.
var ErrAbsent = errors.New("resolve: post not found")

// RestrictedError is spec.md §7's "Restricted" kind: the upstream
// explicitly refuses the post and supplies a human-readable ruling.
// Handlers render it as a 403 error page carrying Reason in its meta tags.
type RestrictedError struct {
	Reason string
}

func (e *RestrictedError) Error() string {
	return fmt.Sprintf("resolve: restricted: %s", e.Reason)
}

// IsAbsent reports whether err is (or wraps) ErrAbsent.
func IsAbsent(err error) bool {
	return errors.Is(err, ErrAbsent)
}

// AsRestricted reports whether err is (or wraps) a *RestrictedError and
// returns it.
func AsRestricted(err error) (*RestrictedError, bool) {
	var re *RestrictedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
