// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package dispatch

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/tomtom215/embedfix/internal/logging"
)

// RequestID generates (or copies from X-Request-ID) a request id and a
// fresh correlation id into the request context and response header,
// mirroring the teacher's internal/middleware/requestid.go.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		ctx = logging.ContextWithNewCorrelationID(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoverCtxKey carries a *fallbackHolder the current handler writes its
// best-effort upstream fallback URL into, so Recoverer can read it back
// on panic rather than needing to reconstruct it from the path. A plain
// context.Value can't be used for this: Recoverer reads the context in
// the defer/recover closure it set up *before* calling next.ServeHTTP,
// and a context value a downstream handler attaches via
// context.WithValue only flows further downward through that handler's
// own call chain — it never flows back up into Recoverer's already-
// captured r.Context(). A holder Recoverer allocates and seeds into the
// context before calling next, which the handler then writes *through*,
// closes that loop.
type recoverCtxKey struct{}

// fallbackHolder is a mutable cell for the current request's best-effort
// upstream fallback URL, safe for the handler goroutine to write and the
// deferred recover() in the same goroutine to read.
type fallbackHolder struct {
	mu  sync.Mutex
	url string
}

func (h *fallbackHolder) set(url string) {
	h.mu.Lock()
	h.url = url
	h.mu.Unlock()
}

func (h *fallbackHolder) get() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

// ContextWithUpstreamFallback records url as the fallback Recoverer
// should redirect to if a panic unwinds past this point. It writes
// through the *fallbackHolder Recoverer seeded into ctx; if ctx carries
// no holder (e.g. in a test calling a handler directly, without the
// Recoverer middleware), this is a no-op rather than a panic.
func ContextWithUpstreamFallback(ctx context.Context, url string) context.Context {
	if h, ok := ctx.Value(recoverCtxKey{}).(*fallbackHolder); ok {
		h.set(url)
	}
	return ctx
}

func upstreamFallbackFromContext(ctx context.Context) string {
	h, ok := ctx.Value(recoverCtxKey{}).(*fallbackHolder)
	if !ok {
		return ""
	}
	return h.get()
}

// Recoverer converts any panic in a handler into a logged error plus a
// 307 redirect to the upstream site (spec.md §7: "every other exception
// in handler code is logged and converted to a 307 redirect... so users
// never see a 500"), mirroring the teacher's posture of never surfacing a
// raw error to the client, applied here at the dispatch boundary instead
// of per-handler try/except.
func Recoverer(upstreamBase string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			holder := &fallbackHolder{}
			r = r.WithContext(context.WithValue(r.Context(), recoverCtxKey{}, holder))

			defer func() {
				if rec := recover(); rec != nil {
					logging.Ctx(r.Context()).Error().
						Interface("panic", rec).
						Str("path", r.URL.Path).
						Msg("dispatch: recovered from panic")

					fallback := holder.get()
					if fallback == "" {
						fallback = upstreamBase
					}
					http.Redirect(w, r, fallback, http.StatusTemporaryRedirect)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
