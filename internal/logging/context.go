// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey int

const (
	requestIDCtxKey ctxKey = iota
	correlationIDCtxKey
)

// ContextWithRequestID attaches a request ID to ctx.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey, requestID)
}

// ContextWithNewCorrelationID attaches a freshly generated correlation ID to ctx.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return context.WithValue(ctx, correlationIDCtxKey, uuid.New().String())
}

// RequestIDFromContext returns the request ID stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}

// CorrelationIDFromContext returns the correlation ID stored in ctx, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDCtxKey).(string)
	return id
}

// Ctx returns a logger carrying the request_id/correlation_id fields found
// in ctx, falling back to the bare global logger when neither is present.
func Ctx(ctx context.Context) *zerolog.Logger {
	l := Logger()
	lc := l.With()
	tagged := false
	if rid := RequestIDFromContext(ctx); rid != "" {
		lc = lc.Str("request_id", rid)
		tagged = true
	}
	if cid := CorrelationIDFromContext(ctx); cid != "" {
		lc = lc.Str("correlation_id", cid)
		tagged = true
	}
	if !tagged {
		return &l
	}
	out := lc.Logger()
	return &out
}
