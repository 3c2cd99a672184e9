// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	p := &Post{
		Username: "jdoe",
		Avatar:   "https://example.com/a.jpg",
		Caption:  "hello\nworld",
		Media: []Media{
			{URL: "https://example.com/1.jpg", Type: MediaTypeImage, Width: 1080, Height: 1350},
			{URL: "https://example.com/2.mp4", Type: MediaTypeVideo, Width: 1080, Height: 1920, Duration: 12.5},
		},
		Blocked:   false,
		FetchedAt: 1700000000,
	}

	data, err := p.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalPost(data)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestNodeGetPath(t *testing.T) {
	t.Parallel()

	n, err := ParseNode([]byte(`{"gql_data":{"shortcode_media":{"__typename":"GraphImage","id":"123"}}}`))
	require.NoError(t, err)

	media := n.Get("gql_data.shortcode_media")
	assert.False(t, media.IsZero())
	assert.Equal(t, "GraphImage", media.Get("__typename").AsStringOrDefault(""))
	assert.Equal(t, "123", media.Get("id").AsStringOrDefault(""))
	assert.Equal(t, "", media.Get("missing.deep").AsStringOrDefault(""))
	assert.Equal(t, "fallback", n.Get("absent").AsStringOrDefault("fallback"))
}

func TestNodeArrayTraversal(t *testing.T) {
	t.Parallel()

	n, err := ParseNode([]byte(`{"edges":[{"node":{"id":"a"}},{"node":{"id":"b"}}]}`))
	require.NoError(t, err)

	edges := n.Get("edges")
	require.Equal(t, 2, edges.Len())

	var ids []string
	edges.Each(func(edge Node) {
		ids = append(ids, edge.Get("node.id").AsStringOrDefault(""))
	})
	assert.Equal(t, []string{"a", "b"}, ids)

	assert.Equal(t, "b", edges.Index(1).Get("node.id").AsStringOrDefault(""))
	assert.True(t, edges.Index(5).IsZero())
}

func TestNodeScalarAccessors(t *testing.T) {
	t.Parallel()

	n, err := ParseNode([]byte(`{"width":1080,"blocked":true,"ratio":1.5}`))
	require.NoError(t, err)

	assert.Equal(t, 1080, n.Get("width").AsInt())
	assert.True(t, n.Get("blocked").AsBool())
	f, ok := n.Get("ratio").AsFloat()
	assert.True(t, ok)
	assert.InDelta(t, 1.5, f, 0.0001)
}
