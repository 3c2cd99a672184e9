// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package scrape holds the media-extraction logic shared by the embed and
// GraphQL scrapers (spec.md §4.6 step 3 / §4.7 step 4 describe the same
// sidecar-unwrapping and video/image preference rules against two
// differently-shaped JSON payloads), so the duplication lives in one place
// instead of being copy-pasted into both scraper packages.
package scrape

import "github.com/tomtom215/embedfix/internal/model"

// MediaNodes returns the individual media entries a shortcode_media (or
// xdt_shortcode_media) node describes: its sidecar children if present,
// else the node itself as the sole entry, matching spec.md §4.6 step 3's
// "edge_sidecar_to_children.edges[*].node if present, else [shortcode_media]".
func MediaNodes(media model.Node) []model.Node {
	edges := media.Get("edge_sidecar_to_children.edges")
	if edges.Len() == 0 {
		return []model.Node{media}
	}
	nodes := make([]model.Node, 0, edges.Len())
	edges.Each(func(edge model.Node) {
		node := edge.Get("node")
		if !node.IsZero() {
			nodes = append(nodes, node)
		}
	})
	if len(nodes) == 0 {
		return []model.Node{media}
	}
	return nodes
}

// BuildMedia converts a single media node into a model.Media, given the
// type the caller already classified from whatever field its payload
// shape uses (is_video for the embed JSON, __typename for GraphQL). video_url is preferred over display_url per spec.md §4.6 step
// 3, and display_url becomes PreviewURL for videos when present.
func BuildMedia(n model.Node, typ model.MediaType) model.Media {
	width := n.Get("dimensions.width").AsInt()
	height := n.Get("dimensions.height").AsInt()

	if videoURL, ok := n.Get("video_url").AsString(); ok && videoURL != "" {
		return model.Media{
			URL:        videoURL,
			Type:       model.MediaTypeVideo,
			Width:      width,
			Height:     height,
			PreviewURL: n.Get("display_url").AsStringOrDefault(""),
		}
	}

	return model.Media{
		URL:    n.Get("display_url").AsStringOrDefault(""),
		Type:   typ,
		Width:  width,
		Height: height,
	}
}

// TypeNameToMediaType normalizes a GraphQL __typename
// (XDTGraphImage/XDTGraphVideo) into model.MediaType, per spec.md §4.7
// step 4.
func TypeNameToMediaType(typename string) model.MediaType {
	if typename == "XDTGraphVideo" || typename == "GraphVideo" {
		return model.MediaTypeVideo
	}
	return model.MediaTypeImage
}
