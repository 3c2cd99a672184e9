// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package model defines the Post/Media shapes shared by the scrapers, the
// KV-cache, and the grid composer, plus a dynamic JSON tree for traversing
// upstream payloads whose shape varies release to release (spec.md §9
// recommends a hand-rolled tagged-union tree over a strict struct for this
// reason: the upstream GraphQL/embed payloads are not contractually
// stable).
package model

import (
	"strings"

	json "github.com/goccy/go-json"
)

// MediaType distinguishes an image from a video entry within a Post.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// Media is a single image or video attached to a Post.
type Media struct {
	URL        string    `json:"url"`
	Type       MediaType `json:"type"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Duration   float64   `json:"duration"`
	PreviewURL string    `json:"preview_url,omitempty"`
}

// Post is the resolved, cacheable representation of an upstream post:
// author, caption, and the ordered list of attached media (one entry for
// a single post, many for a carousel/sidecar).
type Post struct {
	PostID    string  `json:"post_id"`
	Username  string  `json:"username"`
	FullName  string  `json:"full_name,omitempty"`
	Avatar    string  `json:"avatar"`
	Caption   string  `json:"caption"`
	Media     []Media `json:"media"`
	Blocked   bool    `json:"blocked"`
	FetchedAt int64   `json:"fetched_at"`
}

// Marshal serializes the Post using goccy/go-json, the same library the
// teacher uses for its badger-backed session/cache records.
func (p *Post) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalPost is the inverse of Marshal.
func UnmarshalPost(data []byte) (*Post, error) {
	var p Post
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Valid reports whether p satisfies spec.md §3's invariant that any Post a
// resolver returns has at least one attached media item.
func (p *Post) Valid() bool {
	return p != nil && len(p.Media) >= 1
}

// Node is a tagged-union view over an untyped JSON value (object, array,
// string, number, bool, or null), used by the scrapers to dig through
// upstream payloads without binding to a strict schema. Construct one with
// ParseNode, then navigate with Get/Index/AsString etc.
type Node struct {
	raw interface{}
}

// ParseNode parses data into a dynamic Node tree.
func ParseNode(data []byte) (Node, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return Node{}, err
	}
	return Node{raw: v}, nil
}

// NodeFromValue wraps an already-decoded interface{} (e.g. from a nested
// json.Unmarshal into map[string]interface{}) as a Node.
func NodeFromValue(v interface{}) Node {
	return Node{raw: v}
}

// IsZero reports whether the node holds no value (parse failure or
// traversal miss).
func (n Node) IsZero() bool {
	return n.raw == nil
}

// Get traverses a dot-separated path of object keys, e.g.
// Get("gql_data.shortcode_media"). Returns a zero Node on any missing key
// or non-object intermediate value.
func (n Node) Get(path string) Node {
	cur := n
	for _, key := range strings.Split(path, ".") {
		if key == "" {
			continue
		}
		obj, ok := cur.raw.(map[string]interface{})
		if !ok {
			return Node{}
		}
		v, ok := obj[key]
		if !ok {
			return Node{}
		}
		cur = Node{raw: v}
	}
	return cur
}

// Index returns the i-th element of an array node, or a zero Node if the
// node isn't an array or i is out of range.
func (n Node) Index(i int) Node {
	arr, ok := n.raw.([]interface{})
	if !ok || i < 0 || i >= len(arr) {
		return Node{}
	}
	return Node{raw: arr[i]}
}

// Len returns the array length, or 0 if the node isn't an array.
func (n Node) Len() int {
	arr, ok := n.raw.([]interface{})
	if !ok {
		return 0
	}
	return len(arr)
}

// Each calls fn for every element of an array node; a no-op on non-arrays.
func (n Node) Each(fn func(Node)) {
	arr, ok := n.raw.([]interface{})
	if !ok {
		return
	}
	for _, v := range arr {
		fn(Node{raw: v})
	}
}

// AsString returns the string value and true, or "" and false.
func (n Node) AsString() (string, bool) {
	s, ok := n.raw.(string)
	return s, ok
}

// AsStringOrDefault returns the string value, or def if absent/non-string.
func (n Node) AsStringOrDefault(def string) string {
	if s, ok := n.AsString(); ok {
		return s
	}
	return def
}

// AsFloat returns the numeric value and true, or 0 and false.
func (n Node) AsFloat() (float64, bool) {
	f, ok := n.raw.(float64)
	return f, ok
}

// AsInt truncates AsFloat to an int, defaulting to 0.
func (n Node) AsInt() int {
	f, _ := n.AsFloat()
	return int(f)
}

// AsBool returns the boolean value, defaulting to false.
func (n Node) AsBool() bool {
	b, _ := n.raw.(bool)
	return b
}

// AsObject returns the node's raw map, or nil if it isn't an object.
func (n Node) AsObject() map[string]interface{} {
	m, _ := n.raw.(map[string]interface{})
	return m
}
