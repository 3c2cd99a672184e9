// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package grid composes a "justified grid" — the multi-row layout Instagram
// carousel embeds use for sidecar media — from a list of already-downloaded
// image files, choosing row breakpoints that minimize deviation from a
// target row height. The layout algorithm is grounded directly on
// original_source/src/internal/grid_layout.py; the shortest-path search
// over row breakpoints is hand-implemented as Dijkstra (per spec.md §9's
// explicit recommendation) rather than pulled in via a graph library,
// since the graph here is a trivial branching-factor-3 DAG and a full
// shortest-path package would be the kind of business-logic delegation the
// spec calls out not to do.
package grid

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/davidbyttow/govips/v2/vips"

	"github.com/tomtom215/embedfix/internal/logging"
	"github.com/tomtom215/embedfix/internal/metrics"
)

// maxRowHeight is the target row height; the cost function penalizes the
// squared deviation from it, matching grid_layout.py's MAX_ROW_HEIGHT.
const maxRowHeight = 1000

// maxBranch bounds how many images a single row may absorb: grid_layout.py
// only ever considers breakpoints i+1..i+3 ahead of the current index.
const maxBranch = 3

// imageDims is an image's pixel width/height, the only metadata the layout
// algorithm needs.
type imageDims struct {
	w, h int
}

// rowHeight computes the height a row spanning images[i:j] would have once
// scaled to fill canvasWidth, preserving each image's aspect ratio:
// height = canvasWidth / sum(w_k/h_k).
func rowHeight(images []imageDims, canvasWidth int) float64 {
	var ratioSum float64
	for _, im := range images {
		ratioSum += float64(im.w) / float64(im.h)
	}
	if ratioSum == 0 {
		return 0
	}
	return float64(canvasWidth) / ratioSum
}

// rowCost is the squared deviation of a candidate row [i:j) from
// maxRowHeight.
func rowCost(images []imageDims, i, j, canvasWidth int) float64 {
	h := rowHeight(images[i:j], canvasWidth)
	d := float64(maxRowHeight) - h
	return d * d
}

// breakpoint is one edge of the row-layout DAG: committing to a row that
// starts at a node ends at "to" with the given cost.
type breakpoint struct {
	to   int
	cost float64
}

// candidateEdges returns the out-edges from node `from`: one edge per row
// length from 1 to maxBranch images, capped at the sentinel end node.
func candidateEdges(images []imageDims, from, canvasWidth int) []breakpoint {
	var edges []breakpoint
	limit := from + maxBranch
	if limit > len(images)-1 {
		limit = len(images) - 1
	}
	for to := from + 1; to <= limit; to++ {
		edges = append(edges, breakpoint{to: to, cost: rowCost(images, from, to, canvasWidth)})
	}
	return edges
}

// shortestRowPath runs Dijkstra over the row-breakpoint DAG from node 0 to
// node n (the sentinel end), returning the sequence of node indices the
// optimal row split visits.
func shortestRowPath(images []imageDims, canvasWidth int) []int {
	n := len(images) - 1 // sentinel is the last element
	const inf = 1<<63 - 1

	dist := make([]float64, n+1)
	prev := make([]int, n+1)
	visited := make([]bool, n+1)
	for i := range dist {
		dist[i] = float64(inf)
		prev[i] = -1
	}
	dist[0] = 0

	for {
		u := -1
		best := float64(inf)
		for i := 0; i <= n; i++ {
			if !visited[i] && dist[i] < best {
				best = dist[i]
				u = i
			}
		}
		if u == -1 {
			break
		}
		visited[u] = true
		if u == n {
			break
		}
		for _, e := range candidateEdges(images, u, canvasWidth) {
			if nd := dist[u] + e.cost; nd < dist[e.to] {
				dist[e.to] = nd
				prev[e.to] = u
			}
		}
	}

	if dist[n] == float64(inf) {
		return nil
	}

	var path []int
	for at := n; at != -1; at = prev[at] {
		path = append([]int{at}, path...)
		if at == 0 {
			break
		}
	}
	return path
}

// Composer lays out and composites grid images, caching the result on disk
// and tracking that cache with a frequency-based eviction policy so a
// bounded amount of disk space holds the most-requested carousels.
type Composer struct {
	dir      string
	maxBytes int64
	cache    *pathLFU
}

// NewComposer creates a Composer writing composed JPEGs under dir, evicting
// least-frequently-used entries (and their files) once the directory
// exceeds maxBytes.
func NewComposer(dir string, maxBytes int64) (*Composer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("grid: create dir: %w", err)
	}
	c := &Composer{dir: dir, maxBytes: maxBytes}
	c.cache = newPathLFU(50000, 7*24*time.Hour, c.onEvict)
	return c, nil
}

func (c *Composer) onEvict(key, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Warn().Err(err).Str("path", path).Str("cache_key", key).
			Msg("grid: failed to remove evicted file")
	}
	metrics.GridCacheEvictions.Inc()
}

// Lookup returns the cached composed-grid path for key, if present.
func (c *Composer) Lookup(key string) (string, bool) {
	return c.cache.Get(key)
}

// PopulateFromDisk scans the composer's directory for already-composed
// JPEGs left over from a previous process and registers them in the LFU
// cache, per spec.md §4.9's "On startup, populate the LFU with the set of
// files already present on disk." Each file's key is its name without the
// ".jpg" extension, matching Compose's own naming.
func (c *Composer) PopulateFromDisk() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("grid: scan dir: %w", err)
	}

	count := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const ext = ".jpg"
		if filepath.Ext(name) != ext {
			continue
		}
		key := name[:len(name)-len(ext)]
		c.cache.Set(key, filepath.Join(c.dir, name))
		count++
	}
	return count, nil
}

// Compose builds a justified grid from the given already-downloaded image
// file paths, writes it as a JPEG under the composer's directory, registers
// it in the LFU cache under key, and returns its path. It mirrors
// grid_layout.py's generate_grid: read each image's dimensions, append a
// (0,0) sentinel, choose canvas width as 1.5x the average image width, run
// Dijkstra to pick row breakpoints, then resize+insert each image into a
// black canvas row by row.
func (c *Composer) Compose(ctx context.Context, key string, imagePaths []string) (string, error) {
	start := time.Now()
	path, err := c.compose(key, imagePaths)
	metrics.ObserveGridComposition(time.Since(start), err == nil)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("cache_key", key).Msg("grid: composition failed")
		return "", err
	}
	return path, nil
}

func (c *Composer) compose(key string, imagePaths []string) (string, error) {
	if len(imagePaths) == 0 {
		return "", fmt.Errorf("grid: no images to compose")
	}

	dims := make([]imageDims, 0, len(imagePaths)+1)
	sources := make([]*vips.ImageRef, 0, len(imagePaths))
	defer func() {
		for _, img := range sources {
			img.Close()
		}
	}()

	var widthSum int
	for _, p := range imagePaths {
		img, err := vips.NewImageFromFile(p)
		if err != nil {
			return "", fmt.Errorf("grid: read %s: %w", p, err)
		}
		sources = append(sources, img)
		w, h := img.Width(), img.Height()
		dims = append(dims, imageDims{w: w, h: h})
		widthSum += w
	}
	dims = append(dims, imageDims{w: 0, h: 0}) // sentinel end node

	avgW := float64(widthSum) / float64(len(imagePaths))
	canvasW := int(avgW * 1.5)

	path := shortestRowPath(dims, canvasW)
	if path == nil {
		return "", fmt.Errorf("grid: no valid row layout for %d images", len(imagePaths))
	}

	type row struct {
		start, end, height int
	}
	var rows []row
	totalH := 0
	for i := 0; i+1 < len(path); i++ {
		h := int(rowHeight(dims[path[i]:path[i+1]], canvasW))
		rows = append(rows, row{start: path[i], end: path[i+1], height: h})
		totalH += h
	}

	canvas, err := vips.Black(canvasW, totalH)
	if err != nil {
		return "", fmt.Errorf("grid: create canvas: %w", err)
	}
	defer canvas.Close()
	if err := canvas.BandJoinConst([]float64{0, 0}); err != nil {
		return "", fmt.Errorf("grid: canvas bandjoin: %w", err)
	}

	yOffset := 0
	for _, r := range rows {
		xOffset := 0
		for idx := r.start; idx < r.end; idx++ {
			img := sources[idx]
			scale := float64(r.height) / float64(img.Height())
			if err := img.Resize(scale, vips.KernelAuto); err != nil {
				return "", fmt.Errorf("grid: resize image %d: %w", idx, err)
			}
			if err := canvas.Insert(img, xOffset, yOffset, false, nil); err != nil {
				return "", fmt.Errorf("grid: insert image %d: %w", idx, err)
			}
			xOffset += img.Width()
		}
		yOffset += r.height
	}

	outPath := filepath.Join(c.dir, key+".jpg")
	ep := vips.NewDefaultJPEGExportParams()
	buf, _, err := canvas.ExportJpeg(ep)
	if err != nil {
		return "", fmt.Errorf("grid: encode jpeg: %w", err)
	}
	if err := os.WriteFile(outPath, buf, 0o644); err != nil {
		return "", fmt.Errorf("grid: write %s: %w", outPath, err)
	}

	c.cache.Set(key, outPath)
	return outPath, nil
}

// EnforceSizeLimit sweeps the composer's directory and evicts the
// least-frequently-used cache entries until the total on-disk size is back
// under maxBytes. It is meant to run periodically (see cmd/server), since
// the LFU cache's own capacity bound is a count, not a byte budget, and
// composed grids vary widely in size.
func (c *Composer) EnforceSizeLimit() error {
	size, err := dirSize(c.dir)
	if err != nil {
		return fmt.Errorf("grid: measure dir size: %w", err)
	}
	for size > c.maxBytes && c.cache.Len() > 0 {
		c.cache.evictOne()
		newSize, err := dirSize(c.dir)
		if err != nil {
			return fmt.Errorf("grid: measure dir size: %w", err)
		}
		if newSize >= size {
			break // nothing more to reclaim
		}
		size = newSize
	}
	return nil
}

// SizeSweepService runs EnforceSizeLimit on a fixed interval as a
// suture.Service (internal/supervisor), per spec.md §5's "an optional
// background task sweeps the grid directory against a size cap... on a
// fixed interval." Serve returns ctx.Err() when canceled, matching
// suture's documented contract that a Service exit via context
// cancellation be reported back, not swallowed.
type SizeSweepService struct {
	Composer *Composer
	Interval time.Duration
}

// Serve implements suture.Service.
func (s *SizeSweepService) Serve(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Composer.EnforceSizeLimit(); err != nil {
				logging.Warn().Err(err).Msg("grid: size sweep failed")
			}
		}
	}
}

func dirSize(dir string) (int64, error) {
	var total int64
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
