package multiindex

import (
	"context"
	"log/slog"

	"github.com/hupe1980/morphidx/geometry"
	"github.com/hupe1980/morphidx/model"
	"github.com/hupe1980/morphidx/rtree"
)

// Options configure a multi-index tree.
type Options struct {
	// MaxCachedBytes is the byte budget of the usage-rate cache; it divides
	// by the encoded value size to give the element budget.
	MaxCachedBytes uint64

	// MaxEvict is the upper bound on evictions per cache miss.
	MaxEvict int

	// StatsDir, if set, receives a timestamped cache usage snapshot on
	// Close.
	StatsDir string

	// Logger receives cache and query diagnostics.
	Logger *slog.Logger
}

// DefaultOptions are the default multi-index options.
var DefaultOptions = Options{
	MaxCachedBytes: 1 << 30,
	MaxEvict:       1,
}

// Tree is the query orchestrator of a multi-index: it filters candidate
// sub-trees through the fully loaded top tree, pulls them through the
// usage-rate cache and merges the per-sub-tree results.
//
// A Tree is not safe for concurrent queries: every query mutates the cache
// and the generation counter.
type Tree[V model.Indexed] struct {
	topTree    *rtree.Tree[model.SubTreeRef]
	cache      *UsageRateCache[V]
	queryCount uint64
}

// Open loads the top tree of a multi-index and prepares the sub-tree cache.
func Open[V model.Indexed](ctx context.Context, storage *Storage[V], optFns ...func(o *Options)) (*Tree[V], error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	topTree, err := storage.LoadTop(ctx)
	if err != nil {
		return nil, err
	}

	valueSize := uint64(storage.Codec().Size())
	cache := NewUsageRateCache(UsageRateCacheParams{
		MaxCachedElements: opts.MaxCachedBytes / valueSize,
		MaxEvict:          opts.MaxEvict,
	}, storage, opts.Logger)
	if opts.StatsDir != "" {
		cache.SetStatsDir(opts.StatsDir)
	}

	return &Tree[V]{topTree: topTree, cache: cache}, nil
}

// Bounds returns the MBR of the top tree.
func (t *Tree[V]) Bounds() geometry.Box3D { return t.topTree.Bounds() }

// SubTreeCount returns the number of sub-trees the top tree indexes.
func (t *Tree[V]) SubTreeCount() int { return t.topTree.Len() }

// Cache exposes the usage-rate cache, mainly for instrumentation.
func (t *Tree[V]) Cache() *UsageRateCache[V] { return t.cache }

// QueryCount returns the current query generation.
func (t *Tree[V]) QueryCount() uint64 { return t.queryCount }

// Query returns all values intersecting shape under the given geometry
// policy. Results are ordered by top-tree traversal of the candidate
// sub-trees, then sub-tree traversal. The generation counter advances once
// per call, regardless of how many sub-trees were touched. The context is
// checked between sub-tree loads; its error cancels the query.
func (t *Tree[V]) Query(ctx context.Context, shape geometry.Shape, geom rtree.Geometry) ([]V, error) {
	defer func() { t.queryCount++ }()

	candidates := t.topTree.FindIntersectingObjs(shape, rtree.BoundingBoxGeometry)

	var out []V
	for _, ref := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		subtree, err := t.cache.LoadSubtree(ctx, ref, t.queryCount)
		if err != nil {
			return nil, err
		}
		out = subtree.QueryIntersecting(shape, geom, out)
	}
	return out, nil
}

// FindIntersecting returns the element ids of all values intersecting shape.
func (t *Tree[V]) FindIntersecting(ctx context.Context, shape geometry.Shape, geom rtree.Geometry) ([]uint64, error) {
	objs, err := t.Query(ctx, shape, geom)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(objs))
	for i, v := range objs {
		ids[i] = v.ElementID()
	}
	return ids, nil
}

// CountIntersecting counts the values intersecting shape.
func (t *Tree[V]) CountIntersecting(ctx context.Context, shape geometry.Shape, geom rtree.Geometry) (int, error) {
	objs, err := t.Query(ctx, shape, geom)
	if err != nil {
		return 0, err
	}
	return len(objs), nil
}

// IsIntersecting reports whether any stored value intersects shape under
// exact geometry. It short-circuits across sub-trees and within each
// sub-tree.
func (t *Tree[V]) IsIntersecting(ctx context.Context, shape geometry.Shape) (bool, error) {
	defer func() { t.queryCount++ }()

	queryBox := shape.BoundingBox()
	for _, ref := range t.topTree.FindIntersectingObjs(queryBox, rtree.BoundingBoxGeometry) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !geometry.Intersects(shape, ref.MBR) {
			continue
		}
		subtree, err := t.cache.LoadSubtree(ctx, ref, t.queryCount)
		if err != nil {
			return false, err
		}
		if subtree.IsIntersecting(shape, rtree.ExactGeometry) {
			return true, nil
		}
	}
	return false, nil
}

// Close releases the cache.
func (t *Tree[V]) Close() error {
	return t.cache.Close()
}
