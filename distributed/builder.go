package distributed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/morphidx/comm"
	"github.com/hupe1980/morphidx/geometry"
	"github.com/hupe1980/morphidx/model"
	"github.com/hupe1980/morphidx/multiindex"
	"github.com/hupe1980/morphidx/resource"
	"github.com/hupe1980/morphidx/rtree"
	"github.com/hupe1980/morphidx/str"
)

// ErrNotFinalized is returned by Size before Finalize has completed.
var ErrNotFinalized = errors.New("distributed: total number of elements not yet known")

// BuilderOptions configure a bulk build.
type BuilderOptions struct {
	// MaxElementsPerPart is the target sub-tree size, a heuristic upper
	// bound.
	MaxElementsPerPart int

	// Resources bounds concurrent sub-tree builds and write throughput.
	// Nil enforces nothing.
	Resources *resource.Controller

	// Logger receives build progress diagnostics.
	Logger *slog.Logger
}

// DefaultBuilderOptions are the default bulk build options.
var DefaultBuilderOptions = BuilderOptions{
	MaxElementsPerPart: 4_000_000,
}

// BulkBuilder accumulates local values and, on Finalize, participates in the
// collective two-level STR build of a multi-index: the values are
// redistributed so each rank owns a contiguous slab along dimension 0, each
// rank tiles its slab along dimensions 1 and 2 into sub-trees and persists
// them, and rank 0 assembles the top tree over the gathered sub-tree
// descriptors.
//
// A failed build leaves no valid multi-index; the caller must remove partial
// output.
type BulkBuilder[V model.Indexed] struct {
	storage *multiindex.Storage[V]
	codec   model.Codec[V]
	opts    BuilderOptions

	values []V
	total  *uint64
}

// NewBulkBuilder creates a builder writing through storage.
func NewBulkBuilder[V model.Indexed](storage *multiindex.Storage[V], codec model.Codec[V], optFns ...func(o *BuilderOptions)) *BulkBuilder[V] {
	opts := DefaultBuilderOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxElementsPerPart < 1 {
		opts.MaxElementsPerPart = DefaultBuilderOptions.MaxElementsPerPart
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &BulkBuilder[V]{storage: storage, codec: codec, opts: opts}
}

// Reserve pre-allocates capacity for n local values.
func (b *BulkBuilder[V]) Reserve(n int) {
	if cap(b.values) < n {
		values := make([]V, len(b.values), n)
		copy(values, b.values)
		b.values = values
	}
}

// Insert adds one local value.
func (b *BulkBuilder[V]) Insert(v V) {
	b.values = append(b.values, v)
}

// InsertBulk adds a batch of local values.
func (b *BulkBuilder[V]) InsertBulk(values []V) {
	b.values = append(b.values, values...)
}

// LocalSize returns the number of values inserted on this rank.
func (b *BulkBuilder[V]) LocalSize() int { return len(b.values) }

// Size returns the global number of indexed values. It is only valid after
// Finalize.
func (b *BulkBuilder[V]) Size() (uint64, error) {
	if b.total == nil {
		return 0, ErrNotFinalized
	}
	return *b.total, nil
}

// Finalize runs the collective build over c. Every rank of the communicator
// must call it; a nil communicator (a rank outside the build subset) returns
// immediately. Any error aborts the build.
func (b *BulkBuilder[V]) Finalize(ctx context.Context, c comm.Comm) error {
	if c == nil {
		return nil
	}

	total, err := c.AllReduceSum(uint64(len(b.values)))
	if err != nil {
		return fmt.Errorf("distributed: reducing element count: %w", err)
	}
	b.total = &total

	// Outer partition: one contiguous slab along dimension 0 per rank.
	local, err := SortAndBalance(c, b.values, func(v V) geometry.CoordType {
		return v.CentroidCoord(0)
	}, b.codec)
	if err != nil {
		return err
	}
	b.values = local

	// Inner partition: STR along dimensions 1 and 2 within the slab.
	params := innerParams(len(local), b.opts.MaxElementsPerPart)
	str.Sort(local, func(v V, dim int) geometry.CoordType {
		return v.CentroidCoord(dim)
	}, params)
	bounds := params.PartitionBoundaries()

	innerCounts, err := c.AllGatherCounts(params.NParts())
	if err != nil {
		return fmt.Errorf("distributed: gathering sub-tree counts: %w", err)
	}
	idOffset := uint64(0)
	for r := 0; r < c.Rank(); r++ {
		idOffset += uint64(innerCounts[r])
	}

	b.opts.Logger.Info("building sub-trees",
		"rank", c.Rank(),
		"local_elements", len(local),
		"sub_trees", params.NParts(),
	)

	refs, err := b.buildSubTrees(ctx, local, bounds, idOffset)
	if err != nil {
		return err
	}

	return b.assembleTopTree(ctx, c, refs, total)
}

// buildSubTrees bulk loads and persists one sub-tree per tile. Builds run
// concurrently under the resource controller's worker and IO limits.
func (b *BulkBuilder[V]) buildSubTrees(ctx context.Context, local []V, bounds []int, idOffset uint64) ([]model.SubTreeRef, error) {
	refs := make([]model.SubTreeRef, len(bounds)-1)

	g, gctx := errgroup.WithContext(ctx)
	for k := 0; k+1 < len(bounds); k++ {
		tile := local[bounds[k]:bounds[k+1]]
		id := idOffset + uint64(k)
		slot := k

		g.Go(func() error {
			res := b.opts.Resources
			if err := res.AcquireBackground(gctx); err != nil {
				return err
			}
			defer res.ReleaseBackground()

			if err := res.AcquireIO(gctx, len(tile)*b.codec.Size()); err != nil {
				return err
			}

			subtree := rtree.NewBulkLoaded(append([]V(nil), tile...), b.codec)
			if err := b.storage.SaveSub(gctx, id, subtree); err != nil {
				return fmt.Errorf("distributed: saving sub-tree %d: %w", id, err)
			}

			refs[slot] = model.SubTreeRef{
				ID:        id,
				MBR:       subtree.Bounds(),
				NElements: uint64(subtree.Len()),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

// assembleTopTree gathers the sub-tree descriptors and lets rank 0 persist
// the top tree and the meta descriptor.
func (b *BulkBuilder[V]) assembleTopTree(ctx context.Context, c comm.Comm, refs []model.SubTreeRef, total uint64) error {
	refCodec := model.SubTreeRefCodec{}
	buf := make([]byte, 0, len(refs)*refCodec.Size())
	for _, ref := range refs {
		buf = refCodec.Append(buf, ref)
	}

	gathered, err := c.AllGatherBytes(buf)
	if err != nil {
		return fmt.Errorf("distributed: gathering sub-tree descriptors: %w", err)
	}
	if c.Rank() != 0 {
		return nil
	}

	var allRefs []model.SubTreeRef
	for _, rankBuf := range gathered {
		for off := 0; off+refCodec.Size() <= len(rankBuf); off += refCodec.Size() {
			ref, err := refCodec.Decode(rankBuf[off:])
			if err != nil {
				return err
			}
			allRefs = append(allRefs, ref)
		}
	}

	topTree := rtree.NewBulkLoaded(allRefs, refCodec)
	if err := b.storage.SaveTop(ctx, topTree); err != nil {
		return fmt.Errorf("distributed: saving top tree: %w", err)
	}

	return b.storage.WriteMeta(ctx, multiindex.Meta{
		Kind:         multiindex.MetaKindMultiIndex,
		SubTrees:     uint64(topTree.Len()),
		ElementCount: total,
	})
}

// innerParams tiles a rank's slab along dimensions 1 and 2 only; the outer
// distributed sort already partitioned dimension 0 across ranks.
func innerParams(nLocal, maxElementsPerPart int) str.SerialSTRParams {
	p := str.FromHeuristic(nLocal, maxElementsPerPart)
	k := 0
	for _, parts := range p.NPartsPerDim {
		for parts > 1 {
			parts >>= 1
			k++
		}
	}

	e1 := k - k/2
	e2 := k / 2
	return str.SerialSTRParams{
		NPoints:      nLocal,
		NPartsPerDim: [3]int{1, 1 << e1, 1 << e2},
	}
}
