// Package rtree implements a 3D R-tree over morphology values: bulk loading
// via sort-tile-recursion, incremental insertion for test construction,
// predicate queries under bounding-box or exact geometry, and binary
// serialization.
package rtree

import (
	"errors"

	"github.com/hupe1980/morphidx/geometry"
	"github.com/hupe1980/morphidx/model"
	"github.com/hupe1980/morphidx/persistence"
	"github.com/hupe1980/morphidx/str"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("rtree: k must be positive")
	// ErrNegativeRadius is returned when an input value radius is negative.
	ErrNegativeRadius = errors.New("rtree: radius must be non-negative")
	// ErrInvalidRegion is returned when a region box has min > max.
	ErrInvalidRegion = errors.New("rtree: invalid region: min corner exceeds max corner")
)

// Geometry selects the intersection policy of a query.
type Geometry uint8

const (
	// BoundingBoxGeometry tests bounding-box overlap only. Cheap and
	// conservative: may report false positives for cylinders and oblique
	// shapes, never false negatives against bounding boxes.
	BoundingBoxGeometry Geometry = iota
	// ExactGeometry applies the exact pairwise shape tests after the MBR
	// filter.
	ExactGeometry
)

// Options contains configuration options for the tree.
type Options struct {
	// MaxNodeEntries is the branching factor: the maximum number of children
	// of an internal node and of values in a leaf.
	MaxNodeEntries int

	// Compression is applied to the value section when serializing.
	Compression persistence.CompressionType
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	MaxNodeEntries: 16,
	Compression:    persistence.CompressionNone,
}

// Tree is an R-tree over values of type V. Trees are built by bulk load or
// file load and are immutable in the supported workflows; Insert and Place
// exist for incremental test construction and are not safe for concurrent
// use. A fully built tree may be queried from multiple goroutines.
type Tree[V model.Indexed] struct {
	root  *node[V]
	count int
	codec model.Codec[V]
	opts  Options
}

type node[V model.Indexed] struct {
	mbr      geometry.Box3D
	children []*node[V] // internal nodes only
	values   []V        // leaves only
}

func (n *node[V]) isLeaf() bool { return n.children == nil }

// New creates an empty tree. The codec is used for serialization and for
// the value byte exchange of distributed builds.
func New[V model.Indexed](codec model.Codec[V], optFns ...func(o *Options)) *Tree[V] {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxNodeEntries < 2 {
		opts.MaxNodeEntries = DefaultOptions.MaxNodeEntries
	}

	return &Tree[V]{codec: codec, opts: opts}
}

// NewBulkLoaded builds a balanced tree over values using sort-tile-recursion.
// The input slice is sorted in place. The result is stable against input
// order up to tie-breaks on equal coordinates.
func NewBulkLoaded[V model.Indexed](values []V, codec model.Codec[V], optFns ...func(o *Options)) *Tree[V] {
	t := New(codec, optFns...)
	t.bulkLoad(values)
	return t
}

func (t *Tree[V]) bulkLoad(values []V) {
	t.count = len(values)
	if len(values) == 0 {
		t.root = nil
		return
	}

	params := str.FromHeuristic(len(values), t.opts.MaxNodeEntries)
	str.Sort(values, func(v V, dim int) geometry.CoordType {
		return v.CentroidCoord(dim)
	}, params)

	// Pack each STR tile into one leaf; the heuristic bounds tile sizes by
	// MaxNodeEntries.
	bounds := params.PartitionBoundaries()
	leaves := make([]*node[V], 0, len(bounds)-1)
	for k := 0; k+1 < len(bounds); k++ {
		tile := values[bounds[k]:bounds[k+1]]
		if len(tile) == 0 {
			continue
		}
		leaf := &node[V]{values: append([]V(nil), tile...)}
		leaf.recomputeMBR()
		leaves = append(leaves, leaf)
	}

	t.root = packUpwards(leaves, t.opts.MaxNodeEntries)
}

// packUpwards groups consecutive nodes into parents until one root remains.
// Nodes arrive in STR tile order, so consecutive grouping preserves spatial
// locality.
func packUpwards[V model.Indexed](nodes []*node[V], maxEntries int) *node[V] {
	for len(nodes) > 1 {
		parents := make([]*node[V], 0, (len(nodes)+maxEntries-1)/maxEntries)
		for begin := 0; begin < len(nodes); begin += maxEntries {
			end := begin + maxEntries
			if end > len(nodes) {
				end = len(nodes)
			}
			parent := &node[V]{children: append([]*node[V](nil), nodes[begin:end]...)}
			parent.recomputeMBR()
			parents = append(parents, parent)
		}
		nodes = parents
	}
	return nodes[0]
}

func (n *node[V]) recomputeMBR() {
	mbr := geometry.EmptyBox()
	if n.isLeaf() {
		for _, v := range n.values {
			mbr = mbr.Extend(v.BoundingBox())
		}
	} else {
		for _, c := range n.children {
			mbr = mbr.Extend(c.mbr)
		}
	}
	n.mbr = mbr
}

// Len returns the number of stored values.
func (t *Tree[V]) Len() int { return t.count }

// Bounds returns the MBR of the root. An empty tree returns the empty-box
// sentinel.
func (t *Tree[V]) Bounds() geometry.Box3D {
	if t.root == nil {
		return geometry.EmptyBox()
	}
	return t.root.mbr
}

// Insert adds a single value, maintaining the R-tree invariants.
func (t *Tree[V]) Insert(v V) {
	t.count++

	if t.root == nil {
		leaf := &node[V]{values: []V{v}}
		leaf.recomputeMBR()
		t.root = leaf
		return
	}

	split := t.insertInto(t.root, v)
	if split != nil {
		newRoot := &node[V]{children: []*node[V]{t.root, split}}
		newRoot.recomputeMBR()
		t.root = newRoot
	}
}

// insertInto descends to the best leaf and returns the sibling produced by a
// split, or nil.
func (t *Tree[V]) insertInto(n *node[V], v V) *node[V] {
	box := v.BoundingBox()
	n.mbr = n.mbr.Extend(box)

	if n.isLeaf() {
		n.values = append(n.values, v)
		if len(n.values) > t.opts.MaxNodeEntries {
			return splitLeaf(n)
		}
		return nil
	}

	child := chooseSubtree(n.children, box)
	split := t.insertInto(child, v)
	if split != nil {
		n.children = append(n.children, split)
		if len(n.children) > t.opts.MaxNodeEntries {
			return splitInternal(n)
		}
	}
	return nil
}

// chooseSubtree picks the child needing the least volume enlargement, with
// volume as the tie-break.
func chooseSubtree[V model.Indexed](children []*node[V], box geometry.Box3D) *node[V] {
	best := children[0]
	bestEnl, bestVol := enlargement(best.mbr, box), volume(best.mbr)
	for _, c := range children[1:] {
		enl, vol := enlargement(c.mbr, box), volume(c.mbr)
		if enl < bestEnl || (enl == bestEnl && vol < bestVol) {
			best, bestEnl, bestVol = c, enl, vol
		}
	}
	return best
}

func volume(b geometry.Box3D) float64 {
	if b.IsEmpty() {
		return 0
	}
	d := b.Max.Sub(b.Min)
	return float64(d.X) * float64(d.Y) * float64(d.Z)
}

func enlargement(b, add geometry.Box3D) float64 {
	return volume(b.Extend(add)) - volume(b)
}

// splitLeaf divides an overflowing leaf along its longest MBR axis and
// returns the new sibling.
func splitLeaf[V model.Indexed](n *node[V]) *node[V] {
	dim := longestAxis(n.mbr)
	sortByDim(n.values, dim)

	mid := len(n.values) / 2
	sibling := &node[V]{values: append([]V(nil), n.values[mid:]...)}
	n.values = n.values[:mid]

	n.recomputeMBR()
	sibling.recomputeMBR()
	return sibling
}

func splitInternal[V model.Indexed](n *node[V]) *node[V] {
	dim := longestAxis(n.mbr)
	sortNodesByDim(n.children, dim)

	mid := len(n.children) / 2
	sibling := &node[V]{children: append([]*node[V](nil), n.children[mid:]...)}
	n.children = n.children[:mid]

	n.recomputeMBR()
	sibling.recomputeMBR()
	return sibling
}

func longestAxis(b geometry.Box3D) int {
	d := b.Max.Sub(b.Min)
	dim := 0
	if d.Y > d.Coord(dim) {
		dim = 1
	}
	if d.Z > d.Coord(dim) {
		dim = 2
	}
	return dim
}

func sortByDim[V model.Indexed](values []V, dim int) {
	// Insertion sort: splits touch at most MaxNodeEntries+1 entries.
	for i := 1; i < len(values); i++ {
		for j := i; j > 0 && values[j].CentroidCoord(dim) < values[j-1].CentroidCoord(dim); j-- {
			values[j], values[j-1] = values[j-1], values[j]
		}
	}
}

func sortNodesByDim[V model.Indexed](nodes []*node[V], dim int) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && nodes[j].mbr.Center().Coord(dim) < nodes[j-1].mbr.Center().Coord(dim); j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}

// Place attempts to insert v only if no existing value within region
// intersects v under exact geometry. It reports whether the value was
// inserted; on false the tree is unchanged.
func (t *Tree[V]) Place(region geometry.Box3D, v V) (bool, error) {
	if region.Min.X > region.Max.X || region.Min.Y > region.Max.Y || region.Min.Z > region.Max.Z {
		return false, ErrInvalidRegion
	}

	shape := v.Shape()
	blocked := false
	t.searchMBR(region, func(stored V) bool {
		if geometry.Intersects(shape, stored.Shape()) {
			blocked = true
			return false
		}
		return true
	})
	if blocked {
		return false, nil
	}

	t.Insert(v)
	return true, nil
}
