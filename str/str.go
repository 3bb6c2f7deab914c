// Package str implements Sort-Tile-Recursion, the bulk partitioning scheme
// behind balanced R-tree loading: values are sorted along each axis in turn
// and split into near-equal contiguous tiles.
package str

import (
	"math"
	"sort"

	"github.com/hupe1980/morphidx/geometry"
)

// CoordFunc extracts the centroid coordinate of a value along a dimension.
type CoordFunc[V any] func(v V, dim int) geometry.CoordType

// SerialSTRParams describe a serial sort-tile-recursion: how many points are
// being partitioned and into how many parts each space dimension splits.
type SerialSTRParams struct {
	// NPoints is the total number of points undergoing STR.
	NPoints int

	// NPartsPerDim is the number of parts per space dimension.
	NPartsPerDim [3]int
}

// NParts returns the overall number of parts after STR.
func (p SerialSTRParams) NParts() int {
	return p.NPartsPerDim[0] * p.NPartsPerDim[1] * p.NPartsPerDim[2]
}

// NPartsPerSlice returns the number of parts in a slice where the axes below
// dim are fixed, i.e. the product of the part counts of dim and all higher
// dimensions.
func (p SerialSTRParams) NPartsPerSlice(dim int) int {
	n := 1
	for d := dim; d < 3; d++ {
		n *= p.NPartsPerDim[d]
	}
	return n
}

// PartitionBoundaries returns the cumulative tile sizes. With boundaries b,
// tile k holds the post-STR elements [b[k], b[k+1]). The length is
// NParts()+1.
func (p SerialSTRParams) PartitionBoundaries() []int {
	bounds := make([]int, 1, p.NParts()+1)
	for _, s0 := range splitSizes(p.NPoints, p.NPartsPerDim[0]) {
		for _, s1 := range splitSizes(s0, p.NPartsPerDim[1]) {
			for _, s2 := range splitSizes(s1, p.NPartsPerDim[2]) {
				bounds = append(bounds, bounds[len(bounds)-1]+s2)
			}
		}
	}
	return bounds
}

// FromHeuristic chooses STR parameters for building a tree over nPoints
// values with parts no larger than maxElementsPerPart.
//
// The part count is 2*nPoints/maxElementsPerPart rounded up to a power of
// two, targeting half-full parts so that parts do not sit at the size bound.
// The exponent is distributed across the dimensions as evenly as possible,
// with the excess going to dimension 0 first.
func FromHeuristic(nPoints, maxElementsPerPart int) SerialSTRParams {
	k := 0
	if nPoints > 0 && maxElementsPerPart > 0 {
		approx := 2 * float64(nPoints) / float64(maxElementsPerPart)
		if approx > 1 {
			k = int(math.Ceil(math.Log2(approx)))
		}
	}

	var parts [3]int
	base, excess := k/3, k%3
	for d := 0; d < 3; d++ {
		e := base
		if d < excess {
			e++
		}
		parts[d] = 1 << e
	}

	return SerialSTRParams{NPoints: nPoints, NPartsPerDim: parts}
}

// Sort performs single-threaded sort-tile-recursion on values in place.
// After the call, the tiles described by params.PartitionBoundaries() are
// contiguous in the slice.
func Sort[V any](values []V, coord CoordFunc[V], params SerialSTRParams) {
	if len(values) != params.NPoints {
		// The boundaries are derived from NPoints; a mismatch here would
		// silently misalign the tiles.
		panic("str: len(values) differs from params.NPoints")
	}
	recurse(values, 0, len(values), coord, params, 0)
}

func recurse[V any](values []V, begin, end int, coord CoordFunc[V], params SerialSTRParams, dim int) {
	if dim == 3 {
		return
	}

	sortByDim(values[begin:end], coord, dim)

	offset := begin
	for _, size := range splitSizes(end-begin, params.NPartsPerDim[dim]) {
		recurse(values, offset, offset+size, coord, params, dim+1)
		offset += size
	}
}

// sortByDim sorts by the coordinate along dim with lexicographic tie-breaks
// on the subsequent dimensions.
func sortByDim[V any](values []V, coord CoordFunc[V], dim int) {
	sort.Slice(values, func(i, j int) bool {
		for d := dim; d < 3; d++ {
			xi, xj := coord(values[i], d), coord(values[j], d)
			if xi != xj {
				return xi < xj
			}
		}
		return false
	})
}

// splitSizes splits n into parts contiguous sizes differing by at most one,
// larger sizes first.
func splitSizes(n, parts int) []int {
	if parts < 1 {
		parts = 1
	}
	sizes := make([]int, parts)
	base, rem := n/parts, n%parts
	for i := range sizes {
		sizes[i] = base
		if i < rem {
			sizes[i]++
		}
	}
	return sizes
}
