package str

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/morphidx/geometry"
	"github.com/hupe1980/morphidx/model"
	"github.com/hupe1980/morphidx/testutil"
)

func coord(v model.IndexedSphere, dim int) geometry.CoordType {
	return v.CentroidCoord(dim)
}

func TestSerialSTRParams(t *testing.T) {
	p := SerialSTRParams{NPoints: 1000, NPartsPerDim: [3]int{4, 2, 2}}

	assert.Equal(t, 16, p.NParts())
	assert.Equal(t, 16, p.NPartsPerSlice(0))
	assert.Equal(t, 4, p.NPartsPerSlice(1))
	assert.Equal(t, 2, p.NPartsPerSlice(2))

	bounds := p.PartitionBoundaries()
	require.Len(t, bounds, p.NParts()+1)
	assert.Equal(t, 0, bounds[0])
	assert.Equal(t, 1000, bounds[len(bounds)-1])

	// Tile sizes differ by at most one.
	maxSize, minSize := 0, p.NPoints
	for k := 0; k+1 < len(bounds); k++ {
		size := bounds[k+1] - bounds[k]
		if size > maxSize {
			maxSize = size
		}
		if size < minSize {
			minSize = size
		}
	}
	assert.LessOrEqual(t, maxSize-minSize, 1)
}

func TestFromHeuristic(t *testing.T) {
	t.Run("1000 points with parts of at most 256", func(t *testing.T) {
		p := FromHeuristic(1000, 256)
		assert.Equal(t, [3]int{2, 2, 2}, p.NPartsPerDim)
		assert.Equal(t, 8, p.NParts())
	})

	t.Run("excess exponent goes to dimension 0 first", func(t *testing.T) {
		p := FromHeuristic(1000, 64)
		// 2*1000/64 ~ 31.25 -> 32 parts, exponent 5 split as 2+2+1.
		assert.Equal(t, [3]int{4, 4, 2}, p.NPartsPerDim)
	})

	t.Run("small inputs need a single part", func(t *testing.T) {
		p := FromHeuristic(10, 100)
		assert.Equal(t, 1, p.NParts())
	})

	t.Run("part size bound holds", func(t *testing.T) {
		for _, n := range []int{1, 100, 1000, 54321, 1 << 20} {
			p := FromHeuristic(n, 256)
			maxTile := 0
			bounds := p.PartitionBoundaries()
			for k := 0; k+1 < len(bounds); k++ {
				if size := bounds[k+1] - bounds[k]; size > maxTile {
					maxTile = size
				}
			}
			assert.LessOrEqual(t, maxTile, 256, "n=%d", n)
		}
	})
}

func TestSortTileRecursion(t *testing.T) {
	rng := testutil.NewRNG(9)
	values := rng.Spheres(1000, -100, 100)
	params := FromHeuristic(len(values), 256)

	Sort(values, coord, params)

	bounds := params.PartitionBoundaries()
	require.Len(t, bounds, 9, "2x2x2 tiles")

	t.Run("tile sizes are balanced and sum to the input", func(t *testing.T) {
		total, maxSize, minSize := 0, 0, len(values)
		for k := 0; k+1 < len(bounds); k++ {
			size := bounds[k+1] - bounds[k]
			total += size
			if size > maxSize {
				maxSize = size
			}
			if size < minSize {
				minSize = size
			}
		}
		assert.Equal(t, 1000, total)
		assert.LessOrEqual(t, maxSize-minSize, 1)
	})

	t.Run("dim 0 slab projections do not overlap", func(t *testing.T) {
		// STR guarantees overlap-free projections along the first dimension
		// only; higher dimensions may overlap across slabs.
		perSlab := params.NPartsPerSlice(1)
		for slab := 0; slab+1 < params.NPartsPerDim[0]; slab++ {
			sliceEnd := bounds[(slab+1)*perSlab]
			maxX := geometry.CoordType(-1e30)
			for _, v := range values[bounds[slab*perSlab]:sliceEnd] {
				if x := v.CentroidCoord(0); x > maxX {
					maxX = x
				}
			}
			minNext := geometry.CoordType(1e30)
			for _, v := range values[sliceEnd:bounds[(slab+2)*perSlab]] {
				if x := v.CentroidCoord(0); x < minNext {
					minNext = x
				}
			}
			assert.LessOrEqual(t, maxX, minNext)
		}
	})

	t.Run("tiles are sorted hierarchically", func(t *testing.T) {
		// Within one dim-0/dim-1 tile column, the final dimension is sorted.
		for k := 0; k+1 < len(bounds); k++ {
			tile := values[bounds[k]:bounds[k+1]]
			for i := 1; i < len(tile); i++ {
				assert.LessOrEqual(t, tile[i-1].CentroidCoord(2), tile[i].CentroidCoord(2))
			}
		}
	})
}

func TestSortPanicsOnLengthMismatch(t *testing.T) {
	params := SerialSTRParams{NPoints: 5, NPartsPerDim: [3]int{1, 1, 1}}
	assert.Panics(t, func() {
		Sort(make([]model.IndexedSphere, 4), coord, params)
	})
}
