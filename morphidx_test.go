package morphidx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/morphidx/geometry"
	"github.com/hupe1980/morphidx/model"
	"github.com/hupe1980/morphidx/rtree"
)

func TestNewSphereIndex(t *testing.T) {
	index, err := NewSphereIndex(
		[]geometry.Point3D{{X: 0, Y: 0, Z: 0}, {X: 10, Y: 0, Z: 0}, {X: 0, Y: 10, Z: 0}},
		[]float32{1, 1, 1},
		[]uint64{7, 8, 9},
	)
	require.NoError(t, err)
	require.Equal(t, 3, index.Len())

	query := geometry.Sphere{Centroid: geometry.Point3D{X: 0.5, Y: 0, Z: 0}, Radius: 1}
	assert.Equal(t, []uint64{7}, index.FindIntersecting(query, rtree.ExactGeometry))

	t.Run("length mismatch", func(t *testing.T) {
		_, err := NewSphereIndex([]geometry.Point3D{{X: 0, Y: 0, Z: 0}}, []float32{1, 2}, []uint64{1})

		var lm *ErrLengthMismatch
		require.ErrorAs(t, err, &lm)
		assert.Equal(t, []int{1, 2, 1}, lm.Lengths)
	})

	t.Run("negative radius", func(t *testing.T) {
		_, err := NewSphereIndex([]geometry.Point3D{{X: 0, Y: 0, Z: 0}}, []float32{-1}, []uint64{1})
		assert.ErrorIs(t, err, ErrNegativeRadius, "the typed error unwraps to the sentinel")

		var ir *ErrInvalidRadius
		require.ErrorAs(t, err, &ir)
		assert.Equal(t, 0, ir.Index)
		assert.Equal(t, float32(-1), ir.Radius)
	})

	t.Run("nil radii produce a point index", func(t *testing.T) {
		index, err := NewSphereIndex([]geometry.Point3D{{X: 1, Y: 1, Z: 1}}, nil, []uint64{5})
		require.NoError(t, err)

		box := geometry.Box3D{Min: geometry.Point3D{X: 1, Y: 1, Z: 1}, Max: geometry.Point3D{X: 1, Y: 1, Z: 1}}
		assert.Equal(t, []uint64{5}, index.FindIntersecting(box, rtree.ExactGeometry))
	})
}

func TestMorphIndexSegmentQueries(t *testing.T) {
	index := NewMorphIndex()
	AddSegment(index, model.Segment{
		GID: 1, SectionID: 1, SegmentID: 0,
		P1: geometry.Point3D{X: 0, Y: 0, Z: 0}, P2: geometry.Point3D{X: 10, Y: 0, Z: 0}, Radius: 1,
	})

	// The query sphere hovers at height 3 over the segment axis; the
	// segment surface is at distance 2 from its center.
	miss := geometry.Sphere{Centroid: geometry.Point3D{X: 5, Y: 0, Z: 3}, Radius: 1.9}
	assert.Empty(t, index.FindIntersecting(miss, rtree.ExactGeometry))

	hit := geometry.Sphere{Centroid: geometry.Point3D{X: 5, Y: 0, Z: 3}, Radius: 2.1}
	assert.Equal(t, []uint64{1}, index.FindIntersecting(hit, rtree.ExactGeometry))
}

func TestAddNeuron(t *testing.T) {
	index := NewMorphIndex()
	AddNeuron(index, 3,
		model.Soma{GID: 3, Center: geometry.Point3D{X: 0, Y: 0, Z: 0}, Radius: 2},
		[]model.Segment{
			{SectionID: 1, SegmentID: 0, P1: geometry.Point3D{X: 2, Y: 0, Z: 0}, P2: geometry.Point3D{X: 5, Y: 0, Z: 0}, Radius: 0.5},
			{SectionID: 1, SegmentID: 1, P1: geometry.Point3D{X: 5, Y: 0, Z: 0}, P2: geometry.Point3D{X: 9, Y: 0, Z: 0}, Radius: 0.5},
		})

	require.Equal(t, 3, index.Len())

	objs := index.FindIntersectingObjs(
		geometry.Sphere{Centroid: geometry.Point3D{X: 0, Y: 0, Z: 0}, Radius: 1}, rtree.ExactGeometry)
	require.Len(t, objs, 1)
	assert.Equal(t, model.KindSoma, objs[0].Kind())
	assert.Equal(t, uint64(3), objs[0].GID)
}

func TestNewSynapseIndex(t *testing.T) {
	index, err := NewSynapseIndex(
		[]uint64{1, 2, 3},
		[]uint64{100, 100, 200},
		[]uint64{7, 8, 9},
		[]geometry.Point3D{{X: 1, Y: 1, Z: 1}, {X: 2, Y: 2, Z: 2}, {X: 40, Y: 40, Z: 40}},
	)
	require.NoError(t, err)

	box := geometry.Box3D{Min: geometry.Point3D{X: 0, Y: 0, Z: 0}, Max: geometry.Point3D{X: 10, Y: 10, Z: 10}}
	counts := rtree.CountIntersectingAggGID(index, box)
	assert.Equal(t, map[uint64]uint64{100: 2}, counts)
}
