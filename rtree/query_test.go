package rtree

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/morphidx/geometry"
	"github.com/hupe1980/morphidx/model"
	"github.com/hupe1980/morphidx/testutil"
)

func TestFindIntersectingSpheres(t *testing.T) {
	// Three unit spheres; a small query sphere near the first one.
	spheres := []model.IndexedSphere{
		{ID: 7, Center: geometry.Point3D{X: 0, Y: 0, Z: 0}, Radius: 1},
		{ID: 8, Center: geometry.Point3D{X: 10, Y: 0, Z: 0}, Radius: 1},
		{ID: 9, Center: geometry.Point3D{X: 0, Y: 10, Z: 0}, Radius: 1},
	}
	tree := NewBulkLoaded(spheres, model.SphereCodec{})

	query := geometry.Sphere{Centroid: geometry.Point3D{X: 0.5, Y: 0, Z: 0}, Radius: 1}
	assert.Equal(t, []uint64{7}, tree.FindIntersecting(query, ExactGeometry))
	assert.True(t, tree.IsIntersecting(query, ExactGeometry))
	assert.Equal(t, 1, tree.CountIntersecting(query, ExactGeometry))

	objs := tree.FindIntersectingObjs(query, ExactGeometry)
	require.Len(t, objs, 1)
	assert.Equal(t, uint64(7), objs[0].ID)
}

func TestBoundingBoxVersusExact(t *testing.T) {
	// A diagonal segment: its bounding box is much fatter than the shape, so
	// a query near the box corner hits under the bounding-box policy but not
	// under exact geometry.
	seg := model.NewSegmentEntry(model.Segment{
		GID:    1,
		P1:     geometry.Point3D{X: 0, Y: 0, Z: 0},
		P2:     geometry.Point3D{X: 10, Y: 10, Z: 10},
		Radius: 0.1,
	})
	tree := NewBulkLoaded([]model.MorphoEntry{seg}, model.MorphoCodec{})

	corner := geometry.Sphere{Centroid: geometry.Point3D{X: 9, Y: 0, Z: 0}, Radius: 0.5}
	assert.Len(t, tree.FindIntersecting(corner, BoundingBoxGeometry), 1,
		"bbox policy may report false positives")
	assert.Empty(t, tree.FindIntersecting(corner, ExactGeometry))
}

func TestMorphologyExactQueries(t *testing.T) {
	tree := New[model.MorphoEntry](model.MorphoCodec{})
	tree.Insert(model.NewSegmentEntry(model.Segment{
		GID: 1, SectionID: 1, SegmentID: 0,
		P1: geometry.Point3D{X: 0, Y: 0, Z: 0}, P2: geometry.Point3D{X: 10, Y: 0, Z: 0}, Radius: 1,
	}))

	// The sphere sits at height 3 over the axis; the segment surface is at
	// distance 2 from its center.
	miss := geometry.Sphere{Centroid: geometry.Point3D{X: 5, Y: 0, Z: 3}, Radius: 1.9}
	assert.Empty(t, tree.FindIntersecting(miss, ExactGeometry))

	hit := geometry.Sphere{Centroid: geometry.Point3D{X: 5, Y: 0, Z: 3}, Radius: 2.1}
	assert.Equal(t, []uint64{1}, tree.FindIntersecting(hit, ExactGeometry))
}

func TestQueryWithin(t *testing.T) {
	rng := testutil.NewRNG(4)
	spheres := rng.Spheres(500, -50, 50)
	tree := NewBulkLoaded(append([]model.IndexedSphere(nil), spheres...), model.SphereCodec{})

	box := geometry.Box3D{Min: geometry.Point3D{X: -20, Y: -20, Z: -20}, Max: geometry.Point3D{X: 20, Y: 20, Z: 20}}
	got := tree.QueryWithin(box)

	want := 0
	for _, s := range spheres {
		if box.ContainsBox(s.BoundingBox()) {
			want++
		}
	}
	assert.Len(t, got, want)
	for _, s := range got {
		assert.True(t, box.ContainsBox(s.BoundingBox()))
	}
}

func TestFindIntersectingMatchesBruteForce(t *testing.T) {
	rng := testutil.NewRNG(5)
	spheres := rng.Spheres(1000, -30, 30)
	tree := NewBulkLoaded(append([]model.IndexedSphere(nil), spheres...), model.SphereCodec{})

	queries := []geometry.Shape{
		geometry.Sphere{Centroid: geometry.Point3D{X: 0, Y: 0, Z: 0}, Radius: 10},
		geometry.Box3D{Min: geometry.Point3D{X: -5, Y: -5, Z: -5}, Max: geometry.Point3D{X: 5, Y: 5, Z: 5}},
		geometry.Cylinder{P1: geometry.Point3D{X: -20, Y: 0, Z: 0}, P2: geometry.Point3D{X: 20, Y: 0, Z: 0}, Radius: 3},
	}

	for _, q := range queries {
		var wantBBox, wantExact []uint64
		for _, s := range spheres {
			if s.BoundingBox().Overlaps(q.BoundingBox()) {
				wantBBox = append(wantBBox, s.ID)
			}
			if geometry.Intersects(q, s.Shape()) {
				wantExact = append(wantExact, s.ID)
			}
		}

		assert.ElementsMatch(t, wantBBox, tree.FindIntersecting(q, BoundingBoxGeometry))
		assert.ElementsMatch(t, wantExact, tree.FindIntersecting(q, ExactGeometry))
		assert.Equal(t, len(wantExact), tree.CountIntersecting(q, ExactGeometry))
	}
}

func TestFindNearest(t *testing.T) {
	spheres := []model.IndexedSphere{
		{ID: 1, Center: geometry.Point3D{X: 1, Y: 0, Z: 0}, Radius: 0.1},
		{ID: 2, Center: geometry.Point3D{X: 2, Y: 0, Z: 0}, Radius: 0.1},
		{ID: 3, Center: geometry.Point3D{X: 4, Y: 0, Z: 0}, Radius: 0.1},
		{ID: 4, Center: geometry.Point3D{X: 8, Y: 0, Z: 0}, Radius: 0.1},
	}
	tree := NewBulkLoaded(append([]model.IndexedSphere(nil), spheres...), model.SphereCodec{})

	ids, err := tree.FindNearest(geometry.Point3D{X: 0, Y: 0, Z: 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, ids)

	t.Run("k larger than the tree returns everything", func(t *testing.T) {
		ids, err := tree.FindNearest(geometry.Point3D{X: 0, Y: 0, Z: 0}, 10)
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2, 3, 4}, ids)
	})

	t.Run("invalid k", func(t *testing.T) {
		_, err := tree.FindNearest(geometry.Point3D{}, 0)
		assert.ErrorIs(t, err, ErrInvalidK)
	})
}

func TestFindNearestMatchesBruteForce(t *testing.T) {
	rng := testutil.NewRNG(6)
	spheres := rng.Spheres(400, -20, 20)
	tree := NewBulkLoaded(append([]model.IndexedSphere(nil), spheres...), model.SphereCodec{})

	point := geometry.Point3D{X: 1, Y: 2, Z: 3}
	const k = 10

	ids, err := tree.FindNearest(point, k)
	require.NoError(t, err)
	require.Len(t, ids, k)

	dist := make(map[uint64]float64, len(spheres))
	for _, s := range spheres {
		dist[s.ID] = float64(s.Center.Dist(point))
	}
	bruteforce := make([]uint64, 0, len(spheres))
	for _, s := range spheres {
		bruteforce = append(bruteforce, s.ID)
	}
	sort.Slice(bruteforce, func(i, j int) bool {
		return dist[bruteforce[i]] < dist[bruteforce[j]]
	})

	for i, id := range ids {
		assert.InDelta(t, dist[bruteforce[i]], dist[id], 1e-6,
			"result %d must be at the %d-th smallest distance", i, i)
	}
}
