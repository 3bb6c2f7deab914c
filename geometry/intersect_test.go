package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpheresIntersect(t *testing.T) {
	a := Sphere{Centroid: Point3D{X: 0, Y: 0, Z: 0}, Radius: 1}

	assert.True(t, SpheresIntersect(a, Sphere{Centroid: Point3D{X: 1.5, Y: 0, Z: 0}, Radius: 1}))
	assert.True(t, SpheresIntersect(a, Sphere{Centroid: Point3D{X: 2, Y: 0, Z: 0}, Radius: 1}),
		"touching spheres intersect")
	assert.False(t, SpheresIntersect(a, Sphere{Centroid: Point3D{X: 2.01, Y: 0, Z: 0}, Radius: 1}))
}

func TestSphereBoxIntersect(t *testing.T) {
	box := Box3D{Min: Point3D{X: 0, Y: 0, Z: 0}, Max: Point3D{X: 10, Y: 10, Z: 10}}

	assert.True(t, SphereBoxIntersect(Sphere{Centroid: Point3D{X: 5, Y: 5, Z: 5}, Radius: 0.1}, box))
	assert.True(t, SphereBoxIntersect(Sphere{Centroid: Point3D{X: -1, Y: 5, Z: 5}, Radius: 1}, box))
	assert.False(t, SphereBoxIntersect(Sphere{Centroid: Point3D{X: -1.01, Y: 5, Z: 5}, Radius: 1}, box))

	t.Run("zero radius reduces to point in box", func(t *testing.T) {
		assert.True(t, SphereBoxIntersect(Sphere{Centroid: Point3D{X: 10, Y: 10, Z: 10}, Radius: 0}, box))
		assert.False(t, SphereBoxIntersect(Sphere{Centroid: Point3D{X: 10.5, Y: 10, Z: 10}, Radius: 0}, box))
	})
}

func TestSphereCylinderIntersect(t *testing.T) {
	// A segment along the x axis with radius 1.
	c := Cylinder{P1: Point3D{X: 0, Y: 0, Z: 0}, P2: Point3D{X: 10, Y: 0, Z: 0}, Radius: 1}

	t.Run("perpendicular distance decides away from the caps", func(t *testing.T) {
		// Center at height 3 over the axis midpoint: surface distance is 2.
		assert.False(t, SphereCylinderIntersect(Sphere{Centroid: Point3D{X: 5, Y: 0, Z: 3}, Radius: 1.9}, c))
		assert.True(t, SphereCylinderIntersect(Sphere{Centroid: Point3D{X: 5, Y: 0, Z: 3}, Radius: 2.1}, c))
	})

	t.Run("caps bound the axial extent", func(t *testing.T) {
		assert.True(t, SphereCylinderIntersect(Sphere{Centroid: Point3D{X: 10.5, Y: 0, Z: 0}, Radius: 1}, c))
		assert.False(t, SphereCylinderIntersect(Sphere{Centroid: Point3D{X: 25, Y: 0, Z: 0}, Radius: 1}, c))
	})

	t.Run("degenerate cylinder behaves as a sphere", func(t *testing.T) {
		d := Cylinder{P1: Point3D{X: 0, Y: 0, Z: 0}, P2: Point3D{X: 0, Y: 0, Z: 0}, Radius: 1}
		assert.True(t, SphereCylinderIntersect(Sphere{Centroid: Point3D{X: 1.9, Y: 0, Z: 0}, Radius: 1}, d))
		assert.False(t, SphereCylinderIntersect(Sphere{Centroid: Point3D{X: 2.1, Y: 0, Z: 0}, Radius: 1}, d))
	})
}

func TestCylindersIntersect(t *testing.T) {
	a := Cylinder{P1: Point3D{X: 0, Y: 0, Z: 0}, P2: Point3D{X: 10, Y: 0, Z: 0}, Radius: 1}

	t.Run("crossing", func(t *testing.T) {
		b := Cylinder{P1: Point3D{X: 5, Y: -5, Z: 0.5}, P2: Point3D{X: 5, Y: 5, Z: 0.5}, Radius: 1}
		assert.True(t, CylindersIntersect(a, b))
	})

	t.Run("parallel at exactly radius-sum distance do not intersect", func(t *testing.T) {
		// The distance comparison is strict <, so touching cylinders are
		// reported as non-intersecting.
		b := Cylinder{P1: Point3D{X: 0, Y: 2, Z: 0}, P2: Point3D{X: 10, Y: 2, Z: 0}, Radius: 1}
		assert.False(t, CylindersIntersect(a, b))

		closer := Cylinder{P1: Point3D{X: 0, Y: 1.99, Z: 0}, P2: Point3D{X: 10, Y: 1.99, Z: 0}, Radius: 1}
		assert.True(t, CylindersIntersect(a, closer))
	})

	t.Run("far apart", func(t *testing.T) {
		b := Cylinder{P1: Point3D{X: 0, Y: 10, Z: 0}, P2: Point3D{X: 10, Y: 10, Z: 0}, Radius: 1}
		assert.False(t, CylindersIntersect(a, b))
	})
}

func TestSegmentSegmentDistance(t *testing.T) {
	tests := []struct {
		name     string
		s10, s11 Point3D
		s20, s21 Point3D
		want     CoordType
	}{
		{
			name: "crossing perpendicular",
			s10:  Point3D{X: 0, Y: 0, Z: 0}, s11: Point3D{X: 10, Y: 0, Z: 0},
			s20: Point3D{X: 5, Y: -5, Z: 2}, s21: Point3D{X: 5, Y: 5, Z: 2},
			want: 2,
		},
		{
			name: "parallel",
			s10:  Point3D{X: 0, Y: 0, Z: 0}, s11: Point3D{X: 10, Y: 0, Z: 0},
			s20: Point3D{X: 0, Y: 3, Z: 4}, s21: Point3D{X: 10, Y: 3, Z: 4},
			want: 5,
		},
		{
			name: "collinear end to end",
			s10:  Point3D{X: 0, Y: 0, Z: 0}, s11: Point3D{X: 1, Y: 0, Z: 0},
			s20: Point3D{X: 4, Y: 0, Z: 0}, s21: Point3D{X: 9, Y: 0, Z: 0},
			want: 3,
		},
		{
			name: "both degenerate",
			s10:  Point3D{X: 0, Y: 0, Z: 0}, s11: Point3D{X: 0, Y: 0, Z: 0},
			s20: Point3D{X: 0, Y: 0, Z: 7}, s21: Point3D{X: 0, Y: 0, Z: 7},
			want: 7,
		},
		{
			name: "endpoint to interior",
			s10:  Point3D{X: 0, Y: 0, Z: 0}, s11: Point3D{X: 10, Y: 0, Z: 0},
			s20: Point3D{X: 5, Y: 1, Z: 0}, s21: Point3D{X: 5, Y: 9, Z: 0},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SegmentSegmentDistance(tt.s10, tt.s11, tt.s20, tt.s21)
			assert.InDelta(t, float64(tt.want), float64(got), 1e-4)

			// The distance is symmetric in the two segments.
			rev := SegmentSegmentDistance(tt.s20, tt.s21, tt.s10, tt.s11)
			assert.InDelta(t, float64(got), float64(rev), 1e-4)
		})
	}
}

func TestIntersectsDispatch(t *testing.T) {
	s := Sphere{Centroid: Point3D{X: 0, Y: 0, Z: 0}, Radius: 1}
	b := Box3D{Min: Point3D{X: 0.5, Y: -1, Z: -1}, Max: Point3D{X: 3, Y: 1, Z: 1}}
	c := Cylinder{P1: Point3D{X: 0, Y: 0, Z: 0}, P2: Point3D{X: 5, Y: 0, Z: 0}, Radius: 0.5}

	assert.True(t, Intersects(s, b))
	assert.True(t, Intersects(b, s), "dispatch is symmetric")
	assert.True(t, Intersects(s, c))
	assert.True(t, Intersects(c, s))
	assert.True(t, Intersects(c, b))
	assert.True(t, Intersects(b, c))
	assert.True(t, Intersects(b, b))
}
