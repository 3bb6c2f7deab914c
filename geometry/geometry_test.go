package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox3D(t *testing.T) {
	b := Box3D{Min: Point3D{X: 0, Y: 0, Z: 0}, Max: Point3D{X: 10, Y: 10, Z: 10}}

	t.Run("contains", func(t *testing.T) {
		assert.True(t, b.Contains(Point3D{X: 5, Y: 5, Z: 5}))
		assert.True(t, b.Contains(Point3D{X: 0, Y: 0, Z: 0}), "boundary is inside")
		assert.True(t, b.Contains(Point3D{X: 10, Y: 10, Z: 10}))
		assert.False(t, b.Contains(Point3D{X: 10.1, Y: 5, Z: 5}))
	})

	t.Run("overlaps", func(t *testing.T) {
		assert.True(t, b.Overlaps(Box3D{Min: Point3D{X: 5, Y: 5, Z: 5}, Max: Point3D{X: 15, Y: 15, Z: 15}}))
		assert.True(t, b.Overlaps(Box3D{Min: Point3D{X: 10, Y: 0, Z: 0}, Max: Point3D{X: 20, Y: 10, Z: 10}}), "touching counts")
		assert.False(t, b.Overlaps(Box3D{Min: Point3D{X: 11, Y: 0, Z: 0}, Max: Point3D{X: 20, Y: 10, Z: 10}}))
	})

	t.Run("closest point", func(t *testing.T) {
		assert.Equal(t, Point3D{X: 5, Y: 5, Z: 5}, b.ClosestPoint(Point3D{X: 5, Y: 5, Z: 5}))
		assert.Equal(t, Point3D{X: 10, Y: 10, Z: 0}, b.ClosestPoint(Point3D{X: 20, Y: 12, Z: -3}))
	})

	t.Run("extend", func(t *testing.T) {
		o := Box3D{Min: Point3D{X: -1, Y: 2, Z: 3}, Max: Point3D{X: 4, Y: 20, Z: 5}}
		got := b.Extend(o)
		assert.Equal(t, Point3D{X: -1, Y: 0, Z: 0}, got.Min)
		assert.Equal(t, Point3D{X: 10, Y: 20, Z: 10}, got.Max)
	})
}

func TestEmptyBox(t *testing.T) {
	e := EmptyBox()
	require.True(t, e.IsEmpty())

	b := Box3D{Min: Point3D{X: 1, Y: 1, Z: 1}, Max: Point3D{X: 2, Y: 2, Z: 2}}
	assert.Equal(t, b, e.Extend(b), "empty box is the identity of Extend")
	assert.False(t, e.Overlaps(b))
}

func TestCylinderBoundingBox(t *testing.T) {
	c := Cylinder{P1: Point3D{X: 0, Y: 0, Z: 0}, P2: Point3D{X: 10, Y: 0, Z: 0}, Radius: 1}
	box := c.BoundingBox()
	assert.Equal(t, Point3D{X: -1, Y: -1, Z: -1}, box.Min)
	assert.Equal(t, Point3D{X: 11, Y: 1, Z: 1}, box.Max)
}

func TestCylinderDegenerate(t *testing.T) {
	c := Cylinder{P1: Point3D{X: 1, Y: 2, Z: 3}, P2: Point3D{X: 1, Y: 2, Z: 3}, Radius: 4}
	assert.True(t, c.IsDegenerate())
	assert.False(t, Cylinder{P2: Point3D{X: 1, Y: 0, Z: 0}}.IsDegenerate())
}
