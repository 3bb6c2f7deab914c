// Package geometry implements the 3D primitives used by the spatial index:
// points, axis-aligned boxes, spheres and finite capped cylinders, together
// with exact pairwise intersection tests.
//
// All coordinates are float32. The choice is fixed at build time; every
// shape, index and serialized file shares it.
package geometry

import "math"

// CoordType is the scalar type shared by all coordinates and radii.
type CoordType = float32

// Epsilon is the numeric guard for near-parallel and near-degenerate
// configurations. Denominators with magnitude below Epsilon collapse to the
// zero branch of the respective algorithm.
const Epsilon CoordType = 1e-6

// Point3D is a point (or vector) in 3D space.
type Point3D struct {
	X, Y, Z CoordType
}

// Coord returns the coordinate along dim (0, 1 or 2).
func (p Point3D) Coord(dim int) CoordType {
	switch dim {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

// Add returns p + q.
func (p Point3D) Add(q Point3D) Point3D {
	return Point3D{p.X + q.X, p.Y + q.Y, p.Z + q.Z}
}

// Sub returns p - q.
func (p Point3D) Sub(q Point3D) Point3D {
	return Point3D{p.X - q.X, p.Y - q.Y, p.Z - q.Z}
}

// Scale returns s * p.
func (p Point3D) Scale(s CoordType) Point3D {
	return Point3D{s * p.X, s * p.Y, s * p.Z}
}

// Dot returns the dot product of p and q.
func (p Point3D) Dot(q Point3D) CoordType {
	return p.X*q.X + p.Y*q.Y + p.Z*q.Z
}

// Norm returns the euclidean length of p.
func (p Point3D) Norm() CoordType {
	return CoordType(math.Sqrt(float64(p.Dot(p))))
}

// Dist returns the euclidean distance between p and q.
func (p Point3D) Dist(q Point3D) CoordType {
	return p.Sub(q).Norm()
}

// Box3D is an axis-aligned box stored as its min and max corners.
// A valid box satisfies Min <= Max componentwise; EmptyBox is the only
// exception and acts as the identity of Extend.
type Box3D struct {
	Min, Max Point3D
}

// EmptyBox returns the empty-box sentinel: +inf min corner, -inf max corner.
// It is the bounds of an empty tree and extends to any box.
func EmptyBox() Box3D {
	inf := CoordType(math.Inf(1))
	return Box3D{
		Min: Point3D{inf, inf, inf},
		Max: Point3D{-inf, -inf, -inf},
	}
}

// IsEmpty reports whether b is the empty sentinel (min > max on some axis).
func (b Box3D) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Extend returns the smallest box covering both b and o.
func (b Box3D) Extend(o Box3D) Box3D {
	return Box3D{
		Min: Point3D{
			minf(b.Min.X, o.Min.X),
			minf(b.Min.Y, o.Min.Y),
			minf(b.Min.Z, o.Min.Z),
		},
		Max: Point3D{
			maxf(b.Max.X, o.Max.X),
			maxf(b.Max.Y, o.Max.Y),
			maxf(b.Max.Z, o.Max.Z),
		},
	}
}

// Overlaps reports whether b and o overlap, boundary touches included.
func (b Box3D) Overlaps(o Box3D) bool {
	return b.Min.X <= o.Max.X && o.Min.X <= b.Max.X &&
		b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y &&
		b.Min.Z <= o.Max.Z && o.Min.Z <= b.Max.Z
}

// Contains reports whether p lies inside b, boundaries included.
func (b Box3D) Contains(p Point3D) bool {
	return b.Min.X <= p.X && p.X <= b.Max.X &&
		b.Min.Y <= p.Y && p.Y <= b.Max.Y &&
		b.Min.Z <= p.Z && p.Z <= b.Max.Z
}

// ContainsBox reports whether o lies fully inside b.
func (b Box3D) ContainsBox(o Box3D) bool {
	return b.Contains(o.Min) && b.Contains(o.Max)
}

// Center returns the center point of b.
func (b Box3D) Center() Point3D {
	return Point3D{
		(b.Min.X + b.Max.X) / 2,
		(b.Min.Y + b.Max.Y) / 2,
		(b.Min.Z + b.Max.Z) / 2,
	}
}

// ClosestPoint returns the point of b closest to p (p itself if inside).
func (b Box3D) ClosestPoint(p Point3D) Point3D {
	return Point3D{
		clamp(p.X, b.Min.X, b.Max.X),
		clamp(p.Y, b.Min.Y, b.Max.Y),
		clamp(p.Z, b.Min.Z, b.Max.Z),
	}
}

// BoundingBox returns b itself, making Box3D usable as a query shape.
func (b Box3D) BoundingBox() Box3D { return b }

// Sphere is a ball given by its centroid and radius.
type Sphere struct {
	Centroid Point3D
	Radius   CoordType
}

// BoundingBox returns the axis-aligned box covering the sphere.
func (s Sphere) BoundingBox() Box3D {
	r := Point3D{s.Radius, s.Radius, s.Radius}
	return Box3D{Min: s.Centroid.Sub(r), Max: s.Centroid.Add(r)}
}

// Cylinder is a finite capped cylinder given by its two axis endpoints and
// radius. A zero-length axis degenerates to a sphere at P1.
type Cylinder struct {
	P1, P2 Point3D
	Radius CoordType
}

// BoundingBox returns the axis-aligned box covering the cylinder. It is the
// box of the two endpoint spheres, which covers the capped cylinder.
func (c Cylinder) BoundingBox() Box3D {
	r := Point3D{c.Radius, c.Radius, c.Radius}
	b1 := Box3D{Min: c.P1.Sub(r), Max: c.P1.Add(r)}
	b2 := Box3D{Min: c.P2.Sub(r), Max: c.P2.Add(r)}
	return b1.Extend(b2)
}

// IsDegenerate reports whether the axis length is below Epsilon, in which
// case the cylinder is treated as a sphere at P1.
func (c Cylinder) IsDegenerate() bool {
	return c.P2.Sub(c.P1).Norm() < Epsilon
}

// Shape is the closed union of query shapes: Box3D, Sphere or Cylinder.
type Shape interface {
	BoundingBox() Box3D
	isShape()
}

func (Box3D) isShape()    {}
func (Sphere) isShape()   {}
func (Cylinder) isShape() {}

func minf(a, b CoordType) CoordType {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b CoordType) CoordType {
	if a > b {
		return a
	}
	return b
}

func clamp(v, lo, hi CoordType) CoordType {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
