package geometry

import "math"

// SegmentSegmentDistance returns the minimum distance between the segments
// [s10, s11] and [s20, s21].
//
// Closest-points-on-two-segments with the four edge cases for parallel and
// near-parallel lines: any denominator with magnitude below Epsilon collapses
// to the zero branch, and the final sc, tc divisions are guarded the same way.
// See http://geomalgorithms.com/a07-_distance.html.
func SegmentSegmentDistance(s10, s11, s20, s21 Point3D) CoordType {
	u := s11.Sub(s10)
	v := s21.Sub(s20)
	w := s10.Sub(s20)

	a := u.Dot(u) // always >= 0
	b := u.Dot(v)
	c := v.Dot(v) // always >= 0
	d := u.Dot(w)
	e := v.Dot(w)
	D := a*c - b*b // always >= 0

	var sN, tN CoordType
	sD, tD := D, D

	if D < Epsilon {
		// The lines are almost parallel; pin s to 0 on the first segment.
		sN = 0
		sD = 1
		tN = e
		tD = c
	} else {
		sN = b*e - c*d
		tN = a*e - b*d
		if sN < 0 { // the s=0 edge is visible
			sN = 0
			tN = e
			tD = c
		} else if sN > sD { // the s=1 edge is visible
			sN = sD
			tN = e + b
			tD = c
		}
	}

	if tN < 0 { // the t=0 edge is visible
		tN = 0
		switch {
		case -d < 0:
			sN = 0
		case -d > a:
			sN = sD
		default:
			sN = -d
			sD = a
		}
	} else if tN > tD { // the t=1 edge is visible
		tN = tD
		switch {
		case -d+b < 0:
			sN = 0
		case -d+b > a:
			sN = sD
		default:
			sN = -d + b
			sD = a
		}
	}

	var sc, tc CoordType
	if abs(sN) < Epsilon {
		sc = 0
	} else {
		sc = sN / sD
	}
	if abs(tN) < Epsilon {
		tc = 0
	} else {
		tc = tN / tD
	}

	dP := w.Add(u.Scale(sc)).Sub(v.Scale(tc))
	return dP.Norm()
}

// SpheresIntersect reports whether the two spheres intersect, boundary
// touches included.
func SpheresIntersect(s1, s2 Sphere) bool {
	return s1.Centroid.Dist(s2.Centroid) <= s1.Radius+s2.Radius
}

// SphereBoxIntersect reports whether the sphere intersects the box: the
// closest point on the box to the sphere center lies within the radius.
// A zero-radius sphere reduces to point-in-box.
func SphereBoxIntersect(s Sphere, b Box3D) bool {
	return b.ClosestPoint(s.Centroid).Dist(s.Centroid) <= s.Radius
}

// SphereCylinderIntersect reports whether the sphere intersects the finite
// capped cylinder.
//
// The sphere center is projected onto the infinite cylinder axis; the
// perpendicular distance must be within the radius sum, and the projection,
// accounting for the caps, must not put the sphere past either cap by more
// than its radius.
func SphereCylinderIntersect(s Sphere, c Cylinder) bool {
	if c.IsDegenerate() {
		return SpheresIntersect(s, Sphere{Centroid: c.P1, Radius: c.Radius})
	}

	u := s.Centroid.Sub(c.P1)
	v := c.P2.Sub(c.P1)
	proj := u.Dot(v)
	vv := v.Dot(v)

	perp2 := u.Dot(u) - proj*proj/vv
	if perp2 < 0 {
		perp2 = 0
	}
	dist := CoordType(math.Sqrt(float64(perp2)))
	if dist > s.Radius+c.Radius {
		return false
	}

	// Cap check: the larger axial projection of the center, measured from
	// either endpoint, must stay within the axis length plus sphere radius.
	w := s.Centroid.Sub(c.P2)
	vNorm := v.Norm()
	maxProj := maxf(abs(proj), abs(w.Dot(v))) / vNorm
	return maxProj < vNorm+s.Radius
}

// CylindersIntersect reports whether the two finite capped cylinders
// intersect. The minimum distance between the axis segments is compared to
// the radius sum with strict <, so cylinders at exactly radius-sum distance
// do not intersect.
func CylindersIntersect(c1, c2 Cylinder) bool {
	minDist := SegmentSegmentDistance(c1.P1, c1.P2, c2.P1, c2.P2)
	return minDist < c1.Radius+c2.Radius
}

// CylinderBoxIntersect reports whether the cylinder intersects the box.
//
// The test treats the cylinder as the swept sphere along its axis: the
// closest approach of the axis segment to the box center region is checked
// against the box via a clamped sample walk. It is exact for the degenerate
// case and conservative within Epsilon otherwise.
func CylinderBoxIntersect(c Cylinder, b Box3D) bool {
	if c.IsDegenerate() {
		return SphereBoxIntersect(Sphere{Centroid: c.P1, Radius: c.Radius}, b)
	}
	if !c.BoundingBox().Overlaps(b) {
		return false
	}
	// Closest point on the axis segment to the box, found by projecting the
	// clamped box point back onto the axis until it stabilizes.
	v := c.P2.Sub(c.P1)
	vv := v.Dot(v)
	t := CoordType(0.5)
	for i := 0; i < 8; i++ {
		onAxis := c.P1.Add(v.Scale(t))
		q := b.ClosestPoint(onAxis)
		tNext := clamp(q.Sub(c.P1).Dot(v)/vv, 0, 1)
		if abs(tNext-t) < Epsilon {
			t = tNext
			break
		}
		t = tNext
	}
	onAxis := c.P1.Add(v.Scale(t))
	return b.ClosestPoint(onAxis).Dist(onAxis) <= c.Radius
}

// Intersects dispatches the exact pairwise intersection test for any two
// shapes of the closed Shape union.
func Intersects(a, b Shape) bool {
	switch sa := a.(type) {
	case Sphere:
		switch sb := b.(type) {
		case Sphere:
			return SpheresIntersect(sa, sb)
		case Box3D:
			return SphereBoxIntersect(sa, sb)
		case Cylinder:
			return SphereCylinderIntersect(sa, sb)
		}
	case Box3D:
		switch sb := b.(type) {
		case Sphere:
			return SphereBoxIntersect(sb, sa)
		case Box3D:
			return sa.Overlaps(sb)
		case Cylinder:
			return CylinderBoxIntersect(sb, sa)
		}
	case Cylinder:
		switch sb := b.(type) {
		case Sphere:
			return SphereCylinderIntersect(sb, sa)
		case Box3D:
			return CylinderBoxIntersect(sa, sb)
		case Cylinder:
			return CylindersIntersect(sa, sb)
		}
	}
	return false
}

func abs(v CoordType) CoordType {
	if v < 0 {
		return -v
	}
	return v
}
