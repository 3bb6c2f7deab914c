// Package model defines the indexed value types: somas, dendritic and axonal
// segments, synapses and generic indexed spheres, plus the MorphoEntry tagged
// union stored by heterogeneous morphology indexes.
package model

import "github.com/hupe1980/morphidx/geometry"

// Kind tags the variant of an indexed value.
type Kind uint8

const (
	// KindSoma is a cell body, indexed as a sphere.
	KindSoma Kind = 0
	// KindSegment is a dendrite/axon segment, indexed as a capped cylinder.
	KindSegment Kind = 1
	// KindSynapse is a point-like connection between two neurons.
	KindSynapse Kind = 2
	// KindSphere is a generic indexed sphere.
	KindSphere Kind = 3
)

// Indexed is the contract every stored value satisfies. The bounding box
// drives MBR-level filtering; the shape drives the exact-geometry stage.
type Indexed interface {
	BoundingBox() geometry.Box3D
	Centroid() geometry.Point3D
	CentroidCoord(dim int) geometry.CoordType
	Kind() Kind
	ElementID() uint64
	Shape() geometry.Shape
}

// Compile-time checks to ensure all value types satisfy Indexed.
var (
	_ Indexed = Soma{}
	_ Indexed = Segment{}
	_ Indexed = Synapse{}
	_ Indexed = IndexedSphere{}
	_ Indexed = MorphoEntry{}
)

// Soma is a neuron cell body.
type Soma struct {
	GID    uint64
	Center geometry.Point3D
	Radius geometry.CoordType
}

func (s Soma) BoundingBox() geometry.Box3D { return s.Shape().BoundingBox() }

func (s Soma) Centroid() geometry.Point3D { return s.Center }

func (s Soma) CentroidCoord(dim int) geometry.CoordType { return s.Center.Coord(dim) }

func (Soma) Kind() Kind { return KindSoma }

func (s Soma) ElementID() uint64 { return s.GID }

func (s Soma) Shape() geometry.Shape {
	return geometry.Sphere{Centroid: s.Center, Radius: s.Radius}
}

// Segment is one cylindrical piece of a dendrite or axon.
type Segment struct {
	GID       uint64
	SectionID uint32
	SegmentID uint32
	P1, P2    geometry.Point3D
	Radius    geometry.CoordType
}

func (s Segment) BoundingBox() geometry.Box3D { return s.Shape().BoundingBox() }

func (s Segment) Centroid() geometry.Point3D {
	return s.P1.Add(s.P2).Scale(0.5)
}

func (s Segment) CentroidCoord(dim int) geometry.CoordType {
	return (s.P1.Coord(dim) + s.P2.Coord(dim)) / 2
}

func (Segment) Kind() Kind { return KindSegment }

func (s Segment) ElementID() uint64 { return s.GID }

func (s Segment) Shape() geometry.Shape {
	return geometry.Cylinder{P1: s.P1, P2: s.P2, Radius: s.Radius}
}

// Synapse is a point-like connection; PostGID/PreGID identify the neurons on
// either side and feed the aggregated per-gid counts.
type Synapse struct {
	ID      uint64
	PostGID uint64
	PreGID  uint64
	Center  geometry.Point3D
}

func (s Synapse) BoundingBox() geometry.Box3D {
	return geometry.Box3D{Min: s.Center, Max: s.Center}
}

func (s Synapse) Centroid() geometry.Point3D { return s.Center }

func (s Synapse) CentroidCoord(dim int) geometry.CoordType { return s.Center.Coord(dim) }

func (Synapse) Kind() Kind { return KindSynapse }

func (s Synapse) ElementID() uint64 { return s.ID }

func (s Synapse) Shape() geometry.Shape {
	return geometry.Sphere{Centroid: s.Center, Radius: 0}
}

// IndexedSphere is a generic sphere with an id.
type IndexedSphere struct {
	ID     uint64
	Center geometry.Point3D
	Radius geometry.CoordType
}

func (s IndexedSphere) BoundingBox() geometry.Box3D { return s.Shape().BoundingBox() }

func (s IndexedSphere) Centroid() geometry.Point3D { return s.Center }

func (s IndexedSphere) CentroidCoord(dim int) geometry.CoordType { return s.Center.Coord(dim) }

func (IndexedSphere) Kind() Kind { return KindSphere }

func (s IndexedSphere) ElementID() uint64 { return s.ID }

func (s IndexedSphere) Shape() geometry.Shape {
	return geometry.Sphere{Centroid: s.Center, Radius: s.Radius}
}

// MorphoEntry is the Soma|Segment tagged union held by morphology indexes.
// The payload is inline: a soma stores its center in P1 and leaves P2,
// SectionID and SegmentID zero.
type MorphoEntry struct {
	EntryKind Kind
	GID       uint64
	SectionID uint32
	SegmentID uint32
	P1, P2    geometry.Point3D
	Radius    geometry.CoordType
}

// NewSomaEntry wraps a Soma as a MorphoEntry.
func NewSomaEntry(s Soma) MorphoEntry {
	return MorphoEntry{EntryKind: KindSoma, GID: s.GID, P1: s.Center, Radius: s.Radius}
}

// NewSegmentEntry wraps a Segment as a MorphoEntry.
func NewSegmentEntry(s Segment) MorphoEntry {
	return MorphoEntry{
		EntryKind: KindSegment,
		GID:       s.GID,
		SectionID: s.SectionID,
		SegmentID: s.SegmentID,
		P1:        s.P1,
		P2:        s.P2,
		Radius:    s.Radius,
	}
}

func (e MorphoEntry) BoundingBox() geometry.Box3D { return e.Shape().BoundingBox() }

func (e MorphoEntry) Centroid() geometry.Point3D {
	if e.EntryKind == KindSoma {
		return e.P1
	}
	return e.P1.Add(e.P2).Scale(0.5)
}

func (e MorphoEntry) CentroidCoord(dim int) geometry.CoordType {
	if e.EntryKind == KindSoma {
		return e.P1.Coord(dim)
	}
	return (e.P1.Coord(dim) + e.P2.Coord(dim)) / 2
}

func (e MorphoEntry) Kind() Kind { return e.EntryKind }

func (e MorphoEntry) ElementID() uint64 { return e.GID }

func (e MorphoEntry) Shape() geometry.Shape {
	if e.EntryKind == KindSoma {
		return geometry.Sphere{Centroid: e.P1, Radius: e.Radius}
	}
	return geometry.Cylinder{P1: e.P1, P2: e.P2, Radius: e.Radius}
}
