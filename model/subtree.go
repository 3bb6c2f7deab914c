package model

import (
	"fmt"

	"github.com/hupe1980/morphidx/geometry"
)

// KindSubTree tags sub-tree descriptors, the values of a multi-index top
// tree.
const KindSubTree Kind = 4

var _ Indexed = SubTreeRef{}

// SubTreeRef describes one persisted sub-tree of a multi-index: its id, the
// MBR of its contents and the element count used by cache eviction
// accounting.
type SubTreeRef struct {
	ID        uint64
	MBR       geometry.Box3D
	NElements uint64
}

func (r SubTreeRef) BoundingBox() geometry.Box3D { return r.MBR }

func (r SubTreeRef) Centroid() geometry.Point3D { return r.MBR.Center() }

func (r SubTreeRef) CentroidCoord(dim int) geometry.CoordType {
	return r.MBR.Center().Coord(dim)
}

func (SubTreeRef) Kind() Kind { return KindSubTree }

func (r SubTreeRef) ElementID() uint64 { return r.ID }

func (r SubTreeRef) Shape() geometry.Shape { return r.MBR }

// SubTreeRefCodec encodes SubTreeRef values.
type SubTreeRefCodec struct{}

func (SubTreeRefCodec) Size() int { return 8 + 12 + 12 + 8 }

func (SubTreeRefCodec) Append(dst []byte, r SubTreeRef) []byte {
	dst = order.AppendUint64(dst, r.ID)
	dst = appendPoint(dst, r.MBR.Min)
	dst = appendPoint(dst, r.MBR.Max)
	dst = order.AppendUint64(dst, r.NElements)
	return dst
}

func (c SubTreeRefCodec) Decode(b []byte) (SubTreeRef, error) {
	if len(b) < c.Size() {
		return SubTreeRef{}, fmt.Errorf("model: short sub-tree record: %d bytes", len(b))
	}
	return SubTreeRef{
		ID: order.Uint64(b),
		MBR: geometry.Box3D{
			Min: decodePoint(b[8:]),
			Max: decodePoint(b[20:]),
		},
		NElements: order.Uint64(b[32:]),
	}, nil
}
