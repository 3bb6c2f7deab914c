package model

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hupe1980/morphidx/geometry"
)

// Codec is a fixed-size little-endian binary codec for a value type. The
// tree serializer and the distributed byte exchange share these encodings;
// byte order is fixed regardless of host (portability of persisted files
// across builds is still not guaranteed, see the struct version tag).
type Codec[V any] interface {
	// Size returns the encoded size in bytes; every value of V encodes to
	// exactly this many bytes.
	Size() int
	// Append appends the encoding of v to dst and returns the extended slice.
	Append(dst []byte, v V) []byte
	// Decode decodes one value from the first Size() bytes of b.
	Decode(b []byte) (V, error)
}

var order = binary.LittleEndian

func appendPoint(dst []byte, p geometry.Point3D) []byte {
	dst = order.AppendUint32(dst, math.Float32bits(p.X))
	dst = order.AppendUint32(dst, math.Float32bits(p.Y))
	dst = order.AppendUint32(dst, math.Float32bits(p.Z))
	return dst
}

func decodePoint(b []byte) geometry.Point3D {
	return geometry.Point3D{
		X: math.Float32frombits(order.Uint32(b)),
		Y: math.Float32frombits(order.Uint32(b[4:])),
		Z: math.Float32frombits(order.Uint32(b[8:])),
	}
}

// SomaCodec encodes Soma values: gid, center, radius.
type SomaCodec struct{}

func (SomaCodec) Size() int { return 8 + 12 + 4 }

func (SomaCodec) Append(dst []byte, s Soma) []byte {
	dst = order.AppendUint64(dst, s.GID)
	dst = appendPoint(dst, s.Center)
	dst = order.AppendUint32(dst, math.Float32bits(s.Radius))
	return dst
}

func (c SomaCodec) Decode(b []byte) (Soma, error) {
	if len(b) < c.Size() {
		return Soma{}, fmt.Errorf("model: short soma record: %d bytes", len(b))
	}
	return Soma{
		GID:    order.Uint64(b),
		Center: decodePoint(b[8:]),
		Radius: math.Float32frombits(order.Uint32(b[20:])),
	}, nil
}

// SegmentCodec encodes Segment values.
type SegmentCodec struct{}

func (SegmentCodec) Size() int { return 8 + 4 + 4 + 12 + 12 + 4 }

func (SegmentCodec) Append(dst []byte, s Segment) []byte {
	dst = order.AppendUint64(dst, s.GID)
	dst = order.AppendUint32(dst, s.SectionID)
	dst = order.AppendUint32(dst, s.SegmentID)
	dst = appendPoint(dst, s.P1)
	dst = appendPoint(dst, s.P2)
	dst = order.AppendUint32(dst, math.Float32bits(s.Radius))
	return dst
}

func (c SegmentCodec) Decode(b []byte) (Segment, error) {
	if len(b) < c.Size() {
		return Segment{}, fmt.Errorf("model: short segment record: %d bytes", len(b))
	}
	return Segment{
		GID:       order.Uint64(b),
		SectionID: order.Uint32(b[8:]),
		SegmentID: order.Uint32(b[12:]),
		P1:        decodePoint(b[16:]),
		P2:        decodePoint(b[28:]),
		Radius:    math.Float32frombits(order.Uint32(b[40:])),
	}, nil
}

// SynapseCodec encodes Synapse values.
type SynapseCodec struct{}

func (SynapseCodec) Size() int { return 8 + 8 + 8 + 12 }

func (SynapseCodec) Append(dst []byte, s Synapse) []byte {
	dst = order.AppendUint64(dst, s.ID)
	dst = order.AppendUint64(dst, s.PostGID)
	dst = order.AppendUint64(dst, s.PreGID)
	dst = appendPoint(dst, s.Center)
	return dst
}

func (c SynapseCodec) Decode(b []byte) (Synapse, error) {
	if len(b) < c.Size() {
		return Synapse{}, fmt.Errorf("model: short synapse record: %d bytes", len(b))
	}
	return Synapse{
		ID:      order.Uint64(b),
		PostGID: order.Uint64(b[8:]),
		PreGID:  order.Uint64(b[16:]),
		Center:  decodePoint(b[24:]),
	}, nil
}

// SphereCodec encodes IndexedSphere values.
type SphereCodec struct{}

func (SphereCodec) Size() int { return 8 + 12 + 4 }

func (SphereCodec) Append(dst []byte, s IndexedSphere) []byte {
	dst = order.AppendUint64(dst, s.ID)
	dst = appendPoint(dst, s.Center)
	dst = order.AppendUint32(dst, math.Float32bits(s.Radius))
	return dst
}

func (c SphereCodec) Decode(b []byte) (IndexedSphere, error) {
	if len(b) < c.Size() {
		return IndexedSphere{}, fmt.Errorf("model: short sphere record: %d bytes", len(b))
	}
	return IndexedSphere{
		ID:     order.Uint64(b),
		Center: decodePoint(b[8:]),
		Radius: math.Float32frombits(order.Uint32(b[20:])),
	}, nil
}

// MorphoCodec encodes MorphoEntry values. Somas and segments share the full
// record; a soma leaves P2 and the section/segment ids zero.
type MorphoCodec struct{}

func (MorphoCodec) Size() int { return 1 + 8 + 4 + 4 + 12 + 12 + 4 }

func (MorphoCodec) Append(dst []byte, e MorphoEntry) []byte {
	dst = append(dst, byte(e.EntryKind))
	dst = order.AppendUint64(dst, e.GID)
	dst = order.AppendUint32(dst, e.SectionID)
	dst = order.AppendUint32(dst, e.SegmentID)
	dst = appendPoint(dst, e.P1)
	dst = appendPoint(dst, e.P2)
	dst = order.AppendUint32(dst, math.Float32bits(e.Radius))
	return dst
}

func (c MorphoCodec) Decode(b []byte) (MorphoEntry, error) {
	if len(b) < c.Size() {
		return MorphoEntry{}, fmt.Errorf("model: short morphology record: %d bytes", len(b))
	}
	kind := Kind(b[0])
	if kind != KindSoma && kind != KindSegment {
		return MorphoEntry{}, fmt.Errorf("model: invalid morphology kind tag %d", kind)
	}
	return MorphoEntry{
		EntryKind: kind,
		GID:       order.Uint64(b[1:]),
		SectionID: order.Uint32(b[9:]),
		SegmentID: order.Uint32(b[13:]),
		P1:        decodePoint(b[17:]),
		P2:        decodePoint(b[29:]),
		Radius:    math.Float32frombits(order.Uint32(b[41:])),
	}, nil
}
