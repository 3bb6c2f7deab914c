package memdisk

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/hupe1980/morphidx/geometry"
	"github.com/hupe1980/morphidx/internal/conv"
	"github.com/hupe1980/morphidx/model"
	"github.com/hupe1980/morphidx/persistence"
	"github.com/hupe1980/morphidx/rtree"
)

// On-file layout, after the 64-byte persistence header:
//
//	uint64 nodeCount
//	uint64 elementCount
//	uint64 rootIndex
//	uint32 valueSize
//	uint32 reserved
//	nodeCount * nodeRecordSize node records
//	elementCount * valueSize value records
//
// A node record is the MBR (6 float32), a flags word (bit 0 = leaf) and the
// first/count pair referencing child nodes or values by index. Everything is
// index- rather than pointer-based, so the file is position independent.

const (
	headerSize     = 64
	sectionMetaLen = 8 + 8 + 8 + 4 + 4
	nodeRecordSize = 24 + 4 + 4 + 4
)

var order = binary.LittleEndian

type layout struct {
	nodes  []byte
	values []byte

	nodeCount    int
	elementCount int
	rootIndex    int
	valueSize    int
}

func (l *layout) nodeMBR(idx int) geometry.Box3D {
	rec := l.nodes[idx*nodeRecordSize:]
	return geometry.Box3D{
		Min: geometry.Point3D{
			X: math.Float32frombits(order.Uint32(rec)),
			Y: math.Float32frombits(order.Uint32(rec[4:])),
			Z: math.Float32frombits(order.Uint32(rec[8:])),
		},
		Max: geometry.Point3D{
			X: math.Float32frombits(order.Uint32(rec[12:])),
			Y: math.Float32frombits(order.Uint32(rec[16:])),
			Z: math.Float32frombits(order.Uint32(rec[20:])),
		},
	}
}

func (l *layout) nodeEntries(idx int) (first, count int, leaf bool) {
	rec := l.nodes[idx*nodeRecordSize:]
	flags := order.Uint32(rec[24:])
	first = int(order.Uint32(rec[28:]))
	count = int(order.Uint32(rec[32:]))
	return first, count, flags&1 != 0
}

func (l *layout) valueRecord(i, size int) []byte {
	return l.values[i*size : (i+1)*size]
}

// writeLayout flattens the builder tree into the (preallocated) file and
// returns the number of bytes used.
func writeLayout[V model.Indexed](filename string, builder *rtree.Tree[V], codec model.Codec[V]) (int64, error) {
	flat, values := builder.Flatten()

	f, err := os.OpenFile(filename, os.O_RDWR, 0644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 256*1024)

	var headerBuf bytes.Buffer
	header := persistence.FileHeader{
		Magic:           persistence.MagicNumber,
		StructVersion:   persistence.StructVersion,
		PlatformVersion: persistence.PlatformFormatVersion,
		IndexKind:       persistence.IndexKindMemoryMapped,
		ElementCount:    uint64(len(values)),
		DataOffset:      headerSize,
	}
	if err := binary.Write(&headerBuf, order, &header); err != nil {
		return 0, err
	}
	if headerBuf.Len() != headerSize {
		return 0, fmt.Errorf("memdisk: header encodes to %d bytes, expected %d", headerBuf.Len(), headerSize)
	}
	if _, err := w.Write(headerBuf.Bytes()); err != nil {
		return 0, err
	}

	valueSize, err := conv.IntToUint32(codec.Size())
	if err != nil {
		return 0, err
	}

	meta := make([]byte, 0, sectionMetaLen)
	meta = order.AppendUint64(meta, uint64(len(flat)))
	meta = order.AppendUint64(meta, uint64(len(values)))
	meta = order.AppendUint64(meta, 0) // root index
	meta = order.AppendUint32(meta, valueSize)
	meta = order.AppendUint32(meta, 0)
	if _, err := w.Write(meta); err != nil {
		return 0, err
	}

	rec := make([]byte, 0, nodeRecordSize)
	for _, n := range flat {
		first, err := conv.IntToUint32(n.First)
		if err != nil {
			return 0, err
		}
		count, err := conv.IntToUint32(n.Count)
		if err != nil {
			return 0, err
		}

		rec = rec[:0]
		rec = appendBox(rec, n.MBR)
		flags := uint32(0)
		if n.Leaf {
			flags |= 1
		}
		rec = order.AppendUint32(rec, flags)
		rec = order.AppendUint32(rec, first)
		rec = order.AppendUint32(rec, count)
		if _, err := w.Write(rec); err != nil {
			return 0, err
		}
	}

	vbuf := make([]byte, 0, codec.Size())
	for _, v := range values {
		vbuf = codec.Append(vbuf[:0], v)
		if _, err := w.Write(vbuf); err != nil {
			return 0, err
		}
	}

	if err := w.Flush(); err != nil {
		return 0, err
	}
	if err := f.Sync(); err != nil {
		return 0, err
	}

	used := int64(headerSize + sectionMetaLen +
		len(flat)*nodeRecordSize + len(values)*codec.Size())
	return used, nil
}

func appendBox(dst []byte, b geometry.Box3D) []byte {
	dst = order.AppendUint32(dst, math.Float32bits(b.Min.X))
	dst = order.AppendUint32(dst, math.Float32bits(b.Min.Y))
	dst = order.AppendUint32(dst, math.Float32bits(b.Min.Z))
	dst = order.AppendUint32(dst, math.Float32bits(b.Max.X))
	dst = order.AppendUint32(dst, math.Float32bits(b.Max.Y))
	dst = order.AppendUint32(dst, math.Float32bits(b.Max.Z))
	return dst
}

// parseLayout validates the header of a mapped file and slices out the node
// and value sections. It returns the platform format version for the
// caller's warning path.
func parseLayout(data []byte) (*layout, uint32, error) {
	if len(data) < headerSize+sectionMetaLen {
		return nil, 0, fmt.Errorf("memdisk: file too small: %d bytes", len(data))
	}

	var header persistence.FileHeader
	if err := binary.Read(bytes.NewReader(data[:headerSize]), order, &header); err != nil {
		return nil, 0, err
	}
	if header.Magic != persistence.MagicNumber {
		return nil, 0, fmt.Errorf("%w: got 0x%08x", persistence.ErrInvalidMagic, header.Magic)
	}
	if header.StructVersion != persistence.StructVersion {
		return nil, 0, fmt.Errorf("%w: expected %d, got %d",
			persistence.ErrVersionMismatch, persistence.StructVersion, header.StructVersion)
	}

	meta := data[headerSize:]
	nodeCount, err := conv.Uint64ToInt(order.Uint64(meta))
	if err != nil {
		return nil, 0, err
	}
	elementCount, err := conv.Uint64ToInt(order.Uint64(meta[8:]))
	if err != nil {
		return nil, 0, err
	}
	rootIndex, err := conv.Uint64ToInt(order.Uint64(meta[16:]))
	if err != nil {
		return nil, 0, err
	}
	valueSize := int(order.Uint32(meta[24:]))

	nodesOff := headerSize + sectionMetaLen
	valuesOff := nodesOff + nodeCount*nodeRecordSize
	end := valuesOff + elementCount*valueSize
	if end > len(data) {
		return nil, 0, fmt.Errorf("memdisk: file truncated: need %d bytes, have %d", end, len(data))
	}

	return &layout{
		nodes:        data[nodesOff:valuesOff],
		values:       data[valuesOff:end],
		nodeCount:    nodeCount,
		elementCount: elementCount,
		rootIndex:    rootIndex,
		valueSize:    valueSize,
	}, header.PlatformVersion, nil
}
