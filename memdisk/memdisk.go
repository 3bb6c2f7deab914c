// Package memdisk implements single-file persistent trees: the tree nodes
// are flattened into an offset-based arena inside the file, so an opened
// index is queried straight off the memory mapping without deserializing.
//
// A file begins with the versioning header; opening a file whose struct
// version differs from the current one fails hard, a platform format
// difference is only warned about. Files are created once, via an in-memory
// builder flushed on Close, and are read-only afterwards.
package memdisk

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hupe1980/morphidx/geometry"
	"github.com/hupe1980/morphidx/internal/mmap"
	"github.com/hupe1980/morphidx/model"
	"github.com/hupe1980/morphidx/persistence"
	"github.com/hupe1980/morphidx/rtree"
)

// ErrReadOnly is returned when inserting into an opened (rather than
// created) file.
var ErrReadOnly = errors.New("memdisk: file is opened read-only")

// Options configure a memory-mapped tree.
type Options struct {
	// SizeMB is the size of the file reserved at creation, in MiB.
	SizeMB int

	// CloseShrink trims the file to its used size on Close.
	CloseShrink bool

	// Logger receives the platform-format warning and close diagnostics.
	Logger *slog.Logger
}

// DefaultOptions are the default memory-mapped tree options.
var DefaultOptions = Options{
	SizeMB:      1024,
	CloseShrink: false,
}

// Tree is a memory-mapped R-tree. In create mode it accumulates values in
// an in-memory builder and flattens them into the file on Close; in open
// mode it answers queries directly from the mapping. One process owns the
// file exclusively.
type Tree[V model.Indexed] struct {
	codec    model.Codec[V]
	opts     Options
	filename string

	// create mode
	builder *rtree.Tree[V]

	// open mode
	mapping *mmap.File
	layout  *layout
}

// Create reserves a file of the configured size and returns a tree in
// create mode. An existing file at filename is removed first.
func Create[V model.Indexed](filename string, codec model.Codec[V], optFns ...func(o *Options)) (*Tree[V], error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SizeMB < 1 {
		opts.SizeMB = 1
	}

	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("memdisk: could not delete existing file %s: %w", filename, err)
	}

	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	// Reserve the full requested size up front to avoid resizes while the
	// index is built.
	if err := f.Truncate(int64(opts.SizeMB) * 1024 * 1024); err != nil {
		f.Close()
		_ = os.Remove(filename)
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	return &Tree[V]{
		codec:    codec,
		opts:     opts,
		filename: filename,
		builder:  rtree.New(codec),
	}, nil
}

// Open maps an existing file read-only and verifies its versioning header.
func Open[V model.Indexed](filename string, codec model.Codec[V], optFns ...func(o *Options)) (*Tree[V], error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m, err := mmap.Open(filename)
	if err != nil {
		return nil, err
	}

	lay, platformVersion, err := parseLayout(m.Data)
	if err != nil {
		m.Close()
		return nil, err
	}
	if lay.elementCount > 0 && lay.valueSize != codec.Size() {
		m.Close()
		return nil, fmt.Errorf("memdisk: file stores %d-byte values, codec expects %d",
			lay.valueSize, codec.Size())
	}
	if platformVersion != persistence.PlatformFormatVersion {
		opts.Logger.Warn("platform format version mismatch; "+
			"load an index built with the matching platform format to ensure compatibility",
			"expected", persistence.PlatformFormatVersion,
			"got", platformVersion,
		)
	}

	return &Tree[V]{
		codec:    codec,
		opts:     opts,
		filename: filename,
		mapping:  m,
		layout:   lay,
	}, nil
}

// Insert adds a value. Only valid in create mode.
func (t *Tree[V]) Insert(v V) error {
	if t.builder == nil {
		return ErrReadOnly
	}
	t.builder.Insert(v)
	return nil
}

// InsertBulk adds a batch of values. Only valid in create mode.
func (t *Tree[V]) InsertBulk(values []V) error {
	if t.builder == nil {
		return ErrReadOnly
	}
	for _, v := range values {
		t.builder.Insert(v)
	}
	return nil
}

// Place attempts a non-overlapping insert. Only valid in create mode.
func (t *Tree[V]) Place(region geometry.Box3D, v V) (bool, error) {
	if t.builder == nil {
		return false, ErrReadOnly
	}
	return t.builder.Place(region, v)
}

// Len returns the number of stored values.
func (t *Tree[V]) Len() int {
	if t.builder != nil {
		return t.builder.Len()
	}
	return t.layout.elementCount
}

// Bounds returns the MBR of the root; the empty sentinel for an empty tree.
func (t *Tree[V]) Bounds() geometry.Box3D {
	if t.builder != nil {
		return t.builder.Bounds()
	}
	if t.layout.nodeCount == 0 {
		return geometry.EmptyBox()
	}
	return t.layout.nodeMBR(t.layout.rootIndex)
}

// IsIntersecting reports whether some stored value intersects shape under
// the given geometry policy.
func (t *Tree[V]) IsIntersecting(shape geometry.Shape, geom rtree.Geometry) bool {
	if t.builder != nil {
		return t.builder.IsIntersecting(shape, geom)
	}
	found := false
	t.search(shape.BoundingBox(), func(v V) bool {
		if geom == rtree.BoundingBoxGeometry || geometry.Intersects(shape, v.Shape()) {
			found = true
			return false
		}
		return true
	})
	return found
}

// FindIntersecting returns the ids of all values intersecting shape.
func (t *Tree[V]) FindIntersecting(shape geometry.Shape, geom rtree.Geometry) []uint64 {
	if t.builder != nil {
		return t.builder.FindIntersecting(shape, geom)
	}
	var ids []uint64
	t.search(shape.BoundingBox(), func(v V) bool {
		if geom == rtree.BoundingBoxGeometry || geometry.Intersects(shape, v.Shape()) {
			ids = append(ids, v.ElementID())
		}
		return true
	})
	return ids
}

// FindIntersectingObjs returns the full values intersecting shape.
func (t *Tree[V]) FindIntersectingObjs(shape geometry.Shape, geom rtree.Geometry) []V {
	if t.builder != nil {
		return t.builder.FindIntersectingObjs(shape, geom)
	}
	var out []V
	t.search(shape.BoundingBox(), func(v V) bool {
		if geom == rtree.BoundingBoxGeometry || geometry.Intersects(shape, v.Shape()) {
			out = append(out, v)
		}
		return true
	})
	return out
}

// CountIntersecting counts the values intersecting shape.
func (t *Tree[V]) CountIntersecting(shape geometry.Shape, geom rtree.Geometry) int {
	count := 0
	if t.builder != nil {
		return t.builder.CountIntersecting(shape, geom)
	}
	t.search(shape.BoundingBox(), func(v V) bool {
		if geom == rtree.BoundingBoxGeometry || geometry.Intersects(shape, v.Shape()) {
			count++
		}
		return true
	})
	return count
}

// search walks the mapped node records depth-first, decoding leaf values
// whose bounding boxes overlap box.
func (t *Tree[V]) search(box geometry.Box3D, visit func(v V) bool) {
	lay := t.layout
	if lay.nodeCount == 0 {
		return
	}

	stack := []int{lay.rootIndex}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !lay.nodeMBR(idx).Overlaps(box) {
			continue
		}

		first, count, leaf := lay.nodeEntries(idx)
		if leaf {
			for i := 0; i < count; i++ {
				v, err := t.codec.Decode(lay.valueRecord(first+i, t.codec.Size()))
				if err != nil {
					// A decode failure here means the mapping is corrupt;
					// the versioning header should have caught format skew.
					return
				}
				if v.BoundingBox().Overlaps(box) {
					if !visit(v) {
						return
					}
				}
			}
			continue
		}
		for i := count - 1; i >= 0; i-- {
			stack = append(stack, first+i)
		}
	}
}

// Close flushes a created tree into its file (optionally shrinking it to the
// used size) or unmaps an opened one.
func (t *Tree[V]) Close() error {
	if t.mapping != nil {
		m := t.mapping
		t.mapping = nil
		return m.Close()
	}
	if t.builder == nil {
		return nil // already closed
	}

	builder := t.builder
	t.builder = nil

	used, err := writeLayout(t.filename, builder, t.codec)
	if err != nil {
		return err
	}

	if t.opts.CloseShrink {
		t.opts.Logger.Info("shrinking memory mapped file", "filename", t.filename, "size", used)
		if err := os.Truncate(t.filename, used); err != nil {
			return err
		}
	}
	return nil
}
