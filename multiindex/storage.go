// Package multiindex implements the out-of-core index form: a fully loaded
// top tree over sub-tree descriptors, many persisted sub-trees, and a
// usage-rate cache deciding which sub-trees stay resident during query
// streams.
package multiindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hupe1980/morphidx/blobstore"
	"github.com/hupe1980/morphidx/model"
	"github.com/hupe1980/morphidx/persistence"
	"github.com/hupe1980/morphidx/rtree"
)

const (
	topTreeFileName = "top.bin"
	metaFileName    = "meta.json"
)

// Meta is the descriptor identifying an index directory.
type Meta struct {
	Kind          string `json:"kind"` // "in_memory", "memory_mapped" or "multi_index"
	StructVersion uint32 `json:"struct_version"`
	SubTrees      uint64 `json:"sub_trees"`
	ElementCount  uint64 `json:"element_count"`
}

// MetaKind values for Meta.Kind.
const (
	MetaKindInMemory     = "in_memory"
	MetaKindMemoryMapped = "memory_mapped"
	MetaKindMultiIndex   = "multi_index"
)

func subTreeFileName(id uint64) string {
	return fmt.Sprintf("sub_%d.bin", id)
}

// Storage owns the filename discipline of a multi-index: top tree, numbered
// sub-trees and the meta descriptor, all accessed through a blob store. The
// file format is whatever the tree serializer writes.
type Storage[V model.Indexed] struct {
	store blobstore.Store
	codec model.Codec[V]
	opts  []func(o *rtree.Options)
}

// NewStorage creates storage over the given blob store. The tree options are
// applied to every loaded sub-tree.
func NewStorage[V model.Indexed](store blobstore.Store, codec model.Codec[V], optFns ...func(o *rtree.Options)) *Storage[V] {
	return &Storage[V]{store: store, codec: codec, opts: optFns}
}

// Codec returns the value codec; the cache derives its element budget from
// the codec's encoded size.
func (s *Storage[V]) Codec() model.Codec[V] { return s.codec }

// SaveTop persists the top tree.
func (s *Storage[V]) SaveTop(ctx context.Context, t *rtree.Tree[model.SubTreeRef]) error {
	return s.saveTree(ctx, topTreeFileName, t.WriteTo)
}

// SaveSub persists sub-tree id.
func (s *Storage[V]) SaveSub(ctx context.Context, id uint64, t *rtree.Tree[V]) error {
	return s.saveTree(ctx, subTreeFileName(id), t.WriteTo)
}

func (s *Storage[V]) saveTree(ctx context.Context, name string, writeTo func(io.Writer) (int64, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w, err := s.store.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := writeTo(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// LoadTop loads the top tree.
func (s *Storage[V]) LoadTop(ctx context.Context) (*rtree.Tree[model.SubTreeRef], error) {
	t := rtree.New[model.SubTreeRef](model.SubTreeRefCodec{})
	if err := s.loadTree(ctx, topTreeFileName, t.ReadFrom); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadSub loads sub-tree id.
func (s *Storage[V]) LoadSub(ctx context.Context, id uint64) (*rtree.Tree[V], error) {
	t := rtree.New(s.codec, s.opts...)
	if err := s.loadTree(ctx, subTreeFileName(id), t.ReadFrom); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Storage[V]) loadTree(ctx context.Context, name string, readFrom func(io.Reader) (int64, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	blob, err := s.store.Open(ctx, name)
	if err != nil {
		return err
	}
	defer blob.Close()

	_, err = readFrom(io.NewSectionReader(blob, 0, blob.Size()))
	return err
}

// WriteMeta persists the index descriptor.
func (s *Storage[V]) WriteMeta(ctx context.Context, meta Meta) error {
	meta.StructVersion = persistence.StructVersion
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	w, err := s.store.Create(ctx, metaFileName)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// ReadMeta loads and validates the index descriptor.
func (s *Storage[V]) ReadMeta(ctx context.Context) (Meta, error) {
	blob, err := s.store.Open(ctx, metaFileName)
	if err != nil {
		return Meta{}, err
	}
	defer blob.Close()

	buf := make([]byte, blob.Size())
	if _, err := io.ReadFull(io.NewSectionReader(blob, 0, blob.Size()), buf); err != nil {
		return Meta{}, err
	}

	var meta Meta
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&meta); err != nil {
		return Meta{}, err
	}
	if meta.StructVersion != persistence.StructVersion {
		return Meta{}, fmt.Errorf("%w: expected %d, got %d",
			persistence.ErrVersionMismatch, persistence.StructVersion, meta.StructVersion)
	}
	switch meta.Kind {
	case MetaKindInMemory, MetaKindMemoryMapped, MetaKindMultiIndex:
	default:
		return Meta{}, fmt.Errorf("%w: %q", persistence.ErrInvalidIndexKind, meta.Kind)
	}
	return meta, nil
}
