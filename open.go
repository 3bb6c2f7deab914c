package morphidx

import (
	"context"

	"github.com/hupe1980/morphidx/blobstore"
	"github.com/hupe1980/morphidx/comm"
	"github.com/hupe1980/morphidx/distributed"
	"github.com/hupe1980/morphidx/memdisk"
	"github.com/hupe1980/morphidx/model"
	"github.com/hupe1980/morphidx/multiindex"
)

// SphereMultiIndex is an out-of-core sphere index.
type SphereMultiIndex = multiindex.Tree[model.IndexedSphere]

// MorphMultiIndex is an out-of-core morphology index.
type MorphMultiIndex = multiindex.Tree[model.MorphoEntry]

// SynapseMultiIndex is an out-of-core synapse index.
type SynapseMultiIndex = multiindex.Tree[model.Synapse]

// OpenMultiIndex opens a persisted multi-index from store. Cache and query
// diagnostics are routed through logger; pass nil to disable logging.
func OpenMultiIndex[V model.Indexed](ctx context.Context, store blobstore.Store, codec model.Codec[V], logger *Logger, optFns ...func(o *multiindex.Options)) (*multiindex.Tree[V], error) {
	if logger == nil {
		logger = NoopLogger()
	}

	storage := multiindex.NewStorage(store, codec)
	tree, err := multiindex.Open(ctx, storage, append(optFns, func(o *multiindex.Options) {
		o.Logger = logger.Logger
	})...)
	if err != nil {
		logger.ErrorContext(ctx, "failed to open multi-index", "error", err)
		return nil, err
	}

	logger.InfoContext(ctx, "multi-index opened", "sub_trees", tree.SubTreeCount())
	return tree, nil
}

// BuildMultiIndex runs the collective bulk build of a multi-index over c,
// indexing this rank's values into store. Build progress is logged through
// logger, tagged with the calling rank; pass nil to disable logging. A nil
// communicator (a rank outside the build subset) returns immediately.
func BuildMultiIndex[V model.Indexed](ctx context.Context, c comm.Comm, store blobstore.Store, codec model.Codec[V], values []V, logger *Logger, optFns ...func(o *distributed.BuilderOptions)) (*distributed.BulkBuilder[V], error) {
	if logger == nil {
		logger = NoopLogger()
	}
	if c != nil {
		logger = logger.WithRank(c.Rank())
	}

	storage := multiindex.NewStorage(store, codec)
	b := distributed.NewBulkBuilder(storage, codec, append(optFns, func(o *distributed.BuilderOptions) {
		o.Logger = logger.Logger
	})...)
	b.Reserve(len(values))
	b.InsertBulk(values)

	if err := b.Finalize(ctx, c); err != nil {
		logger.ErrorContext(ctx, "multi-index build failed", "error", err)
		return nil, err
	}
	if c != nil {
		total, _ := b.Size()
		logger.InfoContext(ctx, "multi-index build finalized",
			"local_elements", b.LocalSize(),
			"total_elements", total,
		)
	}
	return b, nil
}

// CreateMemDiskIndex creates a memory-mapped index file in create mode,
// routing close and shrink diagnostics through logger.
func CreateMemDiskIndex[V model.Indexed](filename string, codec model.Codec[V], logger *Logger, optFns ...func(o *memdisk.Options)) (*memdisk.Tree[V], error) {
	if logger == nil {
		logger = NoopLogger()
	}
	return memdisk.Create(filename, codec, append(optFns, func(o *memdisk.Options) {
		o.Logger = logger.Logger
	})...)
}

// OpenMemDiskIndex opens a memory-mapped index file read-only. The
// platform-format warning of the versioning header goes through logger.
func OpenMemDiskIndex[V model.Indexed](filename string, codec model.Codec[V], logger *Logger, optFns ...func(o *memdisk.Options)) (*memdisk.Tree[V], error) {
	if logger == nil {
		logger = NoopLogger()
	}
	return memdisk.Open(filename, codec, append(optFns, func(o *memdisk.Options) {
		o.Logger = logger.Logger
	})...)
}
