// Package morphidx is a 3D spatial index for neural morphology data: neuron
// somas, dendritic and axonal segments, and synapses.
//
// Indexes are bulk loaded R-trees over heterogeneous shapes with exact
// sphere/cylinder/box intersection geometry. Three persistent forms exist:
//
//   - in-memory trees dumped to a single file (rtree)
//   - memory-mapped single-file trees queried without deserializing (memdisk)
//   - out-of-core multi-indexes: a top tree over many persisted sub-trees,
//     with a usage-rate cache bounding resident memory (multiindex)
//
// Multi-indexes are built collectively across ranks with two-level
// sort-tile-recursion (distributed, comm) and can live on local disk, S3 or
// MinIO (blobstore).
//
// This package is the convenience surface: typed index constructors over the
// generic tree, matching the shapes analysis code works with.
package morphidx
