package morphidx

import (
	"github.com/hupe1980/morphidx/geometry"
	"github.com/hupe1980/morphidx/model"
	"github.com/hupe1980/morphidx/rtree"
)

// SphereIndex indexes generic spheres (or points, with zero radii).
type SphereIndex = rtree.Tree[model.IndexedSphere]

// MorphIndex indexes heterogeneous morphologies: somas and segments.
type MorphIndex = rtree.Tree[model.MorphoEntry]

// SynapseIndex indexes point-like synapses, keeping the neuron gids for
// aggregated counts.
type SynapseIndex = rtree.Tree[model.Synapse]

// NewSphereIndex bulk loads a sphere index from parallel centroid, radius
// and id arrays. Radii may be nil, producing a point index.
func NewSphereIndex(centroids []geometry.Point3D, radii []float32, ids []uint64, optFns ...func(o *rtree.Options)) (*SphereIndex, error) {
	if radii != nil {
		if err := validateLengths(len(centroids), len(radii), len(ids)); err != nil {
			return nil, err
		}
		if err := validateRadii(radii); err != nil {
			return nil, err
		}
	} else if err := validateLengths(len(centroids), len(ids)); err != nil {
		return nil, err
	}

	values := make([]model.IndexedSphere, len(centroids))
	for i, c := range centroids {
		var r float32
		if radii != nil {
			r = radii[i]
		}
		values[i] = model.IndexedSphere{ID: ids[i], Center: c, Radius: r}
	}
	return rtree.NewBulkLoaded(values, model.SphereCodec{}, optFns...), nil
}

// NewMorphIndex creates an empty morphology index for incremental
// construction.
func NewMorphIndex(optFns ...func(o *rtree.Options)) *MorphIndex {
	return rtree.New[model.MorphoEntry](model.MorphoCodec{}, optFns...)
}

// NewMorphIndexFromEntries bulk loads a morphology index.
func NewMorphIndexFromEntries(entries []model.MorphoEntry, optFns ...func(o *rtree.Options)) *MorphIndex {
	return rtree.NewBulkLoaded(entries, model.MorphoCodec{}, optFns...)
}

// AddSoma inserts a soma into a morphology index.
func AddSoma(t *MorphIndex, gid uint64, center geometry.Point3D, radius float32) {
	t.Insert(model.NewSomaEntry(model.Soma{GID: gid, Center: center, Radius: radius}))
}

// AddSegment inserts one segment into a morphology index.
func AddSegment(t *MorphIndex, seg model.Segment) {
	t.Insert(model.NewSegmentEntry(seg))
}

// AddNeuron inserts a soma and the segments of one neuron. Each segment's GID
// is set to gid; section and segment ids are stored as given.
func AddNeuron(t *MorphIndex, gid uint64, soma model.Soma, segments []model.Segment) {
	t.Insert(model.NewSomaEntry(soma))
	for _, seg := range segments {
		seg.GID = gid
		t.Insert(model.NewSegmentEntry(seg))
	}
}

// NewSynapseIndex bulk loads a synapse index from parallel arrays.
func NewSynapseIndex(ids, postGIDs, preGIDs []uint64, centers []geometry.Point3D, optFns ...func(o *rtree.Options)) (*SynapseIndex, error) {
	if err := validateLengths(len(ids), len(postGIDs), len(preGIDs), len(centers)); err != nil {
		return nil, err
	}

	values := make([]model.Synapse, len(ids))
	for i := range ids {
		values[i] = model.Synapse{
			ID:      ids[i],
			PostGID: postGIDs[i],
			PreGID:  preGIDs[i],
			Center:  centers[i],
		}
	}
	return rtree.NewBulkLoaded(values, model.SynapseCodec{}, optFns...), nil
}
