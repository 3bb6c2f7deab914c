package rtree

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/morphidx/geometry"
	"github.com/hupe1980/morphidx/model"
)

// CountIntersectingAggGID scans the synapses inside box and aggregates them
// by post-synaptic gid. Candidates come from MBR-overlapping leaves and are
// filtered exactly by point-in-box.
func CountIntersectingAggGID(t *Tree[model.Synapse], box geometry.Box3D) map[uint64]uint64 {
	counts := make(map[uint64]uint64)
	t.searchMBR(box, func(s model.Synapse) bool {
		if box.Contains(s.Center) {
			counts[s.PostGID]++
		}
		return true
	})
	return counts
}

// FindIntersectingGIDs returns the set of post-synaptic gids with at least
// one synapse inside box.
func FindIntersectingGIDs(t *Tree[model.Synapse], box geometry.Box3D) *roaring64.Bitmap {
	gids := roaring64.New()
	t.searchMBR(box, func(s model.Synapse) bool {
		if box.Contains(s.Center) {
			gids.Add(s.PostGID)
		}
		return true
	})
	return gids
}
