package rtree

import (
	"container/heap"

	"github.com/hupe1980/morphidx/geometry"
	"github.com/hupe1980/morphidx/model"
)

// searchMBR walks every value whose bounding box overlaps box. The visit
// callback returns false to stop the traversal early.
func (t *Tree[V]) searchMBR(box geometry.Box3D, visit func(v V) bool) {
	if t.root == nil {
		return
	}
	searchNode(t.root, box, visit)
}

func searchNode[V model.Indexed](n *node[V], box geometry.Box3D, visit func(v V) bool) bool {
	if !n.mbr.Overlaps(box) {
		return true
	}
	if n.isLeaf() {
		for _, v := range n.values {
			if v.BoundingBox().Overlaps(box) {
				if !visit(v) {
					return false
				}
			}
		}
		return true
	}
	for _, c := range n.children {
		if !searchNode(c, box, visit) {
			return false
		}
	}
	return true
}

// matches applies the geometry policy to a candidate that already passed the
// MBR filter.
func matches[V model.Indexed](v V, shape geometry.Shape, geom Geometry) bool {
	if geom == BoundingBoxGeometry {
		return true
	}
	return geometry.Intersects(shape, v.Shape())
}

// IsIntersecting reports whether some stored value intersects shape under
// the given geometry policy. It short-circuits on the first match.
func (t *Tree[V]) IsIntersecting(shape geometry.Shape, geom Geometry) bool {
	found := false
	t.searchMBR(shape.BoundingBox(), func(v V) bool {
		if matches(v, shape, geom) {
			found = true
			return false
		}
		return true
	})
	return found
}

// FindIntersecting returns the element ids of all stored values intersecting
// shape under the given geometry policy, in tree traversal order.
func (t *Tree[V]) FindIntersecting(shape geometry.Shape, geom Geometry) []uint64 {
	var ids []uint64
	t.searchMBR(shape.BoundingBox(), func(v V) bool {
		if matches(v, shape, geom) {
			ids = append(ids, v.ElementID())
		}
		return true
	})
	return ids
}

// FindIntersectingObjs returns the full values intersecting shape under the
// given geometry policy, in tree traversal order.
func (t *Tree[V]) FindIntersectingObjs(shape geometry.Shape, geom Geometry) []V {
	var out []V
	t.searchMBR(shape.BoundingBox(), func(v V) bool {
		if matches(v, shape, geom) {
			out = append(out, v)
		}
		return true
	})
	return out
}

// QueryIntersecting appends the values intersecting shape to out and returns
// the extended slice. This is the streaming form used by the multi-index.
func (t *Tree[V]) QueryIntersecting(shape geometry.Shape, geom Geometry, out []V) []V {
	t.searchMBR(shape.BoundingBox(), func(v V) bool {
		if matches(v, shape, geom) {
			out = append(out, v)
		}
		return true
	})
	return out
}

// CountIntersecting counts the stored values intersecting shape under the
// given geometry policy.
func (t *Tree[V]) CountIntersecting(shape geometry.Shape, geom Geometry) int {
	count := 0
	t.searchMBR(shape.BoundingBox(), func(v V) bool {
		if matches(v, shape, geom) {
			count++
		}
		return true
	})
	return count
}

// QueryWithin returns all values whose bounding box lies fully inside box,
// in tree traversal order.
func (t *Tree[V]) QueryWithin(box geometry.Box3D) []V {
	var out []V
	t.searchMBR(box, func(v V) bool {
		if box.ContainsBox(v.BoundingBox()) {
			out = append(out, v)
		}
		return true
	})
	return out
}

// nearest-neighbor search: a best-first traversal over a min-heap keyed by
// the distance from the query point to node MBRs and value centroids.

type nnItem[V model.Indexed] struct {
	node  *node[V]
	value V
	leaf  bool
	dist  float64
	order int // insertion order, breaks distance ties
}

type nnHeap[V model.Indexed] []nnItem[V]

func (h nnHeap[V]) Len() int { return len(h) }

func (h nnHeap[V]) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].order < h[j].order
}

func (h nnHeap[V]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *nnHeap[V]) Push(x any) { *h = append(*h, x.(nnItem[V])) }

func (h *nnHeap[V]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

func boxDist(b geometry.Box3D, p geometry.Point3D) float64 {
	return float64(b.ClosestPoint(p).Dist(p))
}

// FindNearest returns the element ids of the k values whose centroids are
// nearest to point, closest first. Distance ties are broken by stored order.
func (t *Tree[V]) FindNearest(point geometry.Point3D, k int) ([]uint64, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if t.root == nil {
		return nil, nil
	}

	order := 0
	h := &nnHeap[V]{}
	heap.Push(h, nnItem[V]{node: t.root, dist: boxDist(t.root.mbr, point), order: order})

	ids := make([]uint64, 0, k)
	for h.Len() > 0 && len(ids) < k {
		it := heap.Pop(h).(nnItem[V])

		if it.leaf {
			ids = append(ids, it.value.ElementID())
			continue
		}

		n := it.node
		if n.isLeaf() {
			for _, v := range n.values {
				order++
				heap.Push(h, nnItem[V]{
					value: v,
					leaf:  true,
					dist:  float64(v.Centroid().Dist(point)),
					order: order,
				})
			}
		} else {
			for _, c := range n.children {
				order++
				heap.Push(h, nnItem[V]{node: c, dist: boxDist(c.mbr, point), order: order})
			}
		}
	}
	return ids, nil
}
