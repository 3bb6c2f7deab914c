package rtree

import "github.com/hupe1980/morphidx/geometry"

// FlatNode is the position-independent node record used by offset-based
// persistence: instead of pointers, a node references a contiguous range of
// child nodes or values by index.
type FlatNode struct {
	MBR   geometry.Box3D
	Leaf  bool
	First int // index of the first child node, or of the first value
	Count int
}

// Flatten linearizes the tree breadth-first into flat node records and the
// values in leaf order. The root is record 0; every node's children occupy
// the contiguous index range [First, First+Count).
func (t *Tree[V]) Flatten() ([]FlatNode, []V) {
	if t.root == nil {
		return nil, nil
	}

	nodes := []*node[V]{t.root}
	flat := make([]FlatNode, 0, 1)
	values := make([]V, 0, t.count)

	for i := 0; i < len(nodes); i++ {
		n := nodes[i]
		fn := FlatNode{MBR: n.mbr, Leaf: n.isLeaf()}
		if n.isLeaf() {
			fn.First = len(values)
			fn.Count = len(n.values)
			values = append(values, n.values...)
		} else {
			fn.First = len(nodes)
			fn.Count = len(n.children)
			nodes = append(nodes, n.children...)
		}
		flat = append(flat, fn)
	}
	return flat, values
}
