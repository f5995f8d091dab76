package octree

// NeighborCount is the number of voxels adjacent to a voxel.
const NeighborCount = 26

var neighborOffsets [][3]int

func init() {
	for _, x := range []int{-1, 0, 1} {
		for _, y := range []int{-1, 0, 1} {
			for _, z := range []int{-1, 0, 1} {
				if x == 0 && y == 0 && z == 0 {
					continue
				}
				neighborOffsets = append(neighborOffsets, [3]int{x, y, z})
			}
		}
	}
}

// NeighborOffset returns the offset of the i-th neighbor.
func NeighborOffset(i int) [3]int {
	return neighborOffsets[i]
}

// Adjacency returns 1 for face, 2 for edge and 3 for corner neighbors.
func Adjacency(i int) int {
	var n int
	for _, d := range neighborOffsets[i] {
		if d != 0 {
			n++
		}
	}
	return n
}

// NeighborByIndex is Neighbor with the i-th of the NeighborCount offsets.
func (o *Octree) NeighborByIndex(id NodeID, i int, forceChildren bool) (NodeID, error) {
	return o.Neighbor(id, neighborOffsets[i], forceChildren)
}

// Neighbor returns the node at the same depth as id shifted by offset voxels.
//
// If the neighbor does not exist, the deepest existing node covering it is returned.
// With forceChildren, missing nodes on the way are created by filling every child
// slot of their parents, so the returned node is always at the depth of id.
// NoNode is returned if the neighbor is outside of the tree.
func (o *Octree) Neighbor(id NodeID, offset [3]int, forceChildren bool) (NodeID, error) {
	if forceChildren {
		o.writers.Inc()
		defer o.writers.Dec()
	}
	n := &o.arena.nodes[id]
	depth := int(n.depth)
	target, ok := n.key.add(offset)
	if !ok || !target.inRange(depth) {
		return NoNode, nil
	}

	// Ascend to the common ancestor, recording the slots of the target path.
	var path [MaxDepth]uint8
	var levels int
	cur := id
	for {
		c := &o.arena.nodes[cur]
		shift := uint(depth - int(c.depth))
		if c.key == target.Ancestor(shift) {
			break
		}
		path[levels] = target.ChildIndex(shift)
		levels++
		cur = c.parent
	}

	for l := levels - 1; l >= 0; l-- {
		child := o.arena.nodes[cur].children[path[l]]
		if child == NoNode {
			if !forceChildren {
				return cur, nil
			}
			if err := o.initChildren(cur); err != nil {
				return NoNode, err
			}
			child = o.arena.nodes[cur].children[path[l]]
		}
		cur = child
	}
	return cur, nil
}
