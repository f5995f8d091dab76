package octree

// nextNode returns the depth first pre-order successor of id, not descending
// below maxDepth. It returns NoNode after the last node.
func (o *Octree) nextNode(id NodeID, maxDepth int) NodeID {
	n := &o.arena.nodes[id]
	if !n.isLeaf && int(n.depth) < maxDepth {
		for _, c := range n.children {
			if c != NoNode {
				return c
			}
		}
	}
	for {
		n := &o.arena.nodes[id]
		if n.parent == NoNode {
			return NoNode
		}
		p := &o.arena.nodes[n.parent]
		for s := n.slot + 1; s < 8; s++ {
			if c := p.children[s]; c != NoNode {
				return c
			}
		}
		id = n.parent
	}
}

func (o *Octree) nextLeaf(id NodeID) NodeID {
	for id = o.nextNode(id, o.depth); id != NoNode; id = o.nextNode(id, o.depth) {
		if o.arena.nodes[id].isLeaf {
			return id
		}
	}
	return NoNode
}

func (o *Octree) nextBranch(id NodeID) NodeID {
	for id = o.nextNode(id, o.depth); id != NoNode; id = o.nextNode(id, o.depth) {
		if !o.arena.nodes[id].isLeaf {
			return id
		}
	}
	return NoNode
}

// Walk calls fn for each node down to maxDepth in depth first pre-order
// until fn returns false.
func (o *Octree) Walk(maxDepth int, fn func(id NodeID, key Key, depth int) bool) {
	for id := o.root; id != NoNode; id = o.nextNode(id, maxDepth) {
		n := &o.arena.nodes[id]
		if !fn(id, n.key, int(n.depth)) {
			return
		}
	}
}

// Leaves calls fn for each leaf in depth first order until fn returns false.
func (o *Octree) Leaves(fn func(id NodeID, key Key, c LeafContainer) bool) {
	if o.root == NoNode {
		return
	}
	for id := o.nextLeaf(o.root); id != NoNode; id = o.nextLeaf(id) {
		n := &o.arena.nodes[id]
		if !fn(id, n.key, n.leaf) {
			return
		}
	}
}

// Branches calls fn for each branch in depth first order until fn returns false.
func (o *Octree) Branches(fn func(id NodeID, key Key, depth int) bool) {
	for id := o.root; id != NoNode; id = o.nextBranch(id) {
		n := &o.arena.nodes[id]
		if !fn(id, n.key, int(n.depth)) {
			return
		}
	}
}

// Root returns the root branch or NoNode for an empty tree.
func (o *Octree) Root() NodeID {
	return o.root
}

func (o *Octree) IsLeaf(id NodeID) bool {
	return o.arena.nodes[id].isLeaf
}

// Node returns the key and the depth of the node.
func (o *Octree) Node(id NodeID) (Key, int) {
	n := &o.arena.nodes[id]
	return n.key, int(n.depth)
}

// Leaf returns the container of a leaf or nil for branches.
func (o *Octree) Leaf(id NodeID) LeafContainer {
	return o.arena.nodes[id].leaf
}

// Child returns the child at slot or NoNode.
func (o *Octree) Child(id NodeID, slot uint8) NodeID {
	return o.arena.nodes[id].children[slot]
}

// Parent returns the parent of the node or NoNode for the root.
func (o *Octree) Parent(id NodeID) NodeID {
	return o.arena.nodes[id].parent
}
