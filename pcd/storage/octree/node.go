package octree

import (
	"go.uber.org/multierr"
)

// NodeID addresses a node of an Octree.
type NodeID int32

// NoNode is the NodeID of a missing node.
const NoNode NodeID = -1

type node struct {
	parent   NodeID
	slot     int8
	depth    uint8
	used     bool
	isLeaf   bool
	key      Key
	children [8]NodeID
	leaf     LeafContainer
}

// arena owns every node of a tree. Released slots are reused.
type arena struct {
	nodes    []node
	free     []NodeID
	leaves   int
	branches int
}

func (a *arena) alloc(n node) NodeID {
	n.used = true
	for i := range n.children {
		n.children[i] = NoNode
	}
	if n.isLeaf {
		a.leaves++
	} else {
		a.branches++
	}
	if l := len(a.free); l > 0 {
		id := a.free[l-1]
		a.free = a.free[:l-1]
		a.nodes[id] = n
		return id
	}
	a.nodes = append(a.nodes, n)
	return NodeID(len(a.nodes) - 1)
}

func (a *arena) release(id NodeID) {
	n := &a.nodes[id]
	if n.isLeaf {
		a.leaves--
	} else {
		a.branches--
	}
	*n = node{parent: NoNode}
	a.free = append(a.free, id)
}

func (a *arena) reset() {
	a.nodes = nil
	a.free = nil
	a.leaves, a.branches = 0, 0
}

// createChild creates the child at slot of a branch.
func (o *Octree) createChild(parent NodeID, slot uint8) (NodeID, error) {
	p := o.arena.nodes[parent]
	n := node{
		parent: parent,
		slot:   int8(slot),
		depth:  p.depth + 1,
		key:    p.key.Child(slot),
	}
	if int(n.depth) >= o.depth {
		c, err := o.factory(n.key)
		if err != nil {
			return NoNode, err
		}
		n.isLeaf = true
		n.leaf = c
	}
	id := o.arena.alloc(n)
	o.arena.nodes[parent].children[slot] = id
	return id, nil
}

// initChildren fills every empty child slot of a branch.
func (o *Octree) initChildren(id NodeID) error {
	if o.arena.nodes[id].isLeaf {
		return nil
	}
	for slot := uint8(0); slot < 8; slot++ {
		if o.arena.nodes[id].children[slot] != NoNode {
			continue
		}
		if _, err := o.createChild(id, slot); err != nil {
			return err
		}
	}
	return nil
}

// removeSubtree releases id and all of its descendants, closing leaf containers.
func (o *Octree) removeSubtree(id NodeID) error {
	var err error
	if p := o.arena.nodes[id].parent; p != NoNode {
		o.arena.nodes[p].children[o.arena.nodes[id].slot] = NoNode
	}
	stack := []NodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &o.arena.nodes[cur]
		if n.isLeaf {
			if c, ok := n.leaf.(closer); ok {
				err = multierr.Append(err, c.Close())
			}
		} else {
			for _, c := range n.children {
				if c != NoNode {
					stack = append(stack, c)
				}
			}
		}
		o.arena.release(cur)
	}
	return err
}

func (o *Octree) hasChildren(id NodeID) bool {
	for _, c := range o.arena.nodes[id].children {
		if c != NoNode {
			return true
		}
	}
	return false
}
