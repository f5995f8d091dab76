package octree

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/mat"
	"github.com/tidwall/tinyqueue"
)

func (o *Octree) sqDist(i int, q r3.Vector) float64 {
	v := o.input.Vec3At(i)
	dx := float64(v[0]) - q.X
	dy := float64(v[1]) - q.Y
	dz := float64(v[2]) - q.Z
	return dx*dx + dy*dy + dz*dz
}

func (o *Octree) leafIndices(id NodeID, dst []int) ([]int, error) {
	ret, err := o.arena.nodes[id].leaf.AppendIndices(dst)
	if err != nil {
		k := o.arena.nodes[id].key
		return nil, errors.Wrapf(err, "reading leaf (%d, %d, %d)", k.X, k.Y, k.Z)
	}
	return ret, nil
}

// VoxelSearch returns the indices of the points in the voxel containing p.
// ok is false if p is outside of the tree or the voxel is empty.
func (o *Octree) VoxelSearch(p mat.Vec3) (indices []int, ok bool, err error) {
	if err := o.beginRead(); err != nil {
		return nil, false, err
	}
	key, err := o.keyForPoint(toR3(p))
	switch {
	case errors.Is(err, ErrOutOfBounds):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	id := o.leafAtKey(key)
	if id == NoNode {
		return nil, false, nil
	}
	indices, err = o.leafIndices(id, nil)
	if err != nil {
		return nil, false, err
	}
	return indices, true, nil
}

// NearestKSearch returns the k nearest points of p and their squared distances
// in ascending order. Points at the same distance are ordered by index.
// Less than k points are returned if the tree has less than k points.
func (o *Octree) NearestKSearch(p mat.Vec3, k int) ([]int, []float64, error) {
	if k < 1 {
		return nil, nil, errors.Wrapf(ErrInvalidK, "k = %d", k)
	}
	if err := o.beginRead(); err != nil {
		return nil, nil, err
	}
	q := toR3(p)
	if !isFinite(q) {
		return nil, nil, ErrNonFinitePoint
	}
	if o.root == NoNode {
		return nil, nil, nil
	}

	branches := tinyqueue.New(nil)
	candidates := tinyqueue.New(nil)
	worst := func() float64 {
		if candidates.Len() < k {
			return math.Inf(1)
		}
		return candidates.Peek().(*pointEntry).dist
	}

	branches.Push(&branchEntry{node: o.root, dist: o.nodeBox(o.root).SqDist(q)})
	var buf []int
	for branches.Len() > 0 {
		b := branches.Pop().(*branchEntry)
		if b.dist > worst() {
			break
		}
		n := &o.arena.nodes[b.node]
		if !n.isLeaf {
			for _, c := range n.children {
				if c == NoNode {
					continue
				}
				if d := o.nodeBox(c).SqDist(q); d <= worst() {
					branches.Push(&branchEntry{node: c, dist: d})
				}
			}
			continue
		}
		var err error
		if buf, err = o.leafIndices(b.node, buf[:0]); err != nil {
			return nil, nil, err
		}
		for _, i := range buf {
			e := &pointEntry{index: i, dist: o.sqDist(i, q)}
			if candidates.Len() < k {
				candidates.Push(e)
				continue
			}
			if worse(candidates.Peek().(*pointEntry), e) {
				candidates.Pop()
				candidates.Push(e)
			}
		}
	}

	n := candidates.Len()
	indices := make([]int, n)
	dists := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		e := candidates.Pop().(*pointEntry)
		indices[i], dists[i] = e.index, e.dist
	}
	return indices, dists, nil
}

// RadiusSearch returns the points within radius r of p and their squared distances.
//
// If maxNN is positive, the search stops after maxNN points are found in traversal
// order; they are not necessarily the nearest ones. If sorted is true, the result
// is ordered by distance.
func (o *Octree) RadiusSearch(p mat.Vec3, r float64, maxNN int, sorted bool) ([]int, []float64, error) {
	if !(r > 0) || math.IsInf(r, 0) {
		return nil, nil, errors.Wrapf(ErrInvalidRadius, "radius %v", r)
	}
	if err := o.beginRead(); err != nil {
		return nil, nil, err
	}
	q := toR3(p)
	if !isFinite(q) {
		return nil, nil, ErrNonFinitePoint
	}
	if o.root == NoNode {
		return nil, nil, nil
	}
	r2 := r * r

	var (
		res   resultSet
		buf   []int
		err   error
		stack = []NodeID{o.root}
	)
L_SEARCH:
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if o.nodeBox(id).SqDist(q) > r2 {
			continue
		}
		n := &o.arena.nodes[id]
		if !n.isLeaf {
			for s := 7; s >= 0; s-- {
				if c := n.children[s]; c != NoNode {
					stack = append(stack, c)
				}
			}
			continue
		}
		if buf, err = o.leafIndices(id, buf[:0]); err != nil {
			return nil, nil, err
		}
		for _, i := range buf {
			if d := o.sqDist(i, q); d <= r2 {
				res.indices = append(res.indices, i)
				res.dists = append(res.dists, d)
				if maxNN > 0 && len(res.indices) >= maxNN {
					break L_SEARCH
				}
			}
		}
	}
	if sorted {
		sort.Sort(res)
	}
	return res.indices, res.dists, nil
}

// ApproxNearestSearch descends greedily to a single leaf and returns its nearest point.
// Index -1 is returned for an empty tree.
func (o *Octree) ApproxNearestSearch(p mat.Vec3) (int, float64, error) {
	if err := o.beginRead(); err != nil {
		return -1, 0, err
	}
	q := toR3(p)
	if !isFinite(q) {
		return -1, 0, ErrNonFinitePoint
	}
	if o.root == NoNode {
		return -1, 0, nil
	}

	cur := o.root
	for !o.arena.nodes[cur].isLeaf {
		n := &o.arena.nodes[cur]
		b := o.nodeBox(cur)
		next := NoNode
		if b.IsInside(q) {
			c := b.Center()
			var slot uint8
			if q.X >= c.X {
				slot |= 1
			}
			if q.Y >= c.Y {
				slot |= 2
			}
			if q.Z >= c.Z {
				slot |= 4
			}
			next = n.children[slot]
		}
		if next == NoNode {
			best := math.Inf(1)
			for _, c := range n.children {
				if c == NoNode {
					continue
				}
				if d := o.nodeBox(c).Center().Sub(q).Norm2(); d < best {
					best, next = d, c
				}
			}
		}
		if next == NoNode {
			return -1, 0, nil
		}
		cur = next
	}

	indices, err := o.leafIndices(cur, nil)
	if err != nil {
		return -1, 0, err
	}
	bestIndex, bestDist := -1, 0.0
	for _, i := range indices {
		if d := o.sqDist(i, q); bestIndex < 0 || d < bestDist {
			bestIndex, bestDist = i, d
		}
	}
	return bestIndex, bestDist, nil
}

// BoxSearch returns the points inside [min, max], bounds included.
func (o *Octree) BoxSearch(min, max mat.Vec3) ([]int, error) {
	query := box{min: toR3(min), max: toR3(max)}
	if !isFinite(query.min) || !isFinite(query.max) || !query.IsValid() {
		return nil, errors.Wrapf(ErrInvalidBoundingBox, "min %v, max %v", min, max)
	}
	if err := o.beginRead(); err != nil {
		return nil, err
	}
	if o.root == NoNode {
		return nil, nil
	}

	var (
		ret, buf []int
		err      error
		stack    = []NodeID{o.root}
	)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		b := o.nodeBox(id)
		if !b.Overlaps(query) {
			continue
		}
		n := &o.arena.nodes[id]
		if b.Within(query) {
			if ret, err = o.appendSubtree(id, ret); err != nil {
				return nil, err
			}
			continue
		}
		if !n.isLeaf {
			for s := 7; s >= 0; s-- {
				if c := n.children[s]; c != NoNode {
					stack = append(stack, c)
				}
			}
			continue
		}
		if buf, err = o.leafIndices(id, buf[:0]); err != nil {
			return nil, err
		}
		for _, i := range buf {
			if query.IsInside(toR3(o.input.Vec3At(i))) {
				ret = append(ret, i)
			}
		}
	}
	return ret, nil
}

// appendSubtree appends the indices of every leaf under id.
func (o *Octree) appendSubtree(id NodeID, dst []int) ([]int, error) {
	var err error
	if o.arena.nodes[id].isLeaf {
		return o.leafIndices(id, dst)
	}
	depth := o.arena.nodes[id].depth
	for cur := o.nextNode(id, o.depth); cur != NoNode; cur = o.nextNode(cur, o.depth) {
		n := &o.arena.nodes[cur]
		if n.depth <= depth {
			break
		}
		if n.isLeaf {
			if dst, err = o.leafIndices(cur, dst); err != nil {
				return nil, err
			}
		}
	}
	return dst, nil
}
