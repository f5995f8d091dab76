package octree

import (
	"math"

	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/mat"
)

// rayEpsilon replaces zero direction components.
const rayEpsilon = 1e-10

// rayNext lists the octant entered after leaving each octant through the
// x, y and z exit plane. 8 means the ray leaves the parent.
// Octants are numbered with x in bit 2 and z in bit 0 here.
var rayNext = [8][3]int{
	{4, 2, 1},
	{5, 3, 8},
	{6, 8, 3},
	{7, 8, 8},
	{8, 6, 5},
	{8, 7, 8},
	{8, 8, 7},
	{8, 8, 8},
}

type rayFrame struct {
	node       NodeID
	t0, tm, t1 [3]float64
	curr       int
}

// IntersectedVoxelCenters returns the centers of the leaves hit by the ray in the
// order of the intersection. maxVoxelCount limits the number of leaves if positive.
func (o *Octree) IntersectedVoxelCenters(origin, dir mat.Vec3, maxVoxelCount int) ([]mat.Vec3, error) {
	var ret []mat.Vec3
	err := o.traverseRay(origin, dir, maxVoxelCount, func(id NodeID) error {
		n := &o.arena.nodes[id]
		ret = append(ret, o.VoxelCenter(n.key, int(n.depth)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// IntersectedVoxelIndices returns the indices of the points in the leaves hit by
// the ray. maxVoxelCount limits the number of leaves if positive.
func (o *Octree) IntersectedVoxelIndices(origin, dir mat.Vec3, maxVoxelCount int) ([]int, error) {
	var ret []int
	err := o.traverseRay(origin, dir, maxVoxelCount, func(id NodeID) error {
		var err error
		ret, err = o.leafIndices(id, ret)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (o *Octree) traverseRay(origin, dir mat.Vec3, maxVoxelCount int, visit func(NodeID) error) error {
	if err := o.beginRead(); err != nil {
		return err
	}
	org, d := toR3(origin), toR3(dir)
	if !isFinite(org) || !isFinite(d) {
		return errors.Wrapf(ErrNonFinitePoint, "ray %v %v", origin, dir)
	}
	if o.root == NoNode {
		return nil
	}

	o3 := [3]float64{org.X, org.Y, org.Z}
	d3 := [3]float64{d.X, d.Y, d.Z}
	min3 := [3]float64{o.bbox.min.X, o.bbox.min.Y, o.bbox.min.Z}
	max3 := [3]float64{o.bbox.max.X, o.bbox.max.Y, o.bbox.max.Z}

	// Mirror negative axes so that the ray always goes to the positive direction.
	var a int
	var t0, t1 [3]float64
	for i := 0; i < 3; i++ {
		if d3[i] == 0 {
			d3[i] = rayEpsilon
		}
		if d3[i] < 0 {
			o3[i] = min3[i] + max3[i] - o3[i]
			d3[i] = -d3[i]
			a |= 4 >> uint(i)
		}
		t0[i] = (min3[i] - o3[i]) / d3[i]
		t1[i] = (max3[i] - o3[i]) / d3[i]
	}
	if math.Max(math.Max(t0[0], t0[1]), t0[2]) >= math.Min(math.Min(t1[0], t1[1]), t1[2]) {
		return nil
	}

	var (
		count int
		stack []rayFrame
	)
	full := func() bool {
		return maxVoxelCount > 0 && count >= maxVoxelCount
	}
	enter := func(id NodeID, t0, t1 [3]float64) error {
		if t1[0] < 0 || t1[1] < 0 || t1[2] < 0 {
			return nil
		}
		if o.arena.nodes[id].isLeaf {
			count++
			return visit(id)
		}
		f := rayFrame{node: id, t0: t0, t1: t1}
		for i := range f.tm {
			f.tm[i] = 0.5 * (t0[i] + t1[i])
		}
		f.curr = rayFirstNode(f.t0, f.tm)
		stack = append(stack, f)
		return nil
	}

	if err := enter(o.root, t0, t1); err != nil {
		return err
	}
	for len(stack) > 0 && !full() {
		f := &stack[len(stack)-1]
		if f.curr >= 8 {
			stack = stack[:len(stack)-1]
			continue
		}
		curr := f.curr
		var c0, c1 [3]float64
		for i := 0; i < 3; i++ {
			if curr&(4>>uint(i)) != 0 {
				c0[i], c1[i] = f.tm[i], f.t1[i]
			} else {
				c0[i], c1[i] = f.t0[i], f.tm[i]
			}
		}
		f.curr = rayNextNode(c1, rayNext[curr])
		child := o.arena.nodes[f.node].children[swapXZ(uint8(curr^a))]
		if child == NoNode {
			continue
		}
		// enter may grow the stack and invalidate f.
		if err := enter(child, c0, c1); err != nil {
			return err
		}
	}
	return nil
}

// rayFirstNode returns the first octant hit, selected by the entry plane.
func rayFirstNode(t0, tm [3]float64) int {
	var curr int
	if t0[0] > t0[1] {
		if t0[0] > t0[2] {
			// YZ plane
			if tm[1] < t0[0] {
				curr |= 2
			}
			if tm[2] < t0[0] {
				curr |= 1
			}
			return curr
		}
	} else if t0[1] > t0[2] {
		// XZ plane
		if tm[0] < t0[1] {
			curr |= 4
		}
		if tm[2] < t0[1] {
			curr |= 1
		}
		return curr
	}
	// XY plane
	if tm[0] < t0[2] {
		curr |= 4
	}
	if tm[1] < t0[2] {
		curr |= 2
	}
	return curr
}

// rayNextNode returns the octant entered through the nearest exit plane.
func rayNextNode(t1 [3]float64, next [3]int) int {
	if t1[0] < t1[1] {
		if t1[0] < t1[2] {
			return next[0]
		}
		return next[2]
	}
	if t1[1] < t1[2] {
		return next[1]
	}
	return next[2]
}

// swapXZ converts an octant number with x in bit 2 to a child slot with x in bit 0.
func swapXZ(i uint8) uint8 {
	return (i&4)>>2 | i&2 | (i&1)<<2
}
