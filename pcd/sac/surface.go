package sac

import (
	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"

	"github.com/seqsense/pcdoctree/pcd/storage/octree"
)

// octreeSurfaceModel fits planes scored by the number of points in the leaves
// touched by the plane.
type octreeSurfaceModel struct {
	tree       *octree.Octree
	ra         pc.Vec3RandomAccessor
	min, size  mat.Vec3
	resolution float32
}

const epsilon = 0.01

// NewOctreeSurfaceModel returns a plane model over the points of ra indexed by tree.
func NewOctreeSurfaceModel(tree *octree.Octree, ra pc.Vec3RandomAccessor) Model {
	min, max := tree.BoundingBox()
	return &octreeSurfaceModel{
		tree:       tree,
		ra:         ra,
		min:        min,
		size:       max.Sub(min),
		resolution: float32(tree.Resolution()),
	}
}

func (octreeSurfaceModel) NumRange() (min, max int) {
	return 3, 3
}

func (m *octreeSurfaceModel) Fit(ids []int) (ModelCoefficients, bool) {
	if len(ids) != 3 {
		return nil, false
	}

	p0, p1, p2 := m.ra.Vec3At(ids[0]).Sub(m.min), m.ra.Vec3At(ids[1]).Sub(m.min), m.ra.Vec3At(ids[2]).Sub(m.min)
	v1, v2 := p1.Sub(p0), p2.Sub(p0)

	norm := v1.Cross(v2)
	if nearZeroSq(norm.Dot(norm)) {
		return nil, false
	}

	// Plane equation: norm[0]*x + norm[1]*y + norm[2]*z = d
	norm = norm.Normalized()
	c := &octreeSurfaceModelCoefficients{
		model: m,
		norm:  norm,
		d:     norm.Dot(p0),
		tol:   m.resolution * epsilon,
	}
	if !c.touches(mat.Vec3{}, m.size) {
		// The plane does not cross the bounding box.
		return nil, false
	}
	return c, true
}

func nearZeroSq(a float32) bool {
	return a < epsilon*epsilon
}

func abs(a float32) float32 {
	if a < 0 {
		return -a
	}
	return a
}

type octreeSurfaceModelCoefficients struct {
	model *octreeSurfaceModel

	norm mat.Vec3
	d    float32
	tol  float32
}

// touches returns true if the plane intersects the closed box [min, min+size]
// given relative to the tree bounding box.
func (c *octreeSurfaceModelCoefficients) touches(min, size mat.Vec3) bool {
	half := size.Mul(0.5)
	center := min.Add(half)
	reach := abs(c.norm[0])*half[0] + abs(c.norm[1])*half[1] + abs(c.norm[2])*half[2]
	return abs(c.norm.Dot(center)-c.d) <= reach+c.tol
}

func (c *octreeSurfaceModelCoefficients) Evaluate() int {
	tree := c.model.tree
	var cnt int
	var visit func(id octree.NodeID)
	visit = func(id octree.NodeID) {
		key, depth := tree.Node(id)
		min, max := tree.VoxelBounds(key, depth)
		min = min.Sub(c.model.min)
		if !c.touches(min, max.Sub(c.model.min).Sub(min)) {
			return
		}
		if tree.IsLeaf(id) {
			cnt += tree.Leaf(id).Size()
			return
		}
		for slot := uint8(0); slot < 8; slot++ {
			if child := tree.Child(id, slot); child != octree.NoNode {
				visit(child)
			}
		}
	}
	if root := tree.Root(); root != octree.NoNode {
		visit(root)
	}
	return cnt
}

func (c *octreeSurfaceModelCoefficients) Inliers(d float32) []int {
	n := c.model.ra.Len()
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if c.IsIn(c.model.ra.Vec3At(i), d) {
			out = append(out, i)
		}
	}
	return out
}

func (c *octreeSurfaceModelCoefficients) IsIn(p mat.Vec3, d float32) bool {
	dd := c.norm.Dot(p.Sub(c.model.min)) - c.d
	return -d < dd && dd < d
}
