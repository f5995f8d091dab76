// Package octree implements an octree index over an external point container.
//
// Leaves are addressed by Key at the tree depth derived from the resolution and the
// bounding box. Each leaf owns a LeafContainer storing the indices of the points
// inside its voxel, either in memory (IndexList) or out of core.
//
// Insertion must not run concurrently with searches. Searches started while an
// insertion is in progress fail with ErrConcurrentModification. The check is made
// only when a search starts, so an insertion beginning during a search is not
// detected.
package octree

import (
	"context"
	"math"
	"runtime"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seqsense/pcdoctree/pcd"
)

type Octree struct {
	resolution float64
	depth      int
	bbox       box
	hasBBox    bool
	adapt      bool

	input   pc.Vec3RandomAccessor
	indices []int

	arena   arena
	root    NodeID
	size    int
	factory ContainerFactory
	logger  *zap.Logger

	writers atomic.Int32
}

type Option func(*Octree)

func WithLogger(l *zap.Logger) Option {
	return func(o *Octree) {
		o.logger = l
	}
}

// WithLeafContainer sets the factory of leaf containers. NewIndexList is used by default.
func WithLeafContainer(f ContainerFactory) Option {
	return func(o *Octree) {
		o.factory = f
	}
}

// WithBoundingBoxAdaptation enables growing the bounding box to contain points
// inserted outside of it.
func WithBoundingBoxAdaptation(enable bool) Option {
	return func(o *Octree) {
		o.adapt = enable
	}
}

func New(resolution float64, opts ...Option) (*Octree, error) {
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return nil, errors.Wrapf(ErrInvalidResolution, "resolution %v", resolution)
	}
	o := &Octree{
		resolution: resolution,
		root:       NoNode,
		factory:    NewIndexList,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// SetInputCloud binds the point container. indices optionally restricts the
// points inserted by AddPointsFromInputCloud.
func (o *Octree) SetInputCloud(ra pc.Vec3RandomAccessor, indices []int) error {
	if o.arena.leaves > 0 {
		return ErrTreeNotEmpty
	}
	o.input = ra
	o.indices = indices
	return nil
}

func (o *Octree) DefineBoundingBox(min, max mat.Vec3) error {
	if o.arena.leaves > 0 {
		return ErrTreeNotEmpty
	}
	b := box{min: toR3(min), max: toR3(max)}
	if !isFinite(b.min) || !isFinite(b.max) || !b.IsValid() {
		return errors.Wrapf(ErrInvalidBoundingBox, "min %v, max %v", min, max)
	}
	return o.setBoundingBox(b)
}

// DefineBoundingBoxFromInput defines the bounding box from the extent of the input.
func (o *Octree) DefineBoundingBoxFromInput() error {
	if o.input == nil {
		return ErrNoInputCloud
	}
	ra := o.input
	if o.indices != nil {
		ra = &indexedAccessor{Vec3RandomAccessor: o.input, indices: o.indices}
	}
	if ra.Len() == 0 {
		return errors.Wrap(ErrInvalidBoundingBox, "input cloud is empty")
	}
	min, max, err := pc.MinMaxVec3(ra)
	if err != nil {
		return err
	}
	return o.DefineBoundingBox(min, max)
}

func (o *Octree) setBoundingBox(b box) error {
	extent := b.max.Sub(b.min)
	maxExtent := math.Max(extent.X, math.Max(extent.Y, extent.Z))

	depth := 1
	if maxExtent > 0 {
		depth = int(math.Ceil(math.Log2(maxExtent / o.resolution)))
		if depth < 1 {
			depth = 1
		}
	}
	if depth > MaxDepth {
		return errors.Wrapf(ErrInvalidBoundingBox, "bounding box requires depth %d", depth)
	}

	side := o.resolution * math.Exp2(float64(depth))
	c := b.Center()
	half := r3.Vector{X: side / 2, Y: side / 2, Z: side / 2}
	o.bbox = box{min: c.Sub(half), max: c.Add(half)}
	o.depth = depth
	o.hasBBox = true
	return nil
}

// AddPointsFromInputCloud inserts every point of the input cloud.
// The bounding box is defined from the input if it is not defined yet.
func (o *Octree) AddPointsFromInputCloud() error {
	if o.input == nil {
		return ErrNoInputCloud
	}
	if !o.hasBBox {
		if err := o.DefineBoundingBoxFromInput(); err != nil {
			return err
		}
	}
	o.writers.Inc()
	defer o.writers.Dec()

	if o.indices != nil {
		for _, i := range o.indices {
			if err := o.addPointIndex(i); err != nil {
				return err
			}
		}
	} else {
		n := o.input.Len()
		for i := 0; i < n; i++ {
			if err := o.addPointIndex(i); err != nil {
				return err
			}
		}
	}
	o.logger.Debug("octree built",
		zap.Int("points", o.size),
		zap.Int("depth", o.depth),
		zap.Int("leaves", o.arena.leaves),
		zap.Int("branches", o.arena.branches),
	)
	return nil
}

// AddPointIndex inserts the point at index i of the input cloud.
func (o *Octree) AddPointIndex(i int) error {
	if o.input == nil {
		return ErrNoInputCloud
	}
	o.writers.Inc()
	defer o.writers.Dec()
	return o.addPointIndex(i)
}

func (o *Octree) addPointIndex(i int) error {
	if i < 0 || i >= o.input.Len() {
		return errors.Wrapf(pcd.ErrOutOfRange, "point index %d", i)
	}
	v := o.input.Vec3At(i)
	p := toR3(v)
	if !isFinite(p) {
		return errors.Wrapf(ErrNonFinitePoint, "point %d: %v", i, v)
	}
	if !o.hasBBox {
		if !o.adapt {
			return errors.Wrap(ErrInvalidBoundingBox, "bounding box is not defined")
		}
		if err := o.setBoundingBox(box{min: p, max: p}); err != nil {
			return err
		}
	}
	if o.adapt {
		if err := o.adaptBoundingBox(p); err != nil {
			return err
		}
	}
	key, err := o.keyForPoint(p)
	if err != nil {
		return errors.Wrapf(err, "point %d", i)
	}

	if o.root == NoNode {
		o.root = o.arena.alloc(node{parent: NoNode, slot: -1})
	}
	cur := o.root
	for d := 0; d < o.depth; d++ {
		slot := key.ChildIndex(uint(o.depth - 1 - d))
		child := o.arena.nodes[cur].children[slot]
		if child == NoNode {
			if child, err = o.createChild(cur, slot); err != nil {
				return err
			}
		}
		cur = child
	}
	if err := o.arena.nodes[cur].leaf.Push(i, v); err != nil {
		return errors.Wrapf(err, "pushing point %d", i)
	}
	o.size++
	return nil
}

// adaptBoundingBox doubles the tree until p is inside of it.
// The old root becomes the child octant facing away from p.
func (o *Octree) adaptBoundingBox(p r3.Vector) error {
	for !o.bbox.IsInside(p) {
		if o.depth >= MaxDepth {
			return errors.Wrapf(ErrOutOfBounds, "%v exceeds the maximum depth", p)
		}
		side := o.bbox.max.X - o.bbox.min.X
		var slot uint8
		nb := o.bbox
		if p.X < o.bbox.min.X {
			slot |= 1
			nb.min.X -= side
		} else {
			nb.max.X += side
		}
		if p.Y < o.bbox.min.Y {
			slot |= 2
			nb.min.Y -= side
		} else {
			nb.max.Y += side
		}
		if p.Z < o.bbox.min.Z {
			slot |= 4
			nb.min.Z -= side
		} else {
			nb.max.Z += side
		}

		oldRoot := o.root
		if oldRoot != NoNode {
			top := Key{}.Child(slot)
			for id := range o.arena.nodes {
				n := &o.arena.nodes[id]
				if !n.used {
					continue
				}
				n.key = Key{
					X: top.X<<n.depth | n.key.X,
					Y: top.Y<<n.depth | n.key.Y,
					Z: top.Z<<n.depth | n.key.Z,
				}
				n.depth++
			}
			o.root = o.arena.alloc(node{parent: NoNode, slot: -1})
			o.arena.nodes[o.root].children[slot] = oldRoot
			o.arena.nodes[oldRoot].parent = o.root
			o.arena.nodes[oldRoot].slot = int8(slot)
		}
		o.bbox = nb
		o.depth++
		o.logger.Debug("bounding box adapted",
			zap.Int("depth", o.depth),
			zap.Any("min", o.bbox.min),
			zap.Any("max", o.bbox.max),
		)
	}
	return nil
}

func (o *Octree) keyForPoint(p r3.Vector) (Key, error) {
	if !isFinite(p) {
		return Key{}, ErrNonFinitePoint
	}
	if !o.hasBBox || !o.bbox.IsInside(p) {
		return Key{}, errors.Wrapf(ErrOutOfBounds, "%v", p)
	}
	n := uint32(1) << uint(o.depth)
	axis := func(c, min float64) uint32 {
		v := uint32(math.Floor((c - min) / o.resolution))
		if v >= n {
			v = n - 1
		}
		return v
	}
	return Key{
		X: axis(p.X, o.bbox.min.X),
		Y: axis(p.Y, o.bbox.min.Y),
		Z: axis(p.Z, o.bbox.min.Z),
	}, nil
}

// DeleteTree removes every node and closes leaf containers.
// The bounding box and the input cloud are kept.
func (o *Octree) DeleteTree() error {
	o.writers.Inc()
	defer o.writers.Dec()

	err := o.closeLeaves()
	o.arena.reset()
	o.root = NoNode
	o.size = 0
	return err
}

// Close closes every leaf container and releases the tree.
func (o *Octree) Close() error {
	return o.DeleteTree()
}

func (o *Octree) closeLeaves() error {
	var leaves []closer
	o.Leaves(func(_ NodeID, _ Key, c LeafContainer) bool {
		if cl, ok := c.(closer); ok {
			leaves = append(leaves, cl)
		}
		return true
	})
	var (
		mu  sync.Mutex
		err error
		g   errgroup.Group
	)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, l := range leaves {
		l := l
		g.Go(func() error {
			if e := l.Close(); e != nil {
				mu.Lock()
				err = multierr.Append(err, e)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return err
}

// Flush flushes every leaf container having a write buffer.
func (o *Octree) Flush(ctx context.Context) error {
	var leaves []flusher
	o.Leaves(func(_ NodeID, _ Key, c LeafContainer) bool {
		if f, ok := c.(flusher); ok {
			leaves = append(leaves, f)
		}
		return true
	})
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, l := range leaves {
		l := l
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return l.Flush()
		})
	}
	return g.Wait()
}

// DeleteVoxelAtPoint removes the leaf containing p and prunes emptied branches.
func (o *Octree) DeleteVoxelAtPoint(v mat.Vec3) (bool, error) {
	o.writers.Inc()
	defer o.writers.Dec()

	id := o.LeafAtPoint(v)
	if id == NoNode {
		return false, nil
	}
	o.size -= o.arena.nodes[id].leaf.Size()
	parent := o.arena.nodes[id].parent
	err := o.removeSubtree(id)
	for parent != o.root && !o.hasChildren(parent) {
		next := o.arena.nodes[parent].parent
		err = multierr.Append(err, o.removeSubtree(parent))
		parent = next
	}
	return true, err
}

func (o *Octree) IsVoxelOccupiedAtPoint(v mat.Vec3) bool {
	return o.LeafAtPoint(v) != NoNode
}

// LeafAtPoint returns the leaf containing v or NoNode.
func (o *Octree) LeafAtPoint(v mat.Vec3) NodeID {
	key, err := o.keyForPoint(toR3(v))
	if err != nil {
		return NoNode
	}
	return o.leafAtKey(key)
}

func (o *Octree) leafAtKey(key Key) NodeID {
	cur := o.root
	for d := 0; d < o.depth && cur != NoNode; d++ {
		cur = o.arena.nodes[cur].children[key.ChildIndex(uint(o.depth-1-d))]
	}
	return cur
}

// OccupiedVoxelCenters returns the centers of the leaves in traversal order.
func (o *Octree) OccupiedVoxelCenters() []mat.Vec3 {
	ret := make([]mat.Vec3, 0, o.arena.leaves)
	o.Leaves(func(_ NodeID, key Key, _ LeafContainer) bool {
		ret = append(ret, o.VoxelCenter(key, o.depth))
		return true
	})
	return ret
}

// VoxelCentroids returns the mean of the points of each leaf in traversal order.
func (o *Octree) VoxelCentroids() ([]mat.Vec3, error) {
	if o.input == nil {
		return nil, ErrNoInputCloud
	}
	ret := make([]mat.Vec3, 0, o.arena.leaves)
	var (
		buf []int
		err error
	)
	o.Leaves(func(_ NodeID, _ Key, c LeafContainer) bool {
		if buf, err = c.AppendIndices(buf[:0]); err != nil {
			return false
		}
		if len(buf) == 0 {
			return true
		}
		var sum r3.Vector
		for _, i := range buf {
			sum = sum.Add(toR3(o.input.Vec3At(i)))
		}
		ret = append(ret, toVec3(sum.Mul(1/float64(len(buf)))))
		return true
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// VoxelBounds returns the box of the voxel addressed by key at depth.
func (o *Octree) VoxelBounds(key Key, depth int) (min, max mat.Vec3) {
	b := o.voxelBox(key, depth)
	return toVec3(b.min), toVec3(b.max)
}

func (o *Octree) VoxelCenter(key Key, depth int) mat.Vec3 {
	return toVec3(o.voxelBox(key, depth).Center())
}

func (o *Octree) voxelBox(key Key, depth int) box {
	side := o.resolution * math.Exp2(float64(o.depth-depth))
	min := o.bbox.min.Add(r3.Vector{X: float64(key.X), Y: float64(key.Y), Z: float64(key.Z)}.Mul(side))
	return box{
		min: min,
		max: min.Add(r3.Vector{X: side, Y: side, Z: side}),
	}
}

func (o *Octree) nodeBox(id NodeID) box {
	n := &o.arena.nodes[id]
	return o.voxelBox(n.key, int(n.depth))
}

func (o *Octree) Depth() int {
	return o.depth
}

func (o *Octree) Resolution() float64 {
	return o.resolution
}

// BoundingBox returns the grown bounding box.
func (o *Octree) BoundingBox() (min, max mat.Vec3) {
	return toVec3(o.bbox.min), toVec3(o.bbox.max)
}

func (o *Octree) LeafCount() int {
	return o.arena.leaves
}

func (o *Octree) BranchCount() int {
	return o.arena.branches
}

// Size returns the number of inserted points.
func (o *Octree) Size() int {
	return o.size
}

func (o *Octree) beginRead() error {
	if o.writers.Load() > 0 {
		return ErrConcurrentModification
	}
	if o.input == nil {
		return ErrNoInputCloud
	}
	return nil
}

type indexedAccessor struct {
	pc.Vec3RandomAccessor
	indices []int
}

func (a *indexedAccessor) Vec3At(i int) mat.Vec3 {
	return a.Vec3RandomAccessor.Vec3At(a.indices[i])
}

func (a *indexedAccessor) Len() int {
	return len(a.indices)
}
