package outofcore

import (
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/mat"

	"github.com/seqsense/pcdoctree/pcd"
	"github.com/seqsense/pcdoctree/pcd/storage/octree"
)

// IndexedPoint is a point stored in a leaf with its index in the input cloud.
type IndexedPoint struct {
	Index uint32
	Point mat.Vec3
}

var indexedPointSchema = pcd.MustSchema(
	pcd.Field{Name: "x", Size: 4, Type: "F", Count: 1},
	pcd.Field{Name: "y", Size: 4, Type: "F", Count: 1},
	pcd.Field{Name: "z", Size: 4, Type: "F", Count: 1},
	pcd.Field{Name: "index", Size: 4, Type: "U", Count: 1},
)

type IndexedPointCodec struct{}

func (IndexedPointCodec) Schema() *pcd.Schema {
	return indexedPointSchema
}

func (IndexedPointCodec) Encode(dst []byte, v IndexedPoint) {
	pcd.PutVec3(dst, v.Point)
	binary.LittleEndian.PutUint32(dst[12:], v.Index)
}

func (IndexedPointCodec) Decode(src []byte) IndexedPoint {
	return IndexedPoint{
		Index: binary.LittleEndian.Uint32(src[12:]),
		Point: pcd.GetVec3(src),
	}
}

// Leaf stores the points of an octree leaf in a DiskContainer.
type Leaf struct {
	c *DiskContainer[IndexedPoint]
}

func NewLeaf(c *DiskContainer[IndexedPoint]) *Leaf {
	return &Leaf{c: c}
}

func (l *Leaf) Container() *DiskContainer[IndexedPoint] {
	return l.c
}

// Push appends a point. index must fit in the uint32 index field.
func (l *Leaf) Push(index int, p mat.Vec3) error {
	if index < 0 || int64(index) > math.MaxUint32 {
		return errors.Wrapf(pcd.ErrOutOfRange, "point index %d", index)
	}
	return l.c.Push(IndexedPoint{Index: uint32(index), Point: p})
}

func (l *Leaf) Size() int {
	return int(l.c.Size())
}

func (l *Leaf) AppendIndices(dst []int) ([]int, error) {
	vs, err := l.c.ReadRange(0, l.c.Size())
	if err != nil {
		return dst, err
	}
	for _, v := range vs {
		dst = append(dst, int(v.Index))
	}
	return dst, nil
}

func (l *Leaf) Flush() error {
	return l.c.Flush(false)
}

func (l *Leaf) Close() error {
	return l.c.Close()
}

// LeafFactory returns an octree.ContainerFactory storing each leaf in dir.
// Files are named after the Morton code of the leaf key followed by a random
// suffix, so keys renumbered by bounding box adaptation never reuse a file.
// If a seed is given, each leaf derives its own seed from it and the key.
func LeafFactory(dir string, opts ...Option) octree.ContainerFactory {
	cfg := newConfig(opts)
	return func(key octree.Key) (octree.LeafContainer, error) {
		leafOpts := opts
		if cfg.seeded {
			leafOpts = append(opts[:len(opts):len(opts)], WithSeed(cfg.seed^int64(key.Morton())))
		}
		path := filepath.Join(dir, fmt.Sprintf("%016x-%s.pcd", key.Morton(), uuid.NewString()))
		c, err := New[IndexedPoint](path, IndexedPointCodec{}, leafOpts...)
		if err != nil {
			return nil, err
		}
		return NewLeaf(c), nil
	}
}

var _ octree.LeafContainer = (*Leaf)(nil)
