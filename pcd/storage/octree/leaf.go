package octree

import (
	"github.com/seqsense/pcgol/mat"
)

// LeafContainer stores the points assigned to one leaf voxel.
type LeafContainer interface {
	// Push appends the point index. p is the point coordinate for containers
	// keeping their own copy of the data.
	Push(index int, p mat.Vec3) error
	Size() int
	// AppendIndices appends every stored index to dst in insertion order.
	AppendIndices(dst []int) ([]int, error)
}

// ContainerFactory creates the container of a new leaf at key.
type ContainerFactory func(key Key) (LeafContainer, error)

// IndexList is an in-memory LeafContainer.
type IndexList struct {
	indices []int
}

func NewIndexList(Key) (LeafContainer, error) {
	return &IndexList{}, nil
}

func (l *IndexList) Push(index int, _ mat.Vec3) error {
	l.indices = append(l.indices, index)
	return nil
}

func (l *IndexList) Size() int {
	return len(l.indices)
}

func (l *IndexList) AppendIndices(dst []int) ([]int, error) {
	return append(dst, l.indices...), nil
}

type flusher interface {
	Flush() error
}

type closer interface {
	Close() error
}
