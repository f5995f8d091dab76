package octree

import (
	"github.com/seqsense/pcgol/mat"

	storage "github.com/seqsense/pcdoctree/pcd/storage/octree"
)

const initialSliceCap = 8192

// Segment returns the indices of the points in the voxels connected to the voxel
// containing p through occupied 26-neighbors.
func Segment(o *storage.Octree, p mat.Vec3) ([]int, error) {
	start := o.LeafAtPoint(p)
	if start == storage.NoNode {
		return nil, nil
	}
	searched := map[storage.NodeID]bool{start: true}
	next := make([]storage.NodeID, 0, initialSliceCap)
	next = append(next, start)
	indice := make([]int, 0, initialSliceCap)

	for len(next) > 0 {
		var id storage.NodeID
		id, next = next[0], next[1:]

		var err error
		if indice, err = o.Leaf(id).AppendIndices(indice); err != nil {
			return nil, err
		}

		for i := 0; i < storage.NeighborCount; i++ {
			n, err := o.NeighborByIndex(id, i, false)
			if err != nil {
				return nil, err
			}
			// Missing neighbors resolve to a covering branch.
			if n == storage.NoNode || !o.IsLeaf(n) || searched[n] {
				continue
			}
			searched[n] = true
			next = append(next, n)
		}
	}
	return indice, nil
}
