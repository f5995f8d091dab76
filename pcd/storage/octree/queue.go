package octree

import (
	"github.com/tidwall/tinyqueue"
)

// branchEntry is a node waiting to be visited, ordered nearest first.
type branchEntry struct {
	node NodeID
	dist float64
}

func (e *branchEntry) Less(b tinyqueue.Item) bool {
	return e.dist < b.(*branchEntry).dist
}

// pointEntry is a candidate point. The queue of candidates pops the worst first.
type pointEntry struct {
	index int
	dist  float64
}

func (e *pointEntry) Less(b tinyqueue.Item) bool {
	return worse(e, b.(*pointEntry))
}

func worse(a, b *pointEntry) bool {
	if a.dist != b.dist {
		return a.dist > b.dist
	}
	return a.index > b.index
}

// resultSet sorts indices by distance, then by index.
type resultSet struct {
	indices []int
	dists   []float64
}

func (r resultSet) Len() int {
	return len(r.indices)
}

func (r resultSet) Less(i, j int) bool {
	if r.dists[i] != r.dists[j] {
		return r.dists[i] < r.dists[j]
	}
	return r.indices[i] < r.indices[j]
}

func (r resultSet) Swap(i, j int) {
	r.indices[i], r.indices[j] = r.indices[j], r.indices[i]
	r.dists[i], r.dists[j] = r.dists[j], r.dists[i]
}
