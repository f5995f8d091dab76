package octree

import (
	"testing"

	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"
)

func TestAdjacency(t *testing.T) {
	count := map[int]int{}
	for i := 0; i < NeighborCount; i++ {
		count[Adjacency(i)]++
	}
	expected := map[int]int{1: 6, 2: 12, 3: 8}
	for k, n := range expected {
		if count[k] != n {
			t.Errorf("Expected %d neighbors with adjacency %d, got: %d", n, k, count[k])
		}
	}
	if o := NeighborOffset(0); o != [3]int{-1, -1, -1} {
		t.Errorf("Expected first offset (-1, -1, -1), got: %v", o)
	}
}

func TestNeighborDense(t *testing.T) {
	o, _ := denseGrid(t, 4)

	center := o.LeafAtPoint(mat.Vec3{1.5, 1.5, 1.5})
	if center == NoNode {
		t.Fatal("Leaf not found")
	}
	key, depth := o.Node(center)
	for i := 0; i < NeighborCount; i++ {
		id, err := o.NeighborByIndex(center, i, false)
		if err != nil {
			t.Fatal(err)
		}
		if id == NoNode {
			t.Fatalf("Neighbor %d not found", i)
		}
		expected, _ := key.add(NeighborOffset(i))
		k, d := o.Node(id)
		if k != expected || d != depth || !o.IsLeaf(id) {
			t.Errorf("Neighbor %d: expected %v at depth %d, got: %v at depth %d", i, expected, depth, k, d)
		}
	}

	corner := o.LeafAtPoint(mat.Vec3{0.5, 0.5, 0.5})
	var outside int
	for i := 0; i < NeighborCount; i++ {
		id, err := o.NeighborByIndex(corner, i, false)
		if err != nil {
			t.Fatal(err)
		}
		if id == NoNode {
			outside++
		}
	}
	if outside != 19 {
		t.Errorf("Expected 19 neighbors outside of the tree, got: %d", outside)
	}
}

func TestNeighborSparse(t *testing.T) {
	cloud := pc.Vec3Slice{{0.5, 0.5, 0.5}, {3.5, 3.5, 3.5}}
	o, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := o.SetInputCloud(cloud, nil); err != nil {
		t.Fatal(err)
	}
	if err := o.DefineBoundingBox(mat.Vec3{0, 0, 0}, mat.Vec3{4, 4, 4}); err != nil {
		t.Fatal(err)
	}
	if err := o.AddPointsFromInputCloud(); err != nil {
		t.Fatal(err)
	}
	leaf := o.LeafAtPoint(cloud[0])

	testCases := map[string]struct {
		offset [3]int
		key    Key
		depth  int
	}{
		"SameParent":  {offset: [3]int{1, 0, 0}, key: Key{}, depth: 1},
		"OtherBranch": {offset: [3]int{2, 2, 2}, key: Key{X: 1, Y: 1, Z: 1}, depth: 1},
		"Existing":    {offset: [3]int{3, 3, 3}, key: Key{X: 3, Y: 3, Z: 3}, depth: 2},
		"EmptyBranch": {offset: [3]int{2, 0, 0}, key: Key{}, depth: 0},
	}
	for name, tt := range testCases {
		tt := tt
		t.Run(name, func(t *testing.T) {
			id, err := o.Neighbor(leaf, tt.offset, false)
			if err != nil {
				t.Fatal(err)
			}
			k, d := o.Node(id)
			if k != tt.key || d != tt.depth {
				t.Errorf("Expected %v at depth %d, got: %v at depth %d", tt.key, tt.depth, k, d)
			}
		})
	}

	leaves := o.LeafCount()
	id, err := o.Neighbor(leaf, [3]int{1, 0, 0}, true)
	if err != nil {
		t.Fatal(err)
	}
	k, d := o.Node(id)
	if k != (Key{X: 1}) || d != 2 || !o.IsLeaf(id) {
		t.Errorf("Expected forced leaf (1, 0, 0) at depth 2, got: %v at depth %d", k, d)
	}
	if o.LeafCount() != leaves+7 {
		t.Errorf("Expected %d leaves after forcing children, got: %d", leaves+7, o.LeafCount())
	}
	if o.Leaf(id).Size() != 0 {
		t.Error("Forced leaf must be empty")
	}

	id, err = o.Neighbor(leaf, [3]int{-1, 0, 0}, true)
	if err != nil || id != NoNode {
		t.Errorf("Neighbor outside of the tree must be NoNode, got: %v, %v", id, err)
	}
}
