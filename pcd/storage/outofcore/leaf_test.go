package outofcore

import (
	"context"
	"math"
	"math/rand"
	"os"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"
	"go.uber.org/zap/zaptest"

	"github.com/seqsense/pcdoctree/pcd"
	"github.com/seqsense/pcdoctree/pcd/storage/octree"
)

func TestIndexedPointCodec(t *testing.T) {
	v := IndexedPoint{Index: 0xDEADBEEF, Point: mat.Vec3{1.5, -2, 3.25}}
	b := make([]byte, IndexedPointCodec{}.Schema().Stride())
	IndexedPointCodec{}.Encode(b, v)
	if got := (IndexedPointCodec{}).Decode(b); got != v {
		t.Errorf("Expected %v, got: %v", v, got)
	}
	if off, ok := (IndexedPointCodec{}).Schema().Offset("index"); !ok || off != 12 {
		t.Errorf("Expected index at 12, got: %d, %v", off, ok)
	}
}

func TestLeafFactory(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cloud := make(pc.Vec3Slice, 2000)
	for i := range cloud {
		cloud[i] = mat.Vec3{rng.Float32(), rng.Float32(), rng.Float32()}
	}

	build := func(t *testing.T, opts ...octree.Option) *octree.Octree {
		o, err := octree.New(0.125, append([]octree.Option{octree.WithLogger(zaptest.NewLogger(t))}, opts...)...)
		if err != nil {
			t.Fatal(err)
		}
		if err := o.SetInputCloud(cloud, nil); err != nil {
			t.Fatal(err)
		}
		if err := o.AddPointsFromInputCloud(); err != nil {
			t.Fatal(err)
		}
		return o
	}

	dir := t.TempDir()
	disk := build(t, octree.WithLeafContainer(LeafFactory(dir, WithWriteBuffMax(8), WithSeed(1))))
	mem := build(t)

	if disk.LeafCount() != mem.LeafCount() {
		t.Fatalf("Expected %d leaves, got: %d", mem.LeafCount(), disk.LeafCount())
	}
	for _, q := range []mat.Vec3{{0.5, 0.5, 0.5}, {0.1, 0.9, 0.3}, {1.2, -0.1, 0.4}} {
		expected, expectedDists, err := mem.NearestKSearch(q, 20)
		if err != nil {
			t.Fatal(err)
		}
		indices, dists, err := disk.NearestKSearch(q, 20)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(expected, indices); diff != "" {
			t.Errorf("Query %v: indices differ (-expected +got):\n%s", q, diff)
		}
		if diff := cmp.Diff(expectedDists, dists); diff != "" {
			t.Errorf("Query %v: distances differ (-expected +got):\n%s", q, diff)
		}
	}

	if err := disk.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	var records int64
	disk.Leaves(func(_ octree.NodeID, _ octree.Key, c octree.LeafContainer) bool {
		l := c.(*Leaf)
		if l.Container().fileLen != l.Container().Size() {
			t.Errorf("Leaf %s has unflushed records", l.Container().Path())
		}
		records += l.Container().Size()
		return true
	})
	if records != int64(len(cloud)) {
		t.Errorf("Expected %d records, got: %d", len(cloud), records)
	}
	if err := disk.Close(); err != nil {
		t.Fatal(err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != mem.LeafCount() {
		t.Errorf("Expected %d files, got: %d", mem.LeafCount(), len(files))
	}
}

func TestLeafPushIndexRange(t *testing.T) {
	c, err := NewTemp[IndexedPoint](t.TempDir(), IndexedPointCodec{}, WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatal(err)
	}
	l := NewLeaf(c)
	defer func() {
		if err := l.Close(); err != nil {
			t.Error(err)
		}
	}()

	tooLarge := int64(1) << 32
	testCases := map[string]struct {
		index int
		err   error
	}{
		"Zero":     {index: 0},
		"Max":      {index: int(int64(math.MaxUint32))},
		"Negative": {index: -1, err: pcd.ErrOutOfRange},
		"TooLarge": {index: int(tooLarge), err: pcd.ErrOutOfRange},
	}
	for name, tt := range testCases {
		tt := tt
		t.Run(name, func(t *testing.T) {
			if err := l.Push(tt.index, mat.Vec3{1, 2, 3}); !errors.Is(err, tt.err) {
				t.Errorf("Expected error: %v, got: %v", tt.err, err)
			}
		})
	}

	indices, err := l.AppendIndices(nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, int(int64(math.MaxUint32))}
	if diff := cmp.Diff(want, sortedInts(indices)); diff != "" {
		t.Errorf("Stored indices differ (-expected +got):\n%s", diff)
	}
}

func sortedInts(v []int) []int {
	sort.Ints(v)
	return v
}
