package sac

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"

	"github.com/seqsense/pcdoctree/pcd/storage/octree"
)

func newTree(t *testing.T, resolution float64, cloud pc.Vec3Slice, min, max mat.Vec3) *octree.Octree {
	t.Helper()
	o, err := octree.New(resolution)
	if err != nil {
		t.Fatal(err)
	}
	if err := o.SetInputCloud(cloud, nil); err != nil {
		t.Fatal(err)
	}
	if err := o.DefineBoundingBox(min, max); err != nil {
		t.Fatal(err)
	}
	if err := o.AddPointsFromInputCloud(); err != nil {
		t.Fatal(err)
	}
	return o
}

func TestOctreeSurfaceModel(t *testing.T) {
	pc0 := pc.Vec3Slice{
		{0.0, 0.0, 0.0},
		{0.1, 0.0, 0.1},
		{0.2, 0.0, 0.2},
		{0.2, 0.1, 0.6}, // outlier
		{0.0, 0.1, 0.0},
		{0.1, 0.1, 0.1},
		{0.2, 0.1, 0.2},
		{0.0, 0.2, 0.0},
		{0.1, 0.2, 0.1},
		{0.2, 0.2, 0.2},
	}
	pc1 := pc.Vec3Slice{
		{0.0, 0.0, 0.0},
		{0.1, 0.0, 0.1},
		{0.2, 0.0, 0.2},
		{0.2, 0.1, 0.6}, // outlier
		{0.0, 0.1, 0.1},
		{0.1, 0.1, 0.2},
		{0.2, 0.1, 0.3},
		{0.0, 0.2, 0.2},
		{0.1, 0.2, 0.3},
		{0.2, 0.2, 0.4},
	}

	for name, tt := range map[string]struct {
		origin mat.Vec3
		pc     pc.Vec3Slice
	}{
		"Zero_XZ": {
			origin: mat.Vec3{0, 0, 0},
			pc:     pc0,
		},
		"NoZero_XZ": {
			origin: mat.Vec3{0, 0, -0.1},
			pc:     pc0,
		},
		"Zero_XYZ": {
			origin: mat.Vec3{0, 0, 0},
			pc:     pc1,
		},
		"NoZero_XYZ": {
			origin: mat.Vec3{0, 0, -0.1},
			pc:     pc1,
		},
	} {
		tt := tt
		t.Run(name, func(t *testing.T) {
			o := newTree(t, 0.1, tt.pc, tt.origin, tt.origin.Add(mat.Vec3{0.8, 0.8, 0.8}))

			t.Run("Surface", func(t *testing.T) {
				m := NewOctreeSurfaceModel(o, tt.pc)
				c, ok := m.Fit([]int{1, 5, 7})
				if !ok {
					t.Fatal("Fit failed")
				}

				indice := c.Inliers(0.1)
				sort.Ints(indice)
				expectedIndice := []int{0, 1, 2, 4, 5, 6, 7, 8, 9}
				if diff := cmp.Diff(expectedIndice, indice); diff != "" {
					t.Errorf("Inliers differ (-expected +got):\n%s", diff)
				}
				// Points on the plane lie on voxel boundaries of the grown tree.
				if e := c.Evaluate(); e < len(indice) || e > len(tt.pc) {
					t.Errorf("Evaluation out of range: %d", e)
				}

				t.Run("IsIn", func(t *testing.T) {
					if in := c.IsIn(tt.pc[0], 0.1); !in {
						t.Error("Point on the surface must be determined as IsIn")
					}
					if in := c.IsIn(tt.pc[3], 0.1); in {
						t.Error("Point out of the surface must not be determined as IsIn")
					}
				})
			})
			t.Run("InTheSameLine", func(t *testing.T) {
				m := NewOctreeSurfaceModel(o, tt.pc)
				_, ok := m.Fit([]int{0, 1, 2})
				if ok {
					t.Fatal("Expected failure")
				}
			})
			t.Run("OutsideBox", func(t *testing.T) {
				far := pc.Vec3Slice{{5, 5, 5}, {6, 5, 5}, {5, 6, 5}}
				m := NewOctreeSurfaceModel(o, far)
				_, ok := m.Fit([]int{0, 1, 2})
				if ok {
					t.Fatal("Expected failure")
				}
			})
			t.Run("SamePoint", func(t *testing.T) {
				m := NewOctreeSurfaceModel(o, tt.pc)
				_, ok := m.Fit([]int{1, 1, 8})
				if ok {
					t.Fatal("Expected failure")
				}
			})
		})
	}
}
