package voxelgrid

import (
	"sort"

	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"
	"go.uber.org/zap"

	"github.com/seqsense/pcdoctree/pcd/filter"
	"github.com/seqsense/pcdoctree/pcd/storage/octree"
)

type Options struct {
	LeafSize float32
	Logger   *zap.Logger
}

type voxelGrid struct {
	Options
}

type voxel struct {
	centroid mat.Vec3
	index    int
}

// New returns a filter replacing the points in each voxel by their centroid.
// Other fields are taken from the first point of the voxel.
func New(leafSize float32) filter.Filter {
	return NewWithOptions(Options{LeafSize: leafSize})
}

func NewWithOptions(opts Options) filter.Filter {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &voxelGrid{Options: opts}
}

func (f *voxelGrid) Filter(pp *pc.PointCloud) (*pc.PointCloud, error) {
	o, err := octree.New(float64(f.LeafSize), octree.WithLogger(f.Logger))
	if err != nil {
		return nil, err
	}
	newPc := &pc.PointCloud{
		PointCloudHeader: pp.PointCloudHeader.Clone(),
	}
	newPc.Width = 0
	newPc.Height = 1
	if pp.Points == 0 {
		return newPc, nil
	}

	it, err := pp.Vec3Iterator()
	if err != nil {
		return nil, err
	}
	points := make(pc.Vec3Slice, pp.Points)
	for i := range points {
		points[i] = it.Vec3At(i)
	}

	if err := o.SetInputCloud(points, nil); err != nil {
		return nil, err
	}
	if err := o.AddPointsFromInputCloud(); err != nil {
		return nil, err
	}

	voxels := make([]voxel, 0, o.LeafCount())
	var indices []int
	o.Leaves(func(_ octree.NodeID, _ octree.Key, c octree.LeafContainer) bool {
		indices, err = c.AppendIndices(indices[:0])
		if err != nil || len(indices) == 0 {
			return err == nil
		}
		var sum [3]float64
		for _, i := range indices {
			p := points[i]
			sum[0] += float64(p[0])
			sum[1] += float64(p[1])
			sum[2] += float64(p[2])
		}
		n := float64(len(indices))
		voxels = append(voxels, voxel{
			centroid: mat.Vec3{float32(sum[0] / n), float32(sum[1] / n), float32(sum[2] / n)},
			index:    indices[0],
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(voxels, func(i, j int) bool { return voxels[i].index < voxels[j].index })

	n := len(voxels)
	stride := pp.Stride()
	newPc.Width = n
	newPc.Points = n
	newPc.Data = make([]byte, stride*n)
	for j, v := range voxels {
		copy(newPc.Data[j*stride:(j+1)*stride], pp.Data[v.index*stride:(v.index+1)*stride])
	}
	jt, err := newPc.Vec3Iterator()
	if err != nil {
		return nil, err
	}
	for _, v := range voxels {
		jt.SetVec3(v.centroid)
		jt.Incr()
	}

	f.Logger.Debug("Filtered point cloud",
		zap.Int("points", pp.Points),
		zap.Int("voxels", n),
	)
	return newPc, nil
}
