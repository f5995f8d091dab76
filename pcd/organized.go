package pcd

import (
	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"
)

// Vec3At2D returns the point at (col, row) of an organized point cloud.
func Vec3At2D(pp *pc.PointCloud, col, row int) (mat.Vec3, error) {
	if pp.Height <= 1 {
		return mat.Vec3{}, ErrUnorganized
	}
	if col < 0 || col >= pp.Width || row < 0 || row >= pp.Height {
		return mat.Vec3{}, errors.Wrapf(ErrOutOfRange, "(%d, %d) in %dx%d", col, row, pp.Width, pp.Height)
	}
	it, err := pp.Vec3Iterator()
	if err != nil {
		return mat.Vec3{}, err
	}
	return it.Vec3At(row*pp.Width + col), nil
}
