package octree

import (
	"github.com/pkg/errors"
)

var (
	ErrInvalidResolution  = errors.New("resolution must be positive and finite")
	ErrInvalidBoundingBox = errors.New("invalid bounding box")
	ErrOutOfBounds        = errors.New("point is outside of the bounding box")
	ErrNonFinitePoint     = errors.New("point has non-finite coordinate")
	ErrInvalidK           = errors.New("k must be at least 1")
	ErrInvalidRadius      = errors.New("radius must be positive and finite")
	ErrNoInputCloud       = errors.New("input cloud is not set")
	// ErrTreeNotEmpty is returned by operations changing the coordinate frame
	// after points are inserted.
	ErrTreeNotEmpty = errors.New("octree already has points")
	// ErrConcurrentModification is returned by searches started while an
	// insertion is in progress.
	ErrConcurrentModification = errors.New("octree is being modified")
)
