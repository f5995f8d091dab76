package pcd

import (
	"github.com/pkg/errors"
)

var (
	// ErrOutOfRange is returned for index based access beyond the logical size of a
	// point container or a disk container.
	ErrOutOfRange = errors.New("index out of range")
	// ErrUnorganized is returned for 2D (column, row) access to a cloud with HEIGHT 1.
	ErrUnorganized = errors.New("point cloud is not organized")
	// ErrSchemaMismatch is returned when stored records do not match the expected fields.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrInvalidSchema is returned for unsupported field definitions.
	ErrInvalidSchema = errors.New("invalid schema")
)
