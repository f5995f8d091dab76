package pcd

import (
	"encoding/binary"
	"math"

	"github.com/seqsense/pcgol/mat"

	"github.com/seqsense/pcdoctree/pcd/internal/float"
)

// Codec converts a value to and from one fixed size record.
// Encode and Decode are called with slices of exactly Schema().Stride() bytes.
type Codec[T any] interface {
	Schema() *Schema
	Encode(dst []byte, v T)
	Decode(src []byte) T
}

// SliceDecoder is implemented by codecs having a faster path for contiguous records.
type SliceDecoder[T any] interface {
	DecodeSlice(dst []T, src []byte) []T
}

// DecodeAll appends every record stored in b to dst.
func DecodeAll[T any](c Codec[T], dst []T, b []byte) []T {
	if sd, ok := c.(SliceDecoder[T]); ok {
		return sd.DecodeSlice(dst, b)
	}
	stride := c.Schema().Stride()
	for off := 0; off+stride <= len(b); off += stride {
		dst = append(dst, c.Decode(b[off:off+stride]))
	}
	return dst
}

// EncodeAll encodes vs into consecutive records.
func EncodeAll[T any](c Codec[T], vs []T) []byte {
	stride := c.Schema().Stride()
	b := make([]byte, len(vs)*stride)
	for i, v := range vs {
		c.Encode(b[i*stride:(i+1)*stride], v)
	}
	return b
}

var vec3Schema = MustSchema(
	Field{Name: "x", Size: 4, Type: "F", Count: 1},
	Field{Name: "y", Size: 4, Type: "F", Count: 1},
	Field{Name: "z", Size: 4, Type: "F", Count: 1},
)

// Vec3Codec stores mat.Vec3 as x y z float32.
type Vec3Codec struct{}

func (Vec3Codec) Schema() *Schema {
	return vec3Schema
}

func (Vec3Codec) Encode(dst []byte, v mat.Vec3) {
	PutVec3(dst, v)
}

func (Vec3Codec) Decode(src []byte) mat.Vec3 {
	return GetVec3(src)
}

func (c Vec3Codec) DecodeSlice(dst []mat.Vec3, src []byte) []mat.Vec3 {
	n := len(src) / 12
	if float.NativeLittleEndian && float.IsAligned(src) {
		f := float.ByteSliceAsFloat32Slice(src[:n*12])
		for i := 0; i < n; i++ {
			dst = append(dst, mat.Vec3{f[3*i], f[3*i+1], f[3*i+2]})
		}
		return dst
	}
	for i := 0; i < n; i++ {
		dst = append(dst, GetVec3(src[i*12:]))
	}
	return dst
}

// PutVec3 writes three little endian float32 to b.
func PutVec3(b []byte, v mat.Vec3) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(v[2]))
}

// GetVec3 reads three little endian float32 from b.
func GetVec3(b []byte) mat.Vec3 {
	return mat.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	}
}
