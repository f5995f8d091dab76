package float

import (
	"unsafe"
)

// NativeLittleEndian is true if the host stores float32 in the PCD byte order.
var NativeLittleEndian = func() bool {
	v := uint16(1)
	return *(*byte)(unsafe.Pointer(&v)) == 1
}()

func ByteSliceAsFloat32Slice(b []byte) []float32 {
	n := len(b) / 4
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), n)
}

func Float32SliceAsByteSlice(f []float32) []byte {
	n := len(f) * 4
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&f[0])), n)
}

// IsAligned returns true if b can be viewed as []float32 without a misaligned access.
func IsAligned(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&b[0]))&3 == 0
}
