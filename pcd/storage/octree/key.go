package octree

// MaxDepth is the deepest supported tree. A key at this depth fits in a 63 bit Morton code.
const MaxDepth = 21

// Key is a voxel address. At depth d every component lies in [0, 2^d).
type Key struct {
	X, Y, Z uint32
}

// ChildIndex returns the octant index selected by the given bit of the key.
// Bit 0 of the index is x, bit 1 is y and bit 2 is z.
func (k Key) ChildIndex(bit uint) uint8 {
	return uint8((k.X>>bit)&1 | ((k.Y>>bit)&1)<<1 | ((k.Z>>bit)&1)<<2)
}

// Child returns the key of the octant idx one level deeper.
func (k Key) Child(idx uint8) Key {
	return Key{
		X: k.X<<1 | uint32(idx&1),
		Y: k.Y<<1 | uint32((idx>>1)&1),
		Z: k.Z<<1 | uint32((idx>>2)&1),
	}
}

func (k Key) Parent() Key {
	return Key{X: k.X >> 1, Y: k.Y >> 1, Z: k.Z >> 1}
}

// Ancestor returns the key n levels up.
func (k Key) Ancestor(n uint) Key {
	return Key{X: k.X >> n, Y: k.Y >> n, Z: k.Z >> n}
}

// Morton interleaves the components, x in the lowest bit.
func (k Key) Morton() uint64 {
	return spread(k.X) | spread(k.Y)<<1 | spread(k.Z)<<2
}

func KeyFromMorton(m uint64) Key {
	return Key{
		X: compact(m),
		Y: compact(m >> 1),
		Z: compact(m >> 2),
	}
}

func (k Key) Less(o Key) bool {
	return k.Morton() < o.Morton()
}

func (k Key) add(offset [3]int) (Key, bool) {
	x := int64(k.X) + int64(offset[0])
	y := int64(k.Y) + int64(offset[1])
	z := int64(k.Z) + int64(offset[2])
	if x < 0 || y < 0 || z < 0 {
		return Key{}, false
	}
	return Key{X: uint32(x), Y: uint32(y), Z: uint32(z)}, true
}

func (k Key) inRange(depth int) bool {
	n := uint32(1) << uint(depth)
	return k.X < n && k.Y < n && k.Z < n
}

func spread(v uint32) uint64 {
	x := uint64(v) & 0x1fffff
	x = (x | x<<32) & 0x1f00000000ffff
	x = (x | x<<16) & 0x1f0000ff0000ff
	x = (x | x<<8) & 0x100f00f00f00f00f
	x = (x | x<<4) & 0x10c30c30c30c30c3
	x = (x | x<<2) & 0x1249249249249249
	return x
}

func compact(m uint64) uint32 {
	x := m & 0x1249249249249249
	x = (x | x>>2) & 0x10c30c30c30c30c3
	x = (x | x>>4) & 0x100f00f00f00f00f
	x = (x | x>>8) & 0x1f0000ff0000ff
	x = (x | x>>16) & 0x1f00000000ffff
	x = (x | x>>32) & 0x1fffff
	return uint32(x)
}
