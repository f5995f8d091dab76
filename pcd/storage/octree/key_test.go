package octree

import (
	"testing"
)

func TestKeyMorton(t *testing.T) {
	testCases := map[string]struct {
		key    Key
		morton uint64
	}{
		"Zero":  {key: Key{}, morton: 0},
		"X":     {key: Key{X: 1}, morton: 1},
		"Y":     {key: Key{Y: 1}, morton: 2},
		"Z":     {key: Key{Z: 1}, morton: 4},
		"XYZ":   {key: Key{X: 3, Y: 3, Z: 3}, morton: 63},
		"Mixed": {key: Key{X: 2, Y: 1, Z: 0}, morton: 0x0a},
		"Max": {
			key:    Key{X: 1<<MaxDepth - 1, Y: 1<<MaxDepth - 1, Z: 1<<MaxDepth - 1},
			morton: 1<<(3*MaxDepth) - 1,
		},
	}

	for name, tt := range testCases {
		tt := tt
		t.Run(name, func(t *testing.T) {
			if m := tt.key.Morton(); m != tt.morton {
				t.Errorf("Expected Morton code: %x, got: %x", tt.morton, m)
			}
			if k := KeyFromMorton(tt.morton); k != tt.key {
				t.Errorf("Expected key: %v, got: %v", tt.key, k)
			}
		})
	}
}

func TestKeyChild(t *testing.T) {
	k := Key{X: 5, Y: 2, Z: 7}
	for idx := uint8(0); idx < 8; idx++ {
		c := k.Child(idx)
		if c.Parent() != k {
			t.Errorf("Expected parent of %v: %v, got: %v", c, k, c.Parent())
		}
		if ci := c.ChildIndex(0); ci != idx {
			t.Errorf("Expected child index: %d, got: %d", idx, ci)
		}
	}
	if ci := k.ChildIndex(1); ci != 6 {
		t.Errorf("Expected child index at bit 1: 6, got: %d", ci)
	}
	if a := k.Child(3).Child(4).Ancestor(2); a != k {
		t.Errorf("Expected ancestor: %v, got: %v", k, a)
	}
	if !(Key{X: 1}).Less(Key{Y: 1}) {
		t.Error("Key with x bit must be less than key with y bit")
	}
}
