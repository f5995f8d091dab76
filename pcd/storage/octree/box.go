package octree

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/seqsense/pcgol/mat"
)

type box struct {
	min, max r3.Vector
}

func toR3(v mat.Vec3) r3.Vector {
	return r3.Vector{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

func toVec3(v r3.Vector) mat.Vec3 {
	return mat.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}

func isFinite(v r3.Vector) bool {
	for _, f := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func boxIntersection(a, b box) box {
	return box{
		min: r3.Vector{X: math.Max(a.min.X, b.min.X), Y: math.Max(a.min.Y, b.min.Y), Z: math.Max(a.min.Z, b.min.Z)},
		max: r3.Vector{X: math.Min(a.max.X, b.max.X), Y: math.Min(a.max.Y, b.max.Y), Z: math.Min(a.max.Z, b.max.Z)},
	}
}

func (b box) IsValid() bool {
	return !(b.min.X > b.max.X ||
		b.min.Y > b.max.Y ||
		b.min.Z > b.max.Z)
}

func (b box) IsInside(v r3.Vector) bool {
	return !(v.X < b.min.X ||
		v.Y < b.min.Y ||
		v.Z < b.min.Z ||
		b.max.X < v.X ||
		b.max.Y < v.Y ||
		b.max.Z < v.Z)
}

// Overlaps returns true if the boxes share at least one point.
func (b box) Overlaps(o box) bool {
	return boxIntersection(b, o).IsValid()
}

// Within returns true if b is entirely inside o.
func (b box) Within(o box) bool {
	return o.IsInside(b.min) && o.IsInside(b.max)
}

func (b box) Center() r3.Vector {
	return b.min.Add(b.max).Mul(0.5)
}

// SqDist returns the squared distance from p to the closest point of the box.
func (b box) SqDist(p r3.Vector) float64 {
	dx := axisDist(p.X, b.min.X, b.max.X)
	dy := axisDist(p.Y, b.min.Y, b.max.Y)
	dz := axisDist(p.Z, b.min.Z, b.max.Z)
	return dx*dx + dy*dy + dz*dz
}

func axisDist(k, min, max float64) float64 {
	if k < min {
		return min - k
	}
	if k <= max {
		return 0
	}
	return k - max
}
