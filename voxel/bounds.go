// Package voxel defines the identity of a single power-of-two cube in voxel space.
package voxel

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Bounds identifies one cube whose edge length is 2^LgSize world units and whose low corner sits
// at (X, Y, Z) * 2^LgSize. Two Bounds are the same cube only if all four fields match; a coarse cube
// is never equal to the finer cubes it contains.
type Bounds struct {
	// X is the x-coordinate as a multiple of 2^LgSize.
	X int32
	// Y is the y-coordinate as a multiple of 2^LgSize.
	Y int32
	// Z is the z-coordinate as a multiple of 2^LgSize.
	Z int32
	// LgSize is the log_2 of the cube's edge length.
	LgSize int16
}

// New returns the Bounds of the cube at the given position and scale.
// N.B. the coordinates are in units of 2^lgSize, not world units.
func New(x, y, z int32, lgSize int16) Bounds {
	return Bounds{X: x, Y: y, Z: z, LgSize: lgSize}
}

// Size returns the edge length of the cube in world units.
func (b Bounds) Size() float64 {
	return math.Ldexp(1, int(b.LgSize))
}

// Min returns the world-space low corner of the cube.
func (b Bounds) Min() r3.Vector {
	return r3.Vector{X: float64(b.X), Y: float64(b.Y), Z: float64(b.Z)}.Mul(b.Size())
}

// Max returns the world-space high corner of the cube. The cube does not contain it.
func (b Bounds) Max() r3.Vector {
	return r3.Vector{X: float64(b.X) + 1, Y: float64(b.Y) + 1, Z: float64(b.Z) + 1}.Mul(b.Size())
}

// Center returns the world-space midpoint of the cube.
func (b Bounds) Center() r3.Vector {
	return r3.Vector{X: float64(b.X) + .5, Y: float64(b.Y) + .5, Z: float64(b.Z) + .5}.Mul(b.Size())
}

// Child returns the octant of b selected by cx, cy and cz, each 0 for the low half of that axis and
// 1 for the high half.
func (b Bounds) Child(cx, cy, cz int) Bounds {
	return Bounds{
		X:      b.X<<1 + int32(cx),
		Y:      b.Y<<1 + int32(cy),
		Z:      b.Z<<1 + int32(cz),
		LgSize: b.LgSize - 1,
	}
}

// ContainsPoint reports whether p lies in the half-open cube [Min, Max).
func (b Bounds) ContainsPoint(p r3.Vector) bool {
	lo, hi := b.Min(), b.Max()
	return lo.X <= p.X && p.X < hi.X &&
		lo.Y <= p.Y && p.Y < hi.Y &&
		lo.Z <= p.Z && p.Z < hi.Z
}

// String formats b as its position followed by its scale.
func (b Bounds) String() string {
	return fmt.Sprintf("(%d, %d, %d) @ 2^%d", b.X, b.Y, b.Z, b.LgSize)
}

// FromPoint returns the cube with edge length 2^lgSize that contains the world-space point p.
func FromPoint(p r3.Vector, lgSize int16) (Bounds, error) {
	size := math.Ldexp(1, int(lgSize))
	coords := [3]float64{p.X, p.Y, p.Z}
	var out [3]int32
	for i, c := range coords {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return Bounds{}, errors.Errorf("invalid point coordinate %v", c)
		}
		scaled := math.Floor(c / size)
		if scaled < math.MinInt32 || scaled > math.MaxInt32 {
			return Bounds{}, errors.Errorf("point coordinate %v does not fit a voxel of size %v", c, size)
		}
		out[i] = int32(scaled)
	}
	return New(out[0], out[1], out[2], lgSize), nil
}
