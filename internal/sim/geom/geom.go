package geom

import (
	"fmt"
	"math"
)

// Vec3 is a world-space position in meters.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

func (v Vec3) ToArray() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func (v Vec3) String() string { return fmt.Sprintf("(%.2f,%.2f,%.2f)", v.X, v.Y, v.Z) }

func DistanceSquared(a, b Vec3) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return dx*dx + dy*dy + dz*dz
}

func Distance(a, b Vec3) float64 { return math.Sqrt(DistanceSquared(a, b)) }

// Vec3i is an integer cell coordinate local to one field.
type Vec3i struct {
	X int
	Y int
	Z int
}

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3i) ToArray() [3]int { return [3]int{v.X, v.Y, v.Z} }

func (v Vec3i) String() string { return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z) }

func Vec3iFromArray(a [3]int) Vec3i { return Vec3i{X: a[0], Y: a[1], Z: a[2]} }

func Vec3FromArray(a [3]float64) Vec3 { return Vec3{X: a[0], Y: a[1], Z: a[2]} }

func Manhattan(a, b Vec3i) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	dz := a.Z - b.Z
	if dz < 0 {
		dz = -dz
	}
	return dx + dy + dz
}

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// Splat returns a vector with every component set to n.
func Splat(n int) Vec3i { return Vec3i{X: n, Y: n, Z: n} }
