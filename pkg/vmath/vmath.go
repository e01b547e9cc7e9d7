// Package vmath provides immutable 3D vector math for the targeting pipeline.
package vmath

import "math"

// Vector is a 3D vector with value semantics. Every operation returns a
// new value; no method mutates its receiver.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// New creates a Vector from its components.
func New(x, y, z float64) Vector {
	return Vector{X: x, Y: y, Z: z}
}

// Add returns v + o.
func (v Vector) Add(o Vector) Vector {
	return Vector{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vector) Sub(o Vector) Vector {
	return Vector{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Mul returns v scaled by s.
func (v Vector) Mul(s float64) Vector {
	return Vector{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Length returns the Euclidean norm of v.
func (v Vector) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalize returns a unit vector in the direction of v.
// The zero vector normalizes to the zero vector; this never divides by zero.
func (v Vector) Normalize() Vector {
	length := v.Length()
	if length == 0 {
		return Vector{}
	}
	return v.Mul(1 / length)
}

// DistanceTo returns the Euclidean distance between the points v and o.
func (v Vector) DistanceTo(o Vector) float64 {
	return v.Sub(o).Length()
}

// Dot returns the dot product of v and o.
func (v Vector) Dot(o Vector) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product of v and o.
func (v Vector) Cross(o Vector) Vector {
	return Vector{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Lerp linearly interpolates from v toward o by t: v + (o-v)*t.
// t is not clamped; callers clamp where needed.
func (v Vector) Lerp(o Vector, t float64) Vector {
	return v.Add(o.Sub(v).Mul(t))
}

// AngleTo returns the angle in radians between v and o.
// The cosine is clamped to [-1, 1] before acos so near-parallel vectors
// with floating-point overshoot cannot produce NaN.
func (v Vector) AngleTo(o Vector) float64 {
	lv := v.Length()
	lo := o.Length()
	if lv == 0 || lo == 0 {
		return 0
	}
	cos := v.Dot(o) / (lv * lo)
	return math.Acos(Clamp(cos, -1, 1))
}

// IsZero reports whether all components are exactly zero.
func (v Vector) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Clamp restricts x to the range [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
