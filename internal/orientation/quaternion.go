// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Epsilon is the magnitude below which vectors and quaternions are treated as zero.
const Epsilon = 1e-6

// Quaternion is a rotation in (w, x, y, z) order.
// Algebra is delegated to gonum's quat.Number.
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Identity returns the no-rotation quaternion.
func Identity() Quaternion {
	return Quaternion{W: 1}
}

func (q Quaternion) number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func fromNumber(n quat.Number) Quaternion {
	return Quaternion{W: n.Real, X: n.Imag, Y: n.Jmag, Z: n.Kmag}
}

// FromAxisAngle builds the rotation of angle radians about a unit axis.
func FromAxisAngle(ax, ay, az, angle float64) Quaternion {
	s := math.Sin(angle / 2)
	return Quaternion{W: math.Cos(angle / 2), X: s * ax, Y: s * ay, Z: s * az}
}

// Mul returns q ⊗ r (r applied first in the body frame of q).
func (q Quaternion) Mul(r Quaternion) Quaternion {
	return fromNumber(quat.Mul(q.number(), r.number()))
}

// Conjugate negates the vector part.
func (q Quaternion) Conjugate() Quaternion {
	return fromNumber(quat.Conj(q.number()))
}

// Inverse returns q⁻¹. A zero quaternion has no inverse; identity is returned.
func (q Quaternion) Inverse() Quaternion {
	if q.Norm() < Epsilon {
		return Identity()
	}
	return fromNumber(quat.Inv(q.number()))
}

// Norm is the Euclidean length of the 4-vector.
func (q Quaternion) Norm() float64 {
	return quat.Abs(q.number())
}

// Normalize scales q to unit length. Degenerate input collapses to identity
// so callers always hold a valid rotation.
func (q Quaternion) Normalize() Quaternion {
	n := q.Norm()
	if n < Epsilon || math.IsNaN(n) || math.IsInf(n, 0) {
		return Identity()
	}
	return fromNumber(quat.Scale(1/n, q.number()))
}

// Scale multiplies every component by f.
func (q Quaternion) Scale(f float64) Quaternion {
	return fromNumber(quat.Scale(f, q.number()))
}

// Add is component-wise addition.
func (q Quaternion) Add(r Quaternion) Quaternion {
	return fromNumber(quat.Add(q.number(), r.number()))
}

// Dot is the 4-vector inner product.
func (q Quaternion) Dot(r Quaternion) float64 {
	return q.W*r.W + q.X*r.X + q.Y*r.Y + q.Z*r.Z
}

// AngleTo returns the rotation angle in radians between q and r,
// insensitive to the q/-q double cover.
func (q Quaternion) AngleTo(r Quaternion) float64 {
	d := q.Normalize().Conjugate().Mul(r.Normalize())
	v := math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
	return 2 * math.Atan2(v, math.Abs(d.W))
}

// Matrix returns the row-major rotation matrix of a unit quaternion.
func (q Quaternion) Matrix() [9]float64 {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	return [9]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}

// Rotate maps a device-frame vector into the world frame.
func (q Quaternion) Rotate(v [3]float64) [3]float64 {
	p := q.Mul(Quaternion{X: v[0], Y: v[1], Z: v[2]}).Mul(q.Conjugate())
	return [3]float64{p.X, p.Y, p.Z}
}

// RotateInverse maps a world-frame vector into the device frame.
func (q Quaternion) RotateInverse(v [3]float64) [3]float64 {
	return q.Conjugate().Rotate(v)
}
