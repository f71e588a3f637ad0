// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import "math"

const (
	// StandardGravity in m/s².
	StandardGravity = 9.80665

	// Readings below 10% of gravity mean the device is in free fall and the
	// gravity direction is unknown.
	freeFallGravitySquared = 0.01 * StandardGravity * StandardGravity

	// |E×A| below this means the magnetic field is (nearly) parallel to gravity.
	minHorizontalField = 0.1
)

// RotationMatrix builds the row-major 3x3 matrix that maps device coordinates to a
// world frame with X east, Y magnetic north and Z up, from a gravity reading
// (accelerometer at rest) and a geomagnetic reading. ok is false when the inputs
// cannot define a frame.
func RotationMatrix(gravity, geomagnetic [3]float64) (r [9]float64, ok bool) {
	ax, ay, az := gravity[0], gravity[1], gravity[2]
	normsqA := ax*ax + ay*ay + az*az
	if normsqA < freeFallGravitySquared {
		return r, false
	}

	ex, ey, ez := geomagnetic[0], geomagnetic[1], geomagnetic[2]
	hx := ey*az - ez*ay
	hy := ez*ax - ex*az
	hz := ex*ay - ey*ax
	normH := math.Sqrt(hx*hx + hy*hy + hz*hz)
	if normH < minHorizontalField {
		return r, false
	}

	invH := 1 / normH
	hx, hy, hz = hx*invH, hy*invH, hz*invH

	invA := 1 / math.Sqrt(normsqA)
	ax, ay, az = ax*invA, ay*invA, az*invA

	mx := ay*hz - az*hy
	my := az*hx - ax*hz
	mz := ax*hy - ay*hx

	return [9]float64{
		hx, hy, hz,
		mx, my, mz,
		ax, ay, az,
	}, true
}

// OrientationAngles extracts azimuth (about -Z), pitch (about X) and roll
// (about Y), in radians, from a RotationMatrix result.
func OrientationAngles(r [9]float64) (azimuth, pitch, roll float64) {
	azimuth = math.Atan2(r[1], r[4])
	pitch = math.Asin(clamp(-r[7], -1, 1))
	roll = math.Atan2(-r[6], r[8])
	return azimuth, pitch, roll
}

// FromEuler converts azimuth/pitch/roll (radians, as returned by
// OrientationAngles) to the device-to-world quaternion. The matrix they come
// from is the intrinsic ZXY composition Rz(-azimuth)·Rx(-pitch)·Ry(roll), so the
// result shares its frame with body-rate gyro integration.
func FromEuler(azimuth, pitch, roll float64) Quaternion {
	qz := FromAxisAngle(0, 0, 1, -azimuth)
	qx := FromAxisAngle(1, 0, 0, -pitch)
	qy := FromAxisAngle(0, 1, 0, roll)
	return qz.Mul(qx).Mul(qy).Normalize()
}

// FromAccelMag derives the absolute device orientation from an accelerometer
// and magnetometer pair.
func FromAccelMag(gravity, geomagnetic [3]float64) (Quaternion, bool) {
	r, ok := RotationMatrix(gravity, geomagnetic)
	if !ok {
		return Identity(), false
	}
	return FromEuler(OrientationAngles(r)), true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
