// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"
)

// Motion is a smooth synthetic head movement used by the mock sensor device
// and the mock console.
type Motion struct {
	RollAmplitude  float64 // degrees
	PitchAmplitude float64 // degrees
	YawRate        float64 // degrees per second
}

// DefaultMotion looks around slowly while nodding and tilting.
var DefaultMotion = Motion{
	RollAmplitude:  20,
	PitchAmplitude: 15,
	YawRate:        30,
}

// At returns the device-to-world rotation after elapsed time.
func (m Motion) At(elapsed time.Duration) Quaternion {
	t := elapsed.Seconds()
	roll := m.RollAmplitude * math.Sin(t)
	pitch := m.PitchAmplitude * math.Cos(t*0.7)
	yaw := math.Mod(t*m.YawRate, 360)

	const d2r = math.Pi / 180.0
	return FromEuler(yaw*d2r, pitch*d2r, roll*d2r)
}

// AngularVelocity returns the body-frame rate (rad/s) at elapsed time by
// differencing the trajectory over a short step.
func (m Motion) AngularVelocity(elapsed time.Duration) [3]float64 {
	const h = time.Millisecond
	a := m.At(elapsed)
	b := m.At(elapsed + h)
	d := a.Conjugate().Mul(b)
	if d.W < 0 {
		d = d.Scale(-1)
	}
	s := 2 / h.Seconds()
	return [3]float64{d.X * s, d.Y * s, d.Z * s}
}
