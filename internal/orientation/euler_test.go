// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Earth field in the world frame (X east, Y north, Z up), µT.
var worldField = [3]float64{0, 22, -42}

var worldGravity = [3]float64{0, 0, 9.81}

func TestFromAccelMag_FlatFacingNorth(t *testing.T) {
	q, ok := FromAccelMag([3]float64{0, 0, 9.8}, [3]float64{0, 50, 0})
	require.True(t, ok)
	assert.InDelta(t, 1.0, q.W, 1e-9)
	assert.InDelta(t, 0.0, q.X, 1e-9)
	assert.InDelta(t, 0.0, q.Y, 1e-9)
	assert.InDelta(t, 0.0, q.Z, 1e-9)
}

func TestFromAccelMag_RecoversDeviceRotation(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		want := randomRotation(rng)
		// Keep away from the pitch = ±90° singularity.
		if math.Abs(PoseFromQuaternion(want).Pitch) > 80 {
			continue
		}
		gravity := want.RotateInverse(worldGravity)
		field := want.RotateInverse(worldField)

		got, ok := FromAccelMag(gravity, field)
		require.True(t, ok)
		require.InDelta(t, 1.0, got.Norm(), 1e-4)
		require.Less(t, want.AngleTo(got), 1e-6, "rotation %d", i)
	}
}

func TestFromAccelMag_UnitQuaternion(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 500; i++ {
		a := [3]float64{rng.NormFloat64() * 10, rng.NormFloat64() * 10, rng.NormFloat64() * 10}
		m := [3]float64{rng.NormFloat64() * 50, rng.NormFloat64() * 50, rng.NormFloat64() * 50}
		q, ok := FromAccelMag(a, m)
		if !ok {
			continue
		}
		require.InDelta(t, 1.0, q.Norm(), 1e-4)
	}
}

func TestRotationMatrix_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		gravity [3]float64
		field   [3]float64
	}{
		{"free fall", [3]float64{0, 0, 0.5}, [3]float64{0, 50, 0}},
		{"field parallel to gravity", [3]float64{0, 0, 9.8}, [3]float64{0, 0, 50}},
		{"zero field", [3]float64{0, 0, 9.8}, [3]float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := RotationMatrix(tt.gravity, tt.field)
			assert.False(t, ok)
			q, ok := FromAccelMag(tt.gravity, tt.field)
			assert.False(t, ok)
			assert.Equal(t, Identity(), q)
		})
	}
}

func TestFromEuler_YawMatchesGyroSense(t *testing.T) {
	// A device turned 90° counter-clockwise (seen from above) faces west:
	// azimuth -90°, and the quaternion is +90° about Z.
	q := FromEuler(-math.Pi/2, 0, 0)
	want := FromAxisAngle(0, 0, 1, math.Pi/2)
	assert.Less(t, want.AngleTo(q), 1e-9)
}

func TestPoseFromQuaternion(t *testing.T) {
	p := PoseFromQuaternion(Identity())
	assert.InDelta(t, 0.0, p.Yaw, 1e-12)
	assert.InDelta(t, 0.0, p.Pitch, 1e-12)
	assert.InDelta(t, 0.0, p.Roll, 1e-12)

	p = PoseFromQuaternion(FromAxisAngle(0, 0, 1, math.Pi/2))
	assert.InDelta(t, -90.0, p.Yaw, 1e-9)
	assert.InDelta(t, 0.0, p.Pitch, 1e-9)
	assert.InDelta(t, 0.0, p.Roll, 1e-9)
}

func TestComputePoseFromAccel(t *testing.T) {
	p := ComputePoseFromAccel(0, 0, 9.81)
	assert.InDelta(t, 0.0, p.Roll, 1e-9)
	assert.InDelta(t, 0.0, p.Pitch, 1e-9)

	p = ComputePoseFromAccel(0, 9.81, 0)
	assert.InDelta(t, 90.0, p.Roll, 1e-9)
}

func TestMotionAngularVelocityIntegratesToTrajectory(t *testing.T) {
	m := DefaultMotion
	const step = 2 * time.Millisecond
	q := m.At(0)
	for elapsed := time.Duration(0); elapsed < time.Second; elapsed += step {
		w := m.AngularVelocity(elapsed)
		mag := math.Sqrt(w[0]*w[0] + w[1]*w[1] + w[2]*w[2])
		if mag > Epsilon {
			q = q.Mul(FromAxisAngle(w[0]/mag, w[1]/mag, w[2]/mag, mag*step.Seconds())).Normalize()
		}
	}
	assert.Less(t, m.At(time.Second).AngleTo(q), 1e-2)
}
