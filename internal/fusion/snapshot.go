// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import "github.com/relabs-tech/head_tracker/internal/orientation"

// Snapshot is a consistent copy of the filter state.
type Snapshot struct {
	Running           bool
	Initialized       bool
	FilterCoefficient float64

	Gyro        orientation.Quaternion
	Absolute    orientation.Quaternion
	Fused       orientation.Quaternion
	Calibration orientation.Quaternion
	Rotation    orientation.Quaternion

	GyroSamples  uint64
	AccelSamples uint64
	MagSamples   uint64
	Rejected     uint64
}

// Snapshot copies the engine state under its lock.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Running:           e.running,
		Initialized:       e.initialized,
		FilterCoefficient: e.filter,
		Gyro:              e.gyro,
		Absolute:          e.absolute,
		Fused:             e.fused,
		Calibration:       e.calibration,
		Rotation:          e.fused.Mul(e.calibration).Normalize(),
		GyroSamples:       e.gyroSamples,
		AccelSamples:      e.accelSamples,
		MagSamples:        e.magSamples,
		Rejected:          e.rejected,
	}
}
