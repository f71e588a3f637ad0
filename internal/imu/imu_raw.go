// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

// Raw is one accelerometer/gyroscope/magnetometer reading as published on the
// raw IMU topic. Absent sensors are omitted.
type Raw struct {
	Source         string `json:"source"`
	TimestampNanos int64  `json:"timestamp_ns"` // producer monotonic clock

	Accel *[3]float64 `json:"accel,omitempty"` // m/s²
	Gyro  *[3]float64 `json:"gyro,omitempty"`  // rad/s
	Mag   *[3]float64 `json:"mag,omitempty"`   // µT
}
