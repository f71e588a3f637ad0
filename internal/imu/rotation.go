// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"time"

	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// Rotation is the head rotation published by the tracker once per render tick.
type Rotation struct {
	Quaternion        orientation.Quaternion `json:"quaternion"`
	Pose              orientation.Pose       `json:"pose"`
	Running           bool                   `json:"running"`
	FilterCoefficient float64                `json:"filter_coefficient"`
	Time              time.Time              `json:"time"`
}

// NewRotation fills the derived pose from q.
func NewRotation(q orientation.Quaternion, running bool, filter float64, t time.Time) Rotation {
	return Rotation{
		Quaternion:        q,
		Pose:              orientation.PoseFromQuaternion(q),
		Running:           running,
		FilterCoefficient: filter,
		Time:              t,
	}
}
