// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"time"

	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// MockDevice synthesizes consistent gyroscope, accelerometer and magnetometer
// samples for a device following Motion.
type MockDevice struct {
	Motion   orientation.Motion
	Period   time.Duration
	GyroBias [3]float64 // rad/s, added to every gyro sample
	Field    [3]float64 // world frame (X east, Y north, Z up), µT

	WithoutGyroscope    bool
	WithoutMagnetometer bool
}

// NewMockDevice returns a mock producing samples every period.
func NewMockDevice(period time.Duration) *MockDevice {
	return &MockDevice{
		Motion: orientation.DefaultMotion,
		Period: period,
		Field:  [3]float64{0, 22, -42},
	}
}

func (m *MockDevice) Name() string { return "mock" }

func (m *MockDevice) Kinds() []Kind {
	kinds := []Kind{Accelerometer}
	if !m.WithoutGyroscope {
		kinds = append(kinds, Gyroscope)
	}
	if !m.WithoutMagnetometer {
		kinds = append(kinds, Magnetometer)
	}
	return kinds
}

// SamplesAt returns the samples the device produces at elapsed, stamped ts.
func (m *MockDevice) SamplesAt(elapsed time.Duration, ts int64) []Sample {
	q := m.Motion.At(elapsed)
	out := make([]Sample, 0, 3)
	if !m.WithoutGyroscope {
		w := m.Motion.AngularVelocity(elapsed)
		for i := range w {
			w[i] += m.GyroBias[i]
		}
		out = append(out, Sample{Kind: Gyroscope, Values: w, TimestampNanos: ts})
	}
	g := q.RotateInverse([3]float64{0, 0, orientation.StandardGravity})
	out = append(out, Sample{Kind: Accelerometer, Values: g, TimestampNanos: ts})
	if !m.WithoutMagnetometer {
		out = append(out, Sample{Kind: Magnetometer, Values: q.RotateInverse(m.Field), TimestampNanos: ts})
	}
	return out
}

func (m *MockDevice) Run(ctx context.Context, h *Hub) error {
	period := m.Period
	if period <= 0 {
		period = RateGame.Period()
	}
	start := time.Now()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, s := range m.SamplesAt(time.Since(start), Nanotime()) {
				h.Publish(s)
			}
		}
	}
}
