// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fusion turns gyroscope, accelerometer and magnetometer samples into
// a drift-corrected head rotation.
//
// Gyroscope rates are integrated into a fast but drifting rotation. The
// accelerometer and magnetometer give an absolute but noisy rotation. A
// complementary filter blends the two on every update:
//
//	fused = normalize(gyro*k + absolute*(1-k))
//
// Readers get the fused rotation composed with a recentring offset.
package fusion

import (
	"errors"
	"log"
	"math"
	"sync"

	"github.com/relabs-tech/head_tracker/internal/orientation"
	"github.com/relabs-tech/head_tracker/internal/sensors"
)

const (
	// DefaultFilterCoefficient weights the gyro path.
	DefaultFilterCoefficient = 0.98

	nanosToSeconds = 1e-9
)

// Engine is safe for concurrent use. Sample callbacks, configuration setters
// and Rotation may run on different goroutines.
type Engine struct {
	src        sensors.Source
	rate       sensors.Rate
	strictMode bool

	mu      sync.Mutex
	running bool

	filter float64

	accel     [3]float64
	mag       [3]float64
	haveAccel bool
	haveMag   bool

	gyro        orientation.Quaternion
	absolute    orientation.Quaternion
	fused       orientation.Quaternion
	calibration orientation.Quaternion

	// initialized is set once the gyro rotation has been anchored to the
	// first absolute estimate after Start.
	initialized bool
	// haveAbsolute and haveGyro select the degraded modes.
	haveAbsolute bool
	haveGyro     bool
	haveGyroTs   bool
	lastGyroTs   int64

	gyroSamples  uint64
	accelSamples uint64
	magSamples   uint64
	rejected     uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithFilterCoefficient sets the initial blend weight (clamped to [0,1]).
// NaN leaves the default in place.
func WithFilterCoefficient(k float64) Option {
	return func(e *Engine) {
		if !math.IsNaN(k) {
			e.filter = clampUnit(k)
		}
	}
}

// WithRate sets the delivery tier requested from the source on Start.
func WithRate(r sensors.Rate) Option {
	return func(e *Engine) { e.rate = r }
}

// WithStrictComponentCheck rejects an accelerometer or magnetometer reading
// when any single component is near zero, instead of only when the whole
// vector is. This reproduces the behaviour of the phone build, including its
// false rejections of level or axis-aligned poses.
func WithStrictComponentCheck(strict bool) Option {
	return func(e *Engine) { e.strictMode = strict }
}

// New creates a stopped engine reading from src. src may be nil, in which
// case samples must be fed through OnSample after Start.
func New(src sensors.Source, opts ...Option) *Engine {
	e := &Engine{
		src:         src,
		rate:        sensors.RateGame,
		filter:      DefaultFilterCoefficient,
		gyro:        orientation.Identity(),
		absolute:    orientation.Identity(),
		fused:       orientation.Identity(),
		calibration: orientation.Identity(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start subscribes to all three sensors and forces the next gyro sample and
// the next absolute estimate to resynchronize. Missing sensors are logged and
// skipped.
func (e *Engine) Start() {
	e.mu.Lock()
	wasRunning := e.running
	e.running = true
	e.initialized = false
	e.haveGyroTs = false
	e.lastGyroTs = 0
	e.mu.Unlock()

	if wasRunning || e.src == nil {
		return
	}

	for _, kind := range sensors.AllKinds {
		if err := e.src.Register(e, kind, e.rate); err != nil {
			if errors.Is(err, sensors.ErrSensorUnavailable) {
				log.Printf("fusion: %s not available, continuing without it", kind)
			} else {
				log.Printf("fusion: register %s: %v", kind, err)
			}
			continue
		}
	}
	log.Printf("fusion: started (rate=%s, filter=%.3f)", e.rate, e.FilterCoefficient())
}

// Stop unsubscribes from the source. When it returns no further state
// mutation happens until Start. Stop is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	wasRunning := e.running
	e.running = false
	e.mu.Unlock()

	// Unregister waits for an in-flight delivery, which may be blocked on
	// e.mu, so it must run unlocked.
	if e.src != nil {
		e.src.Unregister(e)
	}
	if wasRunning {
		log.Printf("fusion: stopped")
	}
}

// Running reports whether the engine is between Start and Stop.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// ResetRotation makes the current pose read as identity. Filter state is not
// touched.
func (e *Engine) ResetRotation() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calibration = e.fused.Inverse()
}

// SetFilterCoefficient sets the complementary filter weight. 1 is gyro only
// (smooth, drifts), 0 is accelerometer/magnetometer only (jittery, no drift).
// NaN is ignored.
func (e *Engine) SetFilterCoefficient(k float64) {
	if math.IsNaN(k) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filter = clampUnit(k)
}

// FilterCoefficient returns the current blend weight.
func (e *Engine) FilterCoefficient() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter
}

// Rotation returns the calibrated head rotation. It never blocks on sensor
// input; without new samples it returns the last computed value, identity
// before the first update.
func (e *Engine) Rotation() orientation.Quaternion {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fused.Mul(e.calibration).Normalize()
}

// OnSample implements sensors.Listener. Samples arriving while stopped, and
// samples with a NaN or infinite component, are dropped.
func (e *Engine) OnSample(s sensors.Sample) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	if !finite(s.Values) {
		e.rejected++
		return
	}

	switch s.Kind {
	case sensors.Gyroscope:
		e.gyroSamples++
		e.integrateGyro(s)
	case sensors.Accelerometer:
		e.accelSamples++
		e.accel = s.Values
		e.haveAccel = true
		e.updateAbsolute()
	case sensors.Magnetometer:
		e.magSamples++
		e.mag = s.Values
		e.haveMag = true
		e.updateAbsolute()
	}
}

func (e *Engine) integrateGyro(s sensors.Sample) {
	e.haveGyro = true
	if e.haveGyroTs {
		dt := float64(s.TimestampNanos-e.lastGyroTs) * nanosToSeconds
		wx, wy, wz := s.Values[0], s.Values[1], s.Values[2]
		omega := math.Sqrt(wx*wx + wy*wy + wz*wz)

		if dt > 0 && omega > orientation.Epsilon {
			delta := orientation.FromAxisAngle(wx/omega, wy/omega, wz/omega, omega*dt)
			e.gyro = e.gyro.Mul(delta).Normalize()
		}
	}
	e.lastGyroTs = s.TimestampNanos
	e.haveGyroTs = true
	e.fuse()
}

func (e *Engine) updateAbsolute() {
	if !e.haveAccel || !e.haveMag {
		return
	}
	if !e.validReading(e.accel) || !e.validReading(e.mag) {
		e.rejected++
		return
	}
	q, ok := orientation.FromAccelMag(e.accel, e.mag)
	if !ok {
		e.rejected++
		return
	}
	e.absolute = q
	e.haveAbsolute = true

	if !e.initialized {
		e.gyro = q
		e.initialized = true
	}
	e.fuse()
}

func (e *Engine) validReading(v [3]float64) bool {
	if e.strictMode {
		for _, c := range v {
			if math.Abs(c) < orientation.Epsilon {
				return false
			}
		}
		return true
	}
	return v[0]*v[0]+v[1]*v[1]+v[2]*v[2] >= orientation.Epsilon*orientation.Epsilon
}

// fuse blends gyro and absolute. With only one input present it passes that
// input through.
func (e *Engine) fuse() {
	switch {
	case !e.haveAbsolute:
		e.fused = e.gyro
		return
	case !e.haveGyro:
		e.fused = e.absolute
		return
	}

	abs := e.absolute
	// q and -q are the same rotation; blend within one hemisphere.
	if e.gyro.Dot(abs) < 0 {
		abs = abs.Scale(-1)
	}
	k := e.filter
	e.fused = e.gyro.Scale(k).Add(abs.Scale(1 - k)).Normalize()
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func finite(v [3]float64) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
