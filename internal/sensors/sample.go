// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors delivers timestamped accelerometer, gyroscope and
// magnetometer samples from a device backend to registered listeners.
package sensors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSensorUnavailable is returned by Register when the source has no sensor
// of the requested kind.
var ErrSensorUnavailable = errors.New("sensor unavailable")

// Kind identifies a sensor type.
type Kind int

const (
	Accelerometer Kind = iota
	Gyroscope
	Magnetometer
)

// AllKinds lists every sensor kind.
var AllKinds = []Kind{Accelerometer, Gyroscope, Magnetometer}

func (k Kind) String() string {
	switch k {
	case Accelerometer:
		return "accelerometer"
	case Gyroscope:
		return "gyroscope"
	case Magnetometer:
		return "magnetometer"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts the full name or its first letter (A, G, M).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "accel", "accelerometer":
		return Accelerometer, nil
	case "g", "gyro", "gyroscope":
		return Gyroscope, nil
	case "m", "mag", "magnetometer":
		return Magnetometer, nil
	default:
		return 0, fmt.Errorf("unknown sensor kind %q", s)
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Sample is one immutable reading. Units: accelerometer m/s², gyroscope rad/s,
// magnetometer µT.
type Sample struct {
	Kind           Kind       `json:"kind"`
	Values         [3]float64 `json:"values"`
	TimestampNanos int64      `json:"timestamp_ns"`
}

// Rate is a requested delivery tier. Rates are hints; a backend never
// delivers faster than it produces.
type Rate int

const (
	RateFastest Rate = iota
	RateGame
	RateUI
	RateNormal
)

// Period is the minimum spacing between delivered samples.
func (r Rate) Period() time.Duration {
	switch r {
	case RateGame:
		return 20 * time.Millisecond
	case RateUI:
		return 66667 * time.Microsecond
	case RateNormal:
		return 200 * time.Millisecond
	default:
		return 0
	}
}

func (r Rate) String() string {
	switch r {
	case RateFastest:
		return "fastest"
	case RateGame:
		return "game"
	case RateUI:
		return "ui"
	case RateNormal:
		return "normal"
	default:
		return fmt.Sprintf("rate(%d)", int(r))
	}
}

// ParseRate maps a config value to a Rate.
func ParseRate(s string) (Rate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fastest":
		return RateFastest, nil
	case "game":
		return RateGame, nil
	case "ui":
		return RateUI, nil
	case "normal":
		return RateNormal, nil
	default:
		return 0, fmt.Errorf("unknown sensor rate %q (want fastest, game, ui or normal)", s)
	}
}

// Listener receives samples. OnSample must not block and must not call back
// into the Source.
type Listener interface {
	OnSample(s Sample)
}

// Source is a sensor subscription service.
type Source interface {
	// Register subscribes l to kind at rate. It returns ErrSensorUnavailable
	// when the source has no such sensor.
	Register(l Listener, kind Kind, rate Rate) error
	// Unregister removes every subscription of l. When it returns no delivery
	// to l is in flight and none will follow.
	Unregister(l Listener)
}

var epoch = time.Now()

// Nanotime is a monotonic nanosecond clock local to this process.
func Nanotime() int64 {
	return int64(time.Since(epoch))
}
