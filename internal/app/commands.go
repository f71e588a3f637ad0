// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/head_tracker/internal/imu"
	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// Tracker is the control surface shared by the command topic and the web API.
// *fusion.Engine implements it.
type Tracker interface {
	Start()
	Stop()
	Running() bool
	ResetRotation()
	SetFilterCoefficient(k float64)
	FilterCoefficient() float64
	Rotation() orientation.Quaternion
}

var errUnknownCommand = errors.New("unknown command")

// Command actions accepted on the command topic and the websocket.
const (
	ActionRecenter = "recenter"
	ActionFilter   = "filter"
	ActionStart    = "start"
	ActionStop     = "stop"
)

// Apply runs one action against t. value is only used by ActionFilter.
func Apply(t Tracker, action string, value float64) error {
	switch action {
	case ActionRecenter:
		t.ResetRotation()
	case ActionFilter:
		if math.IsNaN(value) || value < 0 || value > 1 {
			return fmt.Errorf("filter coefficient %g outside [0,1]", value)
		}
		t.SetFilterCoefficient(value)
	case ActionStart:
		t.Start()
	case ActionStop:
		t.Stop()
	default:
		return fmt.Errorf("%w: %q", errUnknownCommand, action)
	}
	return nil
}

// ApplyText runs a command-topic payload: "recenter", "start", "stop" or
// "filter=<value>".
func ApplyText(t Tracker, text string) error {
	text = strings.ToLower(strings.TrimSpace(text))
	action, arg, hasArg := strings.Cut(text, "=")
	action = strings.TrimSpace(action)

	if action != ActionFilter {
		if hasArg {
			return fmt.Errorf("%s takes no argument", action)
		}
		return Apply(t, action, 0)
	}
	if !hasArg {
		return fmt.Errorf("filter needs a value, e.g. filter=0.98")
	}
	k, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
	if err != nil {
		return fmt.Errorf("invalid filter value %q: %w", arg, err)
	}
	return Apply(t, ActionFilter, k)
}

// CurrentRotation reads t into a publishable rotation.
func CurrentRotation(t Tracker, now time.Time) imu.Rotation {
	return imu.NewRotation(t.Rotation(), t.Running(), t.FilterCoefficient(), now)
}
