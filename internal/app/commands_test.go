// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/head_tracker/internal/fusion"
	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// fakeTracker records the calls made on it.
type fakeTracker struct {
	mu        sync.Mutex
	running   bool
	filter    float64
	recenters int
	rotation  orientation.Quaternion
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{filter: 0.98, rotation: orientation.Identity()}
}

func (f *fakeTracker) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
}

func (f *fakeTracker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

func (f *fakeTracker) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeTracker) ResetRotation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recenters++
}

func (f *fakeTracker) Recenters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recenters
}

func (f *fakeTracker) SetFilterCoefficient(k float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = k
}

func (f *fakeTracker) FilterCoefficient() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter
}

func (f *fakeTracker) Rotation() orientation.Quaternion {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rotation
}

var _ Tracker = (*fusion.Engine)(nil)

func TestApplyText(t *testing.T) {
	tr := newFakeTracker()

	require.NoError(t, ApplyText(tr, "start"))
	assert.True(t, tr.Running())

	require.NoError(t, ApplyText(tr, "  Recenter\n"))
	assert.Equal(t, 1, tr.Recenters())

	require.NoError(t, ApplyText(tr, "filter=0.9"))
	assert.Equal(t, 0.9, tr.FilterCoefficient())

	require.NoError(t, ApplyText(tr, "filter = 0.5 "))
	assert.Equal(t, 0.5, tr.FilterCoefficient())

	require.NoError(t, ApplyText(tr, "stop"))
	assert.False(t, tr.Running())
}

func TestApplyTextErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"unknown", "explode", "unknown command"},
		{"empty", "", "unknown command"},
		{"filter without value", "filter", "needs a value"},
		{"filter not a number", "filter=abc", "invalid filter value"},
		{"filter above one", "filter=1.2", "outside [0,1]"},
		{"filter below zero", "filter=-0.1", "outside [0,1]"},
		{"filter NaN", "filter=NaN", "outside [0,1]"},
		{"argument on recenter", "recenter=now", "takes no argument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newFakeTracker()
			err := ApplyText(tr, tt.payload)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, 0.98, tr.FilterCoefficient())
		})
	}
	assert.ErrorIs(t, ApplyText(newFakeTracker(), "explode"), errUnknownCommand)

	tr := newFakeTracker()
	assert.Error(t, Apply(tr, ActionFilter, math.NaN()))
	assert.Equal(t, 0.98, tr.FilterCoefficient())
}

func TestCurrentRotationFromEngine(t *testing.T) {
	e := fusion.New(nil)
	e.Start()
	defer e.Stop()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rot := CurrentRotation(e, now)
	assert.True(t, rot.Running)
	assert.Equal(t, fusion.DefaultFilterCoefficient, rot.FilterCoefficient)
	assert.Equal(t, orientation.Identity(), rot.Quaternion)
	assert.Equal(t, now, rot.Time)
	assert.InDelta(t, 0.0, rot.Pose.Yaw, 1e-9)
}
