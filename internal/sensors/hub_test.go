// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu      sync.Mutex
	samples []Sample
}

func (c *collector) OnSample(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, s)
}

func (c *collector) all() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sample(nil), c.samples...)
}

func (c *collector) count(kind Kind) int {
	n := 0
	for _, s := range c.all() {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

func TestHubRegister(t *testing.T) {
	t.Parallel()

	t.Run("unavailable kind", func(t *testing.T) {
		h := NewHub(Accelerometer, Gyroscope)
		err := h.Register(&collector{}, Magnetometer, RateGame)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSensorUnavailable))
		assert.False(t, h.Available(Magnetometer))
	})

	t.Run("nil listener", func(t *testing.T) {
		h := NewHub(Accelerometer)
		assert.Error(t, h.Register(nil, Accelerometer, RateGame))
	})

	t.Run("duplicate registration delivers once", func(t *testing.T) {
		h := NewHub(Gyroscope)
		c := &collector{}
		require.NoError(t, h.Register(c, Gyroscope, RateFastest))
		require.NoError(t, h.Register(c, Gyroscope, RateFastest))
		h.Publish(Sample{Kind: Gyroscope, TimestampNanos: 1})
		assert.Len(t, c.all(), 1)
	})
}

func TestHubPublishFansOutByKind(t *testing.T) {
	t.Parallel()
	h := NewHub(AllKinds...)
	gyro, accel := &collector{}, &collector{}
	require.NoError(t, h.Register(gyro, Gyroscope, RateFastest))
	require.NoError(t, h.Register(accel, Accelerometer, RateFastest))

	h.Publish(Sample{Kind: Gyroscope, TimestampNanos: 1})
	h.Publish(Sample{Kind: Accelerometer, TimestampNanos: 1})
	h.Publish(Sample{Kind: Magnetometer, TimestampNanos: 1})

	assert.Equal(t, 1, gyro.count(Gyroscope))
	assert.Equal(t, 0, gyro.count(Accelerometer))
	assert.Equal(t, 1, accel.count(Accelerometer))

	st := h.Stats()
	assert.Equal(t, uint64(1), st.Published[Magnetometer])
	assert.Zero(t, st.Dropped)
}

func TestHubDropsUnavailableKinds(t *testing.T) {
	t.Parallel()
	h := NewHub(Gyroscope)
	h.Publish(Sample{Kind: Magnetometer})
	assert.Equal(t, uint64(1), h.Stats().Dropped)
}

func TestHubDecimatesToRate(t *testing.T) {
	t.Parallel()
	h := NewHub(Gyroscope)
	c := &collector{}
	require.NoError(t, h.Register(c, Gyroscope, RateGame))

	// 200 Hz for one second.
	step := int64(5 * time.Millisecond)
	for i := int64(0); i < 200; i++ {
		h.Publish(Sample{Kind: Gyroscope, TimestampNanos: i * step})
	}
	assert.Equal(t, 50, len(c.all()))
}

func TestHubToleratesJitterAtRequestedRate(t *testing.T) {
	t.Parallel()
	h := NewHub(Gyroscope)
	c := &collector{}
	require.NoError(t, h.Register(c, Gyroscope, RateGame))

	ts := int64(0)
	for i := 0; i < 50; i++ {
		h.Publish(Sample{Kind: Gyroscope, TimestampNanos: ts})
		ts += int64(19500 * time.Microsecond)
	}
	assert.Equal(t, 50, len(c.all()))
}

func TestHubUnregister(t *testing.T) {
	t.Parallel()
	h := NewHub(AllKinds...)
	a, b := &collector{}, &collector{}
	for _, k := range AllKinds {
		require.NoError(t, h.Register(a, k, RateFastest))
		require.NoError(t, h.Register(b, k, RateFastest))
	}

	h.Unregister(a)
	h.Unregister(a)
	for _, k := range AllKinds {
		h.Publish(Sample{Kind: k, TimestampNanos: 1})
	}
	assert.Empty(t, a.all())
	assert.Len(t, b.all(), 3)
}

func TestOpenRunsDeviceUntilCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	dev := NewMockDevice(time.Millisecond)
	h, done := Open(ctx, dev)

	c := &collector{}
	require.NoError(t, h.Register(c, Gyroscope, RateFastest))
	require.Eventually(t, func() bool { return c.count(Gyroscope) >= 5 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("device did not stop")
	}

	got := c.all()
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].TimestampNanos, got[i-1].TimestampNanos)
	}
}

func TestParseRate(t *testing.T) {
	for _, r := range []Rate{RateFastest, RateGame, RateUI, RateNormal} {
		got, err := ParseRate(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := ParseRate("warp")
	assert.Error(t, err)

	assert.Equal(t, 20*time.Millisecond, RateGame.Period())
	assert.Zero(t, RateFastest.Period())
}
