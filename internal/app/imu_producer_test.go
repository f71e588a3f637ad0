package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/head_tracker/internal/imu"
	"github.com/relabs-tech/head_tracker/internal/sensors"
)

func drain(ch <-chan imu.Raw) []imu.Raw {
	var out []imu.Raw
	for {
		select {
		case r := <-ch:
			out = append(out, r)
		default:
			return out
		}
	}
}

func TestRawBatcherGroupsByTimestamp(t *testing.T) {
	b := newRawBatcher("mock", 8)
	dev := sensors.NewMockDevice(0)

	for _, s := range dev.SamplesAt(0, 100) {
		b.OnSample(s)
	}
	assert.Empty(t, drain(b.out), "group stays open until the timestamp changes")

	for _, s := range dev.SamplesAt(10_000_000, 200) {
		b.OnSample(s)
	}
	got := drain(b.out)
	require.Len(t, got, 1)
	assert.Equal(t, "mock", got[0].Source)
	assert.EqualValues(t, 100, got[0].TimestampNanos)
	assert.NotNil(t, got[0].Accel)
	assert.NotNil(t, got[0].Gyro)
	assert.NotNil(t, got[0].Mag)

	b.Flush()
	got = drain(b.out)
	require.Len(t, got, 1)
	assert.EqualValues(t, 200, got[0].TimestampNanos)

	// Round trip through the wire format yields the same samples.
	assert.Equal(t, dev.SamplesAt(10_000_000, 200), sensors.SamplesFromRaw(got[0]))

	b.Flush()
	assert.Empty(t, drain(b.out))
}

func TestRawBatcherDropsWhenFull(t *testing.T) {
	b := newRawBatcher("test", 1)
	for ts := int64(1); ts <= 4; ts++ {
		b.OnSample(sensors.Sample{Kind: sensors.Gyroscope, TimestampNanos: ts})
	}
	b.Flush()
	assert.Len(t, drain(b.out), 1)
	assert.EqualValues(t, 3, b.Dropped())
}

func TestRawBatcherDrainReturnsQueuedAndPending(t *testing.T) {
	b := newRawBatcher("test", 8)
	for ts := int64(1); ts <= 3; ts++ {
		b.OnSample(sensors.Sample{Kind: sensors.Gyroscope, TimestampNanos: ts})
	}
	got := b.Drain()
	require.Len(t, got, 3)
	for i, raw := range got {
		assert.EqualValues(t, i+1, raw.TimestampNanos)
	}
	assert.Empty(t, b.Drain())
	assert.Zero(t, b.Dropped())
}

func TestBlockingRawBatcherKeepsEveryGroup(t *testing.T) {
	done := make(chan struct{})
	b := newBlockingRawBatcher("replay", 1, done)

	const n = 200
	produced := make(chan struct{})
	go func() {
		defer close(produced)
		for ts := int64(1); ts <= n; ts++ {
			b.OnSample(sensors.Sample{Kind: sensors.Gyroscope, TimestampNanos: ts})
		}
	}()

	var got []imu.Raw
	for len(got) < n-1 {
		select {
		case raw := <-b.out:
			got = append(got, raw)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d groups", len(got), n-1)
		}
	}
	<-produced
	got = append(got, b.Drain()...)

	require.Len(t, got, n)
	for i, raw := range got {
		assert.EqualValues(t, i+1, raw.TimestampNanos)
	}
	assert.Zero(t, b.Dropped())
}

func TestBlockingRawBatcherUnblocksOnDone(t *testing.T) {
	done := make(chan struct{})
	b := newBlockingRawBatcher("replay", 1, done)

	produced := make(chan struct{})
	go func() {
		defer close(produced)
		for ts := int64(1); ts <= 4; ts++ {
			b.OnSample(sensors.Sample{Kind: sensors.Gyroscope, TimestampNanos: ts})
		}
	}()

	select {
	case <-produced:
		t.Fatal("producer finished without a reader")
	case <-time.After(50 * time.Millisecond):
	}
	close(done)

	select {
	case <-produced:
	case <-time.After(2 * time.Second):
		t.Fatal("producer still blocked after done")
	}
	assert.EqualValues(t, 2, b.Dropped())
	assert.Len(t, b.Drain(), 2)
}
