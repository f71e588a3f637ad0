package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/imu"
	"github.com/relabs-tech/head_tracker/internal/sensors"
)

// rawBatcher groups samples sharing a timestamp into one imu.Raw. A group is
// emitted when a sample with a different timestamp arrives, or on Flush.
//
// A blocking batcher holds the producing device back while out is full, until
// done is closed. A non-blocking one drops the group and counts it.
type rawBatcher struct {
	source string
	out    chan imu.Raw
	block  bool
	done   <-chan struct{}

	dropped atomic.Uint64

	mu      sync.Mutex
	pending []sensors.Sample
}

func newRawBatcher(source string, buffer int) *rawBatcher {
	return &rawBatcher{source: source, out: make(chan imu.Raw, buffer)}
}

// newBlockingRawBatcher applies backpressure instead of dropping, for sources
// such as recordings that can produce faster than the broker accepts.
func newBlockingRawBatcher(source string, buffer int, done <-chan struct{}) *rawBatcher {
	b := newRawBatcher(source, buffer)
	b.block = true
	b.done = done
	return b
}

func (b *rawBatcher) OnSample(s sensors.Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) > 0 && b.pending[0].TimestampNanos != s.TimestampNanos {
		b.emit()
	}
	b.pending = append(b.pending, s)
}

// Flush emits the pending group, if any.
func (b *rawBatcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) > 0 {
		b.emit()
	}
}

// Drain returns every queued group followed by the pending one. Call it once
// the device has stopped delivering.
func (b *rawBatcher) Drain() []imu.Raw {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []imu.Raw
	for {
		select {
		case raw := <-b.out:
			out = append(out, raw)
		default:
			if len(b.pending) > 0 {
				out = append(out, sensors.RawFromSamples(b.source, b.pending))
				b.pending = b.pending[:0]
			}
			return out
		}
	}
}

// Dropped counts readings discarded because the publisher fell behind.
func (b *rawBatcher) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *rawBatcher) emit() {
	raw := sensors.RawFromSamples(b.source, b.pending)
	b.pending = b.pending[:0]
	if b.block {
		select {
		case b.out <- raw:
		case <-b.done:
			b.dropped.Add(1)
		}
		return
	}
	select {
	case b.out <- raw:
	default:
		b.dropped.Add(1)
	}
}

// RunIMUProducer reads the configured sensor source and republishes it as
// imu.Raw on TOPIC_IMU_RAW, so a tracker elsewhere can run with SOURCE=mqtt.
func RunIMUProducer() error {
	cfg := config.Get()
	if cfg.Source == config.SourceMQTT {
		return errors.New("imu producer cannot read from SOURCE=mqtt")
	}
	log.Printf("starting imu producer (source=%s)", cfg.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	dev, err := newDevice(cfg, nil)
	if err != nil {
		return err
	}
	hub, deviceDone := sensors.Open(ctx, dev)

	batcher := newRawBatcher(dev.Name(), 256)
	if cfg.Source == config.SourceReplay {
		batcher = newBlockingRawBatcher(dev.Name(), 256, ctx.Done())
	}
	for _, kind := range dev.Kinds() {
		if err := hub.Register(batcher, kind, sensors.RateFastest); err != nil {
			return fmt.Errorf("register %s: %w", kind, err)
		}
	}
	defer hub.Unregister(batcher)

	log.Printf("imu producer: publishing to %s", cfg.TopicIMURaw)

	var published uint64
	publish := func(raw imu.Raw) {
		payload, err := json.Marshal(raw)
		if err != nil {
			log.Printf("imu producer: json marshal error: %v", err)
			return
		}
		if token := client.Publish(cfg.TopicIMURaw, 0, false, payload); token.Wait() && token.Error() != nil {
			log.Printf("imu producer: MQTT publish error: %v", token.Error())
			return
		}
		published++
	}

	logTicker := time.NewTicker(time.Duration(cfg.ConsoleLogInterval) * time.Millisecond)
	defer logTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("imu producer: shutting down")
			return nil
		case err := <-deviceDone:
			for _, raw := range batcher.Drain() {
				publish(raw)
			}
			log.Printf("imu producer: published=%d dropped=%d", published, batcher.Dropped())
			if err != nil {
				return fmt.Errorf("sensor source %s: %w", dev.Name(), err)
			}
			log.Printf("imu producer: sensor source %s finished", dev.Name())
			return nil
		case raw := <-batcher.out:
			publish(raw)
		case <-logTicker.C:
			// hub.Stats would wait on a delivery blocked on batcher.out.
			log.Printf("imu producer: published=%d dropped=%d queued=%d",
				published, batcher.Dropped(), len(batcher.out))
		}
	}
}
