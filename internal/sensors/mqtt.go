// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/head_tracker/internal/imu"
)

// MQTTDevice consumes imu.Raw messages published by a remote imu_producer.
type MQTTDevice struct {
	Client mqtt.Client
	Topic  string
}

func (d *MQTTDevice) Name() string { return "mqtt " + d.Topic }

func (d *MQTTDevice) Kinds() []Kind { return AllKinds }

func (d *MQTTDevice) Run(ctx context.Context, h *Hub) error {
	token := d.Client.Subscribe(d.Topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := PublishRaw(h, msg.Payload()); err != nil {
			log.Printf("mqtt: %s payload error: %v", d.Topic, err)
		}
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", d.Topic, token.Error())
	}
	log.Printf("mqtt: subscribed to %s", d.Topic)

	<-ctx.Done()
	if t := d.Client.Unsubscribe(d.Topic); t.Wait() && t.Error() != nil {
		log.Printf("mqtt: unsubscribe %s: %v", d.Topic, t.Error())
	}
	return ctx.Err()
}

// PublishRaw decodes one imu.Raw payload and publishes its samples.
func PublishRaw(h *Hub, payload []byte) error {
	var raw imu.Raw
	if err := json.Unmarshal(payload, &raw); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	for _, s := range SamplesFromRaw(raw) {
		h.Publish(s)
	}
	return nil
}

// SamplesFromRaw splits a raw reading into per-sensor samples. The gyroscope
// comes first so it integrates up to the shared timestamp before the
// absolute estimate updates.
func SamplesFromRaw(raw imu.Raw) []Sample {
	ts := raw.TimestampNanos
	if ts == 0 {
		ts = Nanotime()
	}
	out := make([]Sample, 0, 3)
	if raw.Gyro != nil {
		out = append(out, Sample{Kind: Gyroscope, Values: *raw.Gyro, TimestampNanos: ts})
	}
	if raw.Accel != nil {
		out = append(out, Sample{Kind: Accelerometer, Values: *raw.Accel, TimestampNanos: ts})
	}
	if raw.Mag != nil {
		out = append(out, Sample{Kind: Magnetometer, Values: *raw.Mag, TimestampNanos: ts})
	}
	return out
}

// RawFromSamples groups samples sharing a timestamp into one raw reading.
func RawFromSamples(source string, samples []Sample) imu.Raw {
	raw := imu.Raw{Source: source}
	for _, s := range samples {
		v := s.Values
		switch s.Kind {
		case Accelerometer:
			raw.Accel = &v
		case Gyroscope:
			raw.Gyro = &v
		case Magnetometer:
			raw.Mag = &v
		}
		if s.TimestampNanos > raw.TimestampNanos {
			raw.TimestampNanos = s.TimestampNanos
		}
	}
	return raw
}
