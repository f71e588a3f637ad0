// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/fusion"
	"github.com/relabs-tech/head_tracker/internal/sensors"
)

// RunTracker runs the fusion engine on the configured sensor source and
// publishes its rotation every RENDER_INTERVAL until interrupted.
func RunTracker() error {
	cfg := config.Get()
	log.Printf("starting head tracker (source=%s)", cfg.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDTracker)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	dev, err := newDevice(cfg, client)
	if err != nil {
		return err
	}
	hub, deviceDone := sensors.Open(ctx, dev)

	opts, err := engineOptions(cfg)
	if err != nil {
		return err
	}
	engine := fusion.New(hub, opts...)

	if cfg.RecordPath != "" {
		closeRecorder, err := startRecorder(hub, cfg.RecordPath)
		if err != nil {
			return err
		}
		defer closeRecorder()
	}

	engine.Start()
	defer engine.Stop()

	if cfg.TopicCommand != "" {
		token := client.Subscribe(cfg.TopicCommand, 0, func(_ mqtt.Client, msg mqtt.Message) {
			if err := ApplyText(engine, string(msg.Payload())); err != nil {
				log.Printf("tracker: command %q: %v", msg.Payload(), err)
				return
			}
			log.Printf("tracker: command %q applied", msg.Payload())
		})
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", cfg.TopicCommand, token.Error())
		}
		log.Printf("tracker: listening for commands on %s", cfg.TopicCommand)
	}

	renderInterval := time.Duration(cfg.RenderInterval) * time.Millisecond

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: NewWebHandler(engine, renderInterval),
	}
	go func() {
		log.Printf("web server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("web: server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	lastLog := time.Now()
	logEvery := time.Duration(cfg.ConsoleLogInterval) * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			log.Println("tracker: shutting down")
			return nil
		case err := <-deviceDone:
			if err != nil {
				return fmt.Errorf("sensor source %s: %w", dev.Name(), err)
			}
			log.Printf("tracker: sensor source %s finished", dev.Name())
			<-ctx.Done()
			return nil
		case now := <-ticker.C:
			rot := CurrentRotation(engine, now)
			payload, err := json.Marshal(rot)
			if err != nil {
				log.Printf("tracker: json marshal error: %v", err)
				continue
			}
			if token := client.Publish(cfg.TopicRotation, 0, true, payload); token.Wait() && token.Error() != nil {
				log.Printf("tracker: MQTT publish error: %v", token.Error())
			}

			if now.Sub(lastLog) >= logEvery {
				lastLog = now
				snap := engine.Snapshot()
				log.Printf("tracker: R=%6.1f P=%6.1f Y=%6.1f | k=%.2f init=%t gyro=%d accel=%d mag=%d rejected=%d",
					rot.Pose.Roll, rot.Pose.Pitch, rot.Pose.Yaw,
					snap.FilterCoefficient, snap.Initialized,
					snap.GyroSamples, snap.AccelSamples, snap.MagSamples, snap.Rejected,
				)
			}
		}
	}
}

// connectMQTT connects with clientID plus a random suffix, so two instances
// sharing a config do not disconnect each other.
func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(uniqueClientID(clientID)).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect %s: %w", broker, token.Error())
	}
	log.Printf("connected to MQTT broker at %s", broker)
	return client, nil
}

func uniqueClientID(base string) string {
	return base + "-" + uuid.NewString()[:8]
}

// newDevice builds the backend selected by SOURCE. client is only used by
// the mqtt source and may be nil otherwise.
func newDevice(cfg *config.Config, client mqtt.Client) (sensors.Device, error) {
	switch cfg.Source {
	case config.SourceMock:
		return sensors.NewMockDevice(time.Duration(cfg.MockSampleInterval) * time.Millisecond), nil
	case config.SourceMPU9250:
		return sensors.NewMPU9250Device(sensors.MPU9250Config{
			SPIDevice:  cfg.IMUSPIDevice,
			CSPin:      cfg.IMUCSPin,
			AccelRange: cfg.IMUAccelRange,
			GyroRange:  cfg.IMUGyroRange,
			Period:     time.Duration(cfg.IMUSampleInterval) * time.Millisecond,
		})
	case config.SourceSerial:
		return &sensors.SerialDevice{PortName: cfg.SerialPort, BaudRate: cfg.SerialBaudRate}, nil
	case config.SourceMQTT:
		if client == nil {
			return nil, errors.New("mqtt source needs a broker connection")
		}
		return &sensors.MQTTDevice{Client: client, Topic: cfg.TopicIMURaw}, nil
	case config.SourceReplay:
		return &sensors.ReplayDevice{Path: cfg.ReplayPath, Realtime: cfg.ReplayRealtime}, nil
	default:
		return nil, fmt.Errorf("unknown sensor source %q", cfg.Source)
	}
}

func engineOptions(cfg *config.Config) ([]fusion.Option, error) {
	rate, err := sensors.ParseRate(cfg.SensorRate)
	if err != nil {
		return nil, err
	}
	return []fusion.Option{
		fusion.WithRate(rate),
		fusion.WithFilterCoefficient(cfg.FilterCoefficient),
		fusion.WithStrictComponentCheck(cfg.StrictComponentCheck),
	}, nil
}

// startRecorder records every sample the hub carries to path. The returned
// func unregisters, flushes and closes the file.
func startRecorder(hub *sensors.Hub, path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	rec := sensors.NewRecorder(f)
	for _, kind := range sensors.AllKinds {
		if !hub.Available(kind) {
			continue
		}
		if err := hub.Register(rec, kind, sensors.RateFastest); err != nil {
			f.Close()
			return nil, fmt.Errorf("record %s: %w", kind, err)
		}
	}
	log.Printf("tracker: recording samples to %s", path)

	return func() {
		hub.Unregister(rec)
		if err := rec.Flush(); err != nil {
			log.Printf("tracker: recording flush error: %v", err)
		}
		if err := f.Close(); err != nil {
			log.Printf("tracker: recording close error: %v", err)
		}
		log.Printf("tracker: recorded %d samples to %s", rec.Count(), path)
	}, nil
}
