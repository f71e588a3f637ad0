// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// MPU9250Config selects the SPI wiring and full-scale ranges.
type MPU9250Config struct {
	SPIDevice string // e.g. /dev/spidev6.0
	CSPin     string // e.g. "18"

	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	AccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	GyroRange byte

	Period time.Duration
}

// MPU9250Device reads accelerometer and gyroscope over SPI. The magnetometer
// behind the MPU9250's auxiliary bus is not used, so no absolute estimate
// forms and the tracker runs on gyro integration alone.
type MPU9250Device struct {
	cfg MPU9250Config
	imu *mpu9250.MPU9250
}

// NewMPU9250Device initializes the IMU. Self-test and calibration failures
// are logged, not fatal.
func NewMPU9250Device(cfg MPU9250Config) (*MPU9250Device, error) {
	if cfg.AccelRange > 3 || cfg.GyroRange > 3 {
		return nil, fmt.Errorf("mpu9250: range out of bounds (accel=%d gyro=%d)", cfg.AccelRange, cfg.GyroRange)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("mpu9250: periph host init: %w", err)
	}

	cs := gpioreg.ByName(cfg.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("mpu9250: CS pin %q not found", cfg.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(cfg.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("mpu9250: SPI transport (%s): %w", cfg.SPIDevice, err)
	}

	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("mpu9250: device creation: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("mpu9250: initialization: %w", err)
	}

	if err := dev.SetAccelRange(cfg.AccelRange); err != nil {
		return nil, fmt.Errorf("mpu9250: set accel range: %w", err)
	}
	log.Printf("mpu9250: accelerometer range set to %d (±%dg)", cfg.AccelRange, []int{2, 4, 8, 16}[cfg.AccelRange])

	if err := dev.SetGyroRange(cfg.GyroRange); err != nil {
		return nil, fmt.Errorf("mpu9250: set gyro range: %w", err)
	}
	log.Printf("mpu9250: gyroscope range set to %d (±%d°/s)", cfg.GyroRange, []int{250, 500, 1000, 2000}[cfg.GyroRange])

	if _, err := dev.SelfTest(); err != nil {
		log.Printf("mpu9250: WARNING: self-test failed: %v", err)
	}
	if err := dev.Calibrate(); err != nil {
		log.Printf("mpu9250: WARNING: calibration failed: %v", err)
	} else {
		log.Printf("mpu9250: calibration complete")
	}

	return &MPU9250Device{cfg: cfg, imu: dev}, nil
}

func (d *MPU9250Device) Name() string { return "mpu9250 " + d.cfg.SPIDevice }

func (d *MPU9250Device) Kinds() []Kind { return []Kind{Accelerometer, Gyroscope} }

func (d *MPU9250Device) Run(ctx context.Context, h *Hub) error {
	period := d.cfg.Period
	if period <= 0 {
		period = RateGame.Period()
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			accel, gyro, err := d.read()
			if err != nil {
				log.Printf("mpu9250: read error: %v", err)
				continue
			}
			ts := Nanotime()
			h.Publish(Sample{Kind: Gyroscope, Values: gyro, TimestampNanos: ts})
			h.Publish(Sample{Kind: Accelerometer, Values: accel, TimestampNanos: ts})
		}
	}
}

func (d *MPU9250Device) read() (accel, gyro [3]float64, err error) {
	var raw [6]int16
	readers := []func() (int16, error){
		d.imu.GetAccelerationX, d.imu.GetAccelerationY, d.imu.GetAccelerationZ,
		d.imu.GetRotationX, d.imu.GetRotationY, d.imu.GetRotationZ,
	}
	for i, read := range readers {
		if raw[i], err = read(); err != nil {
			return accel, gyro, fmt.Errorf("axis %d: %w", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		accel[i] = AccelCountsToMS2(raw[i], d.cfg.AccelRange)
		gyro[i] = GyroCountsToRadS(raw[3+i], d.cfg.GyroRange)
	}
	return accel, gyro, nil
}

// AccelCountsToMS2 converts a raw accelerometer count at the given range code.
func AccelCountsToMS2(v int16, rangeCode byte) float64 {
	lsbPerG := float64(int(16384) >> rangeCode)
	return float64(v) / lsbPerG * orientation.StandardGravity
}

// GyroCountsToRadS converts a raw gyroscope count at the given range code.
func GyroCountsToRadS(v int16, rangeCode byte) float64 {
	lsbPerDPS := 131.0 / float64(int(1)<<rangeCode)
	return float64(v) / lsbPerDPS * math.Pi / 180.0
}
