// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/head_tracker/internal/fusion"
	"github.com/relabs-tech/head_tracker/internal/sensors"
)

// RunMockConsole runs the engine on synthetic head motion and prints the
// pose. No broker or hardware is needed.
func RunMockConsole() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return mockConsole(ctx, os.Stdout, 100*time.Millisecond)
}

func mockConsole(ctx context.Context, out io.Writer, interval time.Duration) error {
	hub, done := sensors.Open(ctx, sensors.NewMockDevice(10*time.Millisecond))
	engine := fusion.New(hub, fusion.WithRate(sensors.RateFastest))
	engine.Start()
	defer engine.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case err := <-done:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case now := <-ticker.C:
			rot := CurrentRotation(engine, now)
			fmt.Fprintf(out,
				"ROLL=%6.2f  PITCH=%6.2f  YAW=%6.2f  q=(%.3f %.3f %.3f %.3f)\n",
				rot.Pose.Roll, rot.Pose.Pitch, rot.Pose.Yaw,
				rot.Quaternion.W, rot.Quaternion.X, rot.Quaternion.Y, rot.Quaternion.Z,
			)
		}
	}
}
