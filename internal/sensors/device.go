// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"log"
)

// Device is a backend that produces samples into a Hub until ctx is done.
type Device interface {
	Name() string
	Kinds() []Kind
	Run(ctx context.Context, h *Hub) error
}

// Open creates a hub for dev and runs dev in the background. The returned
// channel receives the device's exit error (nil on clean shutdown) and is
// then closed.
func Open(ctx context.Context, dev Device) (*Hub, <-chan error) {
	h := NewHub(dev.Kinds()...)
	done := make(chan error, 1)
	go func() {
		defer close(done)
		err := dev.Run(ctx, h)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("sensors: %s stopped: %v", dev.Name(), err)
			done <- err
			return
		}
		done <- nil
	}()
	log.Printf("sensors: %s running (kinds: %v)", dev.Name(), dev.Kinds())
	return h, done
}
