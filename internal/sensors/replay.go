// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ReplayDevice plays back a JSON-lines recording written by Recorder.
type ReplayDevice struct {
	Path string
	// Realtime paces playback by the recorded timestamps. Otherwise samples
	// are published as fast as they are read.
	Realtime bool
}

func (d *ReplayDevice) Name() string { return "replay " + d.Path }

func (d *ReplayDevice) Kinds() []Kind { return AllKinds }

func (d *ReplayDevice) Run(ctx context.Context, h *Hub) error {
	f, err := os.Open(d.Path)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	defer f.Close()
	return Replay(ctx, f, h, d.Realtime)
}

// Replay publishes every sample in r to h.
func Replay(ctx context.Context, r io.Reader, h *Hub, realtime bool) error {
	dec := json.NewDecoder(bufio.NewReader(r))
	var first int64
	var start time.Time
	n := 0
	for {
		var s Sample
		if err := dec.Decode(&s); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("replay: sample %d: %w", n+1, err)
		}
		if n == 0 {
			first = s.TimestampNanos
			start = time.Now()
		}
		n++

		if realtime {
			due := start.Add(time.Duration(s.TimestampNanos - first))
			if wait := time.Until(due); wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				case <-t.C:
				}
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		h.Publish(s)
	}
}

// Recorder is a Listener that writes samples as JSON lines.
type Recorder struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc *json.Encoder
	n   int
	err error
}

// NewRecorder writes to w. Call Flush before closing w.
func NewRecorder(w io.Writer) *Recorder {
	bw := bufio.NewWriter(w)
	return &Recorder{w: bw, enc: json.NewEncoder(bw)}
}

func (r *Recorder) OnSample(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if err := r.enc.Encode(s); err != nil {
		r.err = err
		return
	}
	r.n++
}

// Flush writes buffered samples and reports the first write error.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	return r.w.Flush()
}

// Count is the number of samples recorded.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}
