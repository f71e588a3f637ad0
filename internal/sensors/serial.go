// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"

	serial "github.com/jacobsa/go-serial/serial"
)

// SerialDevice reads one sample per line from a serial port:
//
//	<kind>,<timestamp_ns>,<x>,<y>,<z>
//
// kind is A, G or M. A timestamp of 0 is replaced by the local clock.
// Lines starting with '#' are ignored.
type SerialDevice struct {
	PortName string
	BaudRate uint
}

func (d *SerialDevice) Name() string { return "serial " + d.PortName }

func (d *SerialDevice) Kinds() []Kind { return AllKinds }

func (d *SerialDevice) Run(ctx context.Context, h *Hub) error {
	opts := serial.OpenOptions{
		PortName:              d.PortName,
		BaudRate:              d.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return fmt.Errorf("serial: open %s: %w", d.PortName, err)
	}
	log.Printf("serial: port opened on %s at %d baud", opts.PortName, opts.BaudRate)

	// Closing the port unblocks the reader on shutdown.
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer func() {
		if stop() {
			port.Close()
		}
	}()

	err = ReadLines(port, h)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// ReadLines parses sample lines from r until EOF, publishing each one.
// Malformed lines are logged and skipped.
func ReadLines(r io.Reader, h *Hub) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s, err := ParseLine(line)
		if err != nil {
			log.Printf("serial: line %d: %v", lineNum, err)
			continue
		}
		h.Publish(s)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("serial: read: %w", err)
	}
	return nil
}

// ParseLine decodes a single "<kind>,<timestamp_ns>,<x>,<y>,<z>" record.
func ParseLine(line string) (Sample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 5 {
		return Sample{}, fmt.Errorf("want 5 fields, got %d: %q", len(parts), line)
	}
	kind, err := ParseKind(parts[0])
	if err != nil {
		return Sample{}, err
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("invalid timestamp %q: %w", parts[1], err)
	}
	if ts == 0 {
		ts = Nanotime()
	}
	s := Sample{Kind: kind, TimestampNanos: ts}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[2+i]), 64)
		if err != nil {
			return Sample{}, fmt.Errorf("invalid value %q: %w", parts[2+i], err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Sample{}, fmt.Errorf("non-finite value %q", parts[2+i])
		}
		s.Values[i] = v
	}
	return s, nil
}
