// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"sync"
)

type subscription struct {
	listener  Listener
	kind      Kind
	period    int64
	last      int64
	delivered bool
}

// Hub is the in-process Source. A device backend publishes into it and the
// hub fans samples out to listeners registered for that kind.
//
// Deliveries are serialized, so listeners see one sample at a time across
// all kinds.
type Hub struct {
	mu        sync.Mutex
	available map[Kind]bool
	subs      []*subscription
	published map[Kind]uint64
	dropped   uint64
}

// NewHub creates a hub offering the given sensor kinds.
func NewHub(kinds ...Kind) *Hub {
	h := &Hub{
		available: make(map[Kind]bool, len(kinds)),
		published: make(map[Kind]uint64, len(kinds)),
	}
	for _, k := range kinds {
		h.available[k] = true
	}
	return h
}

// Available reports whether the hub offers kind.
func (h *Hub) Available(kind Kind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.available[kind]
}

func (h *Hub) Register(l Listener, kind Kind, rate Rate) error {
	if l == nil {
		return fmt.Errorf("sensors: nil listener")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.available[kind] {
		return fmt.Errorf("%s: %w", kind, ErrSensorUnavailable)
	}
	for _, s := range h.subs {
		if s.listener == l && s.kind == kind {
			s.period = int64(rate.Period())
			return nil
		}
	}
	h.subs = append(h.subs, &subscription{
		listener: l,
		kind:     kind,
		period:   int64(rate.Period()),
	})
	return nil
}

func (h *Hub) Unregister(l Listener) {
	// Taking the lock waits out any delivery in progress.
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.subs[:0]
	for _, s := range h.subs {
		if s.listener != l {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(h.subs); i++ {
		h.subs[i] = nil
	}
	h.subs = kept
}

// Publish delivers s to every listener registered for its kind whose rate
// allows it. Samples up to 10% early are let through so a device running at
// exactly the requested rate is not halved by jitter.
func (h *Hub) Publish(s Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.available[s.Kind] {
		h.dropped++
		return
	}
	h.published[s.Kind]++
	for _, sub := range h.subs {
		if sub.kind != s.Kind {
			continue
		}
		if sub.delivered && sub.period > 0 && s.TimestampNanos-sub.last < sub.period-sub.period/10 {
			continue
		}
		sub.last = s.TimestampNanos
		sub.delivered = true
		sub.listener.OnSample(s)
	}
}

// Stats is a count of samples seen by the hub.
type Stats struct {
	Published map[Kind]uint64
	Dropped   uint64
}

// Stats returns a copy of the hub counters.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Stats{Published: make(map[Kind]uint64, len(h.published)), Dropped: h.dropped}
	for k, v := range h.published {
		st.Published[k] = v
	}
	return st
}
