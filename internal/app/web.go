// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/head_tracker/internal/imu"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // viewer pages are served from other local origins
	},
}

// WSMessage is a control message sent by a websocket client.
type WSMessage struct {
	Action string  `json:"action"` // recenter, filter, start, stop
	Value  *float64 `json:"value,omitempty"`
}

// WSResponse is sent to websocket clients.
type WSResponse struct {
	Type     string        `json:"type"` // rotation, ack, error
	Rotation *imu.Rotation `json:"rotation,omitempty"`
	Action   string        `json:"action,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// NewWebHandler serves the tracker's HTTP and websocket API. Websocket
// clients receive a rotation frame every streamInterval.
func NewWebHandler(t Tracker, streamInterval time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/rotation", func(w http.ResponseWriter, r *http.Request) {
		writeRotation(w, t)
	})

	mux.HandleFunc("POST /api/recenter", func(w http.ResponseWriter, r *http.Request) {
		if err := Apply(t, ActionRecenter, 0); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		log.Printf("web: recentered")
		writeRotation(w, t)
	})

	mux.HandleFunc("POST /api/filter", func(w http.ResponseWriter, r *http.Request) {
		k, err := strconv.ParseFloat(r.URL.Query().Get("value"), 64)
		if err != nil {
			http.Error(w, "value must be a number between 0 and 1", http.StatusBadRequest)
			return
		}
		if err := Apply(t, ActionFilter, k); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("web: filter coefficient set to %.3f", k)
		writeRotation(w, t)
	})

	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		handleRotationWS(w, r, t, streamInterval)
	})

	return mux
}

func writeRotation(w http.ResponseWriter, t Tracker) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(CurrentRotation(t, time.Now())); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// wsSession serializes writes; gorilla connections allow one concurrent writer.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) send(resp WSResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(resp)
}

func handleRotationWS(w http.ResponseWriter, r *http.Request, t Tracker, interval time.Duration) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := &wsSession{conn: conn}
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				rot := CurrentRotation(t, now)
				if err := session.send(WSResponse{Type: "rotation", Rotation: &rot}); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("web: websocket read error: %v", err)
			}
			return
		}

		resp := WSResponse{Type: "ack", Action: msg.Action}
		if err := applyWS(t, msg); err != nil {
			resp = WSResponse{Type: "error", Action: msg.Action, Message: err.Error()}
		} else {
			log.Printf("web: websocket %s", msg.Action)
		}
		if err := session.send(resp); err != nil {
			return
		}
	}
}

func applyWS(t Tracker, msg WSMessage) error {
	if msg.Action == ActionFilter {
		if msg.Value == nil {
			return errors.New("filter needs a value")
		}
		return Apply(t, ActionFilter, *msg.Value)
	}
	return Apply(t, msg.Action, 0)
}
