// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/head_tracker/internal/imu"
	"github.com/relabs-tech/head_tracker/internal/orientation"
)

func newTestServer(t *testing.T, tr Tracker) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewWebHandler(tr, 10*time.Millisecond))
	t.Cleanup(srv.Close)
	return srv
}

func decodeRotation(t *testing.T, resp *http.Response) imu.Rotation {
	t.Helper()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var r imu.Rotation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&r))
	return r
}

func TestWebGetRotation(t *testing.T) {
	tr := newFakeTracker()
	tr.rotation = orientation.FromAxisAngle(0, 0, 1, 0.5)
	tr.Start()
	srv := newTestServer(t, tr)

	resp, err := http.Get(srv.URL + "/api/rotation")
	require.NoError(t, err)
	r := decodeRotation(t, resp)

	assert.True(t, r.Running)
	assert.Equal(t, 0.98, r.FilterCoefficient)
	assert.InDelta(t, tr.rotation.Z, r.Quaternion.Z, 1e-12)
	assert.InDelta(t, tr.rotation.W, r.Quaternion.W, 1e-12)
}

func TestWebRecenter(t *testing.T) {
	tr := newFakeTracker()
	srv := newTestServer(t, tr)

	resp, err := http.Post(srv.URL+"/api/recenter", "", nil)
	require.NoError(t, err)
	decodeRotation(t, resp)
	assert.Equal(t, 1, tr.Recenters())

	resp, err = http.Get(srv.URL + "/api/recenter")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, 1, tr.Recenters())
}

func TestWebFilter(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		status int
		want   float64
	}{
		{"valid", "value=0.75", http.StatusOK, 0.75},
		{"gyro only", "value=1", http.StatusOK, 1},
		{"missing", "", http.StatusBadRequest, 0.98},
		{"not a number", "value=lots", http.StatusBadRequest, 0.98},
		{"out of range", "value=2", http.StatusBadRequest, 0.98},
		{"nan", "value=NaN", http.StatusBadRequest, 0.98},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newFakeTracker()
			srv := newTestServer(t, tr)

			resp, err := http.Post(srv.URL+"/api/filter?"+tt.query, "", nil)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.want, tr.FilterCoefficient())
		})
	}
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

// readUntil returns the first message of the given type, skipping others.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) WSResponse {
	t.Helper()
	for {
		var resp WSResponse
		require.NoError(t, conn.ReadJSON(&resp))
		if resp.Type == typ {
			return resp
		}
	}
}

func TestWebSocketStreamsRotation(t *testing.T) {
	tr := newFakeTracker()
	tr.rotation = orientation.FromAxisAngle(1, 0, 0, 0.2)
	conn := dialWS(t, newTestServer(t, tr))

	for i := 0; i < 3; i++ {
		resp := readUntil(t, conn, "rotation")
		require.NotNil(t, resp.Rotation)
		assert.InDelta(t, tr.rotation.X, resp.Rotation.Quaternion.X, 1e-12)
	}
}

func TestWebSocketCommands(t *testing.T) {
	tr := newFakeTracker()
	conn := dialWS(t, newTestServer(t, tr))

	value := 0.6
	require.NoError(t, conn.WriteJSON(WSMessage{Action: ActionFilter, Value: &value}))
	ack := readUntil(t, conn, "ack")
	assert.Equal(t, ActionFilter, ack.Action)
	assert.Equal(t, 0.6, tr.FilterCoefficient())

	require.NoError(t, conn.WriteJSON(WSMessage{Action: ActionRecenter}))
	readUntil(t, conn, "ack")
	assert.Equal(t, 1, tr.Recenters())

	require.NoError(t, conn.WriteJSON(WSMessage{Action: ActionStart}))
	readUntil(t, conn, "ack")
	assert.True(t, tr.Running())

	require.NoError(t, conn.WriteJSON(WSMessage{Action: ActionFilter}))
	errResp := readUntil(t, conn, "error")
	assert.Contains(t, errResp.Message, "needs a value")

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "fly"}))
	errResp = readUntil(t, conn, "error")
	assert.Contains(t, errResp.Message, "unknown command")
	assert.Equal(t, 0.6, tr.FilterCoefficient())
}
