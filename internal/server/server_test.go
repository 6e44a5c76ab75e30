// ABOUTME: Tests for the panel HTTP and WebSocket server
// ABOUTME: Covers API proxying, command dispatch, and event broadcast
package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glowsync/glowsync-go/internal/driver"
	"github.com/glowsync/glowsync-go/internal/fpp"
	"github.com/glowsync/glowsync-go/internal/protocol"
	"github.com/gorilla/websocket"
)

// stubSource keeps the driver constructible without a live daemon.
type stubSource struct {
	status fpp.Status
}

func (s stubSource) Status(ctx context.Context) (fpp.Poll, error) {
	now := time.Now()
	return fpp.Poll{Status: s.status, RequestSent: now, RequestReceived: now}, nil
}

// newTestServer wires a server against a fake daemon API.
func newTestServer(t *testing.T, source driver.StatusSource, daemonHandler http.Handler) (*Server, *httptest.Server) {
	t.Helper()

	daemon := httptest.NewServer(daemonHandler)
	t.Cleanup(daemon.Close)

	drv := driver.New(source, driver.Config{PollInterval: 20 * time.Millisecond})
	s := New(Config{Port: 0, Name: "Test Panel"}, drv, fpp.NewClient(fpp.Config{BaseURL: daemon.URL}))

	web := httptest.NewServer(s.Handler())
	t.Cleanup(web.Close)
	t.Cleanup(s.Stop)

	return s, web
}

func TestStatusEndpoint(t *testing.T) {
	_, web := newTestServer(t, stubSource{}, http.NotFoundHandler())

	resp, err := http.Get(web.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()

	var snap protocol.StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Playing {
		t.Error("expected idle snapshot")
	}
}

func TestPlaylistProxy(t *testing.T) {
	daemon := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/playlists" {
			json.NewEncoder(w).Encode([]string{"MainList"})
			return
		}
		http.NotFound(w, r)
	})
	_, web := newTestServer(t, stubSource{}, daemon)

	resp, err := http.Get(web.URL + "/api/playlists")
	if err != nil {
		t.Fatalf("GET playlists: %v", err)
	}
	defer resp.Body.Close()

	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		t.Fatalf("decode playlists: %v", err)
	}
	if len(names) != 1 || names[0] != "MainList" {
		t.Errorf("unexpected playlists: %v", names)
	}
}

func TestCommandDispatch(t *testing.T) {
	var got struct {
		Command string   `json:"command"`
		Args    []string `json:"args"`
	}
	daemon := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/command" {
			json.NewDecoder(r.Body).Decode(&got)
			return
		}
		http.NotFound(w, r)
	})
	_, web := newTestServer(t, stubSource{}, daemon)

	body, _ := json.Marshal(protocol.Command{Command: "start", Args: []string{"MyShow.fseq"}})
	resp, err := http.Post(web.URL+"/api/command", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST command: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if got.Command != "Start Playlist" || len(got.Args) != 1 || got.Args[0] != "MyShow.fseq" {
		t.Errorf("unexpected forwarded command: %+v", got)
	}
}

func TestCommandRejectsUnknown(t *testing.T) {
	_, web := newTestServer(t, stubSource{}, http.NotFoundHandler())

	body := []byte(`{"command":"reboot"}`)
	resp, err := http.Post(web.URL+"/api/command", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST command: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown command, got %d", resp.StatusCode)
	}
}

func TestSyncBroadcastsCorrections(t *testing.T) {
	source := stubSource{status: fpp.Status{
		Status:          fpp.StatePlaying,
		CurrentSequence: "show.fseq",
		SecondsPlayed:   42,
	}}
	s, web := newTestServer(t, source, http.NotFoundHandler())

	go s.broadcastLoop()

	url := "ws" + strings.TrimPrefix(web.URL, "http") + "/sync"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial sync: %v", err)
	}
	defer conn.Close()

	// First message is the orientation snapshot.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	var first protocol.Message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Type != "panel/status" {
		t.Fatalf("expected panel/status first, got %s", first.Type)
	}

	// Start the poll loop: the first good poll produces an initial hard
	// seek, which must reach the client as JSON.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.driver.Run(ctx)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg protocol.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read correction: %v", err)
	}
	if msg.Type != protocol.TypeHardSeek {
		t.Fatalf("expected hard seek, got %s", msg.Type)
	}

	payload, _ := json.Marshal(msg.Payload)
	var seek protocol.HardSeek
	if err := json.Unmarshal(payload, &seek); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if seek.TargetMs != 42000 || seek.Item != "show.fseq" {
		t.Errorf("unexpected payload: %+v", seek)
	}
}

func TestBinaryFrameLayout(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	msg := binaryFrame(protocol.BinaryFramePCM, 99, payload)

	if len(msg) != protocol.BinaryHeaderSize+4 {
		t.Fatalf("unexpected length %d", len(msg))
	}
	if msg[0] != protocol.BinaryFramePCM {
		t.Errorf("wrong payload type byte: %d", msg[0])
	}
	if got := binary.BigEndian.Uint64(msg[4:12]); got != 99 {
		t.Errorf("expected seq 99, got %d", got)
	}
	if !bytes.Equal(msg[protocol.BinaryHeaderSize:], payload) {
		t.Error("payload mismatch")
	}
}
