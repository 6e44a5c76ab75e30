// ABOUTME: Panel HTTP and WebSocket server for audio sync clients
// ABOUTME: Broadcasts correction and frame events, proxies daemon control
package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/glowsync/glowsync-go/internal/driver"
	"github.com/glowsync/glowsync-go/internal/fpp"
	"github.com/glowsync/glowsync-go/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Config holds server configuration
type Config struct {
	Port int
	Name string
}

// Server exposes the panel to audio clients: a status and control API over
// HTTP, and a /sync WebSocket that streams correction and frame events.
type Server struct {
	config  Config
	panelID string

	upgrader websocket.Upgrader

	httpServer *http.Server
	mux        *http.ServeMux

	driver *driver.Driver
	daemon *fpp.Client

	clients   map[string]*Client
	clientsMu sync.RWMutex

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Client represents a connected sync client
type Client struct {
	ID       string
	Codec    string // "pcm" or "opus"
	Conn     *websocket.Conn
	sendChan chan interface{}
}

// New creates a new server instance
func New(config Config, drv *driver.Driver, daemon *fpp.Client) *Server {
	s := &Server{
		config:  config,
		panelID: uuid.New().String(),
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Local-network deployment; non-browser clients send no Origin.
				return true
			},
		},
		driver:   drv,
		daemon:   daemon,
		clients:  make(map[string]*Client),
		stopChan: make(chan struct{}),
	}

	s.mux.HandleFunc("/sync", s.handleWebSocket)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/playlists", s.handlePlaylists)
	s.mux.HandleFunc("/api/sequences", s.handleSequences)
	s.mux.HandleFunc("/api/command", s.handleCommand)

	return s
}

// Start runs the server until Stop is called or the listener fails.
func (s *Server) Start() error {
	log.Printf("Panel server starting: %s (ID: %s)", s.config.Name, s.panelID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.broadcastLoop()
	}()

	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("Panel listening on %s", addr)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		log.Printf("Panel server shutting down...")
	case err := <-errChan:
		log.Printf("HTTP server error: %v", err)
		serverErr = err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	s.wg.Wait()
	log.Printf("Panel server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// broadcastLoop fans driver events out to all connected clients.
func (s *Server) broadcastLoop() {
	corrections := s.driver.SubscribeCorrections()
	frames := s.driver.SubscribeFrames()

	var encoder *OpusEncoder

	for {
		select {
		case <-s.stopChan:
			return

		case ev := <-corrections:
			s.broadcastJSON(correctionMessage(ev))

		case ev := <-frames:
			switch ev.Type {
			case protocol.TypeSeqOpen:
				encoder = s.newSessionEncoder(ev)
				s.broadcastJSON(protocol.Message{
					Type: protocol.TypeSeqOpen,
					Payload: protocol.SeqOpen{
						SessionID:       ev.SessionID,
						Item:            ev.Item,
						Channels:        ev.Channels,
						Frames:          ev.Frames,
						FrameDurationMs: ev.FrameDurationMs,
						Seq:             ev.Seq,
					},
				})

			case driver.TypeFrame:
				s.broadcastFrame(ev, encoder)

			case protocol.TypeSeqErr:
				s.broadcastJSON(protocol.Message{
					Type:    protocol.TypeSeqErr,
					Payload: protocol.SeqError{Seq: ev.Seq, Error: ev.Error},
				})

			default:
				s.broadcastJSON(protocol.Message{
					Type:    ev.Type,
					Payload: protocol.SeqMarker{Seq: ev.Seq},
				})
			}
		}
	}
}

// newSessionEncoder builds the shared Opus re-chunker for a frame session.
// Sessions whose implied sample rate libopus rejects fall back to PCM-only.
func (s *Server) newSessionEncoder(open driver.FrameEvent) *OpusEncoder {
	if open.Channels <= 2 || open.FrameDurationMs == 0 {
		return nil
	}
	samplesPerFrame := int(open.Channels-2) / 2
	sampleRate := samplesPerFrame * 1000 / int(open.FrameDurationMs)

	encoder, err := NewOpusEncoder(sampleRate, 1)
	if err != nil {
		log.Printf("Opus unavailable for this session (%d Hz): %v", sampleRate, err)
		return nil
	}
	return encoder
}

func correctionMessage(ev driver.CorrectionEvent) protocol.Message {
	switch ev.Type {
	case protocol.TypeHardSeek:
		return protocol.Message{
			Type:    ev.Type,
			Payload: protocol.HardSeek{TargetMs: ev.TargetMs, Item: ev.Item},
		}
	case protocol.TypeSoftRate:
		return protocol.Message{
			Type:    ev.Type,
			Payload: protocol.SoftRate{RateFactor: ev.RateFactor, ErrorMs: ev.ErrorMs, Item: ev.Item},
		}
	default:
		return protocol.Message{Type: ev.Type}
	}
}

// broadcastFrame sends a binary frame message: PCM to pcm clients, encoded
// packets to opus clients.
func (s *Server) broadcastFrame(ev driver.FrameEvent, encoder *OpusEncoder) {
	pcmMsg := binaryFrame(protocol.BinaryFramePCM, ev.Seq, ev.PCM)

	var opusMsgs [][]byte
	if encoder != nil {
		packets, err := encoder.EncodePCM(ev.PCM)
		if err != nil {
			log.Printf("Opus encode error: %v", err)
		}
		for _, pkt := range packets {
			opusMsgs = append(opusMsgs, binaryFrame(protocol.BinaryFrameOpus, ev.Seq, pkt))
		}
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, client := range s.clients {
		if client.Codec == "opus" {
			for _, msg := range opusMsgs {
				s.sendBinary(client, msg)
			}
		} else {
			s.sendBinary(client, pcmMsg)
		}
	}
}

// binaryFrame builds the wire framing: payload type, reserved bytes, then the
// big-endian sequence id, then sample or packet bytes.
func binaryFrame(payloadType byte, seq uint64, payload []byte) []byte {
	msg := make([]byte, protocol.BinaryHeaderSize+len(payload))
	msg[0] = payloadType
	binary.BigEndian.PutUint64(msg[4:12], seq)
	copy(msg[protocol.BinaryHeaderSize:], payload)
	return msg
}

// broadcastJSON sends a JSON message to every connected client.
func (s *Server) broadcastJSON(msg protocol.Message) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, client := range s.clients {
		select {
		case client.sendChan <- msg:
		default:
		}
	}
}

func (s *Server) sendBinary(client *Client, data []byte) {
	select {
	case client.sendChan <- data:
	default:
	}
}

// handleWebSocket handles /sync connections.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	codec := r.URL.Query().Get("codec")
	if codec != "opus" {
		codec = "pcm"
	}

	client := &Client{
		ID:       uuid.New().String(),
		Codec:    codec,
		Conn:     conn,
		sendChan: make(chan interface{}, 100),
	}

	log.Printf("Sync client connected from %s (codec: %s)", r.RemoteAddr, codec)

	s.clientsMu.Lock()
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.clientsMu.Unlock()
		close(client.sendChan)
		log.Printf("Sync client disconnected: %s", client.ID)
	}()

	// Orient the new client with the current state before event flow starts.
	snap := s.driver.Snapshot()
	client.sendChan <- protocol.Message{Type: "panel/status", Payload: snap}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(client)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		// Clients are receive-only on /sync; inbound frames are ignored.
	}
}

// clientWriter sends queued messages to one client.
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	const writeDeadline = 10 * time.Second

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				return
			}

			switch v := msg.(type) {
			case []byte:
				client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := client.Conn.WriteMessage(websocket.BinaryMessage, v); err != nil {
					log.Printf("Error writing binary message: %v", err)
					return
				}
			default:
				data, err := json.Marshal(v)
				if err != nil {
					log.Printf("Error marshaling message: %v", err)
					continue
				}
				client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Printf("Error writing text message: %v", err)
					return
				}
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// handleStatus reports the panel's current sync state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.driver.Snapshot())
}

// handlePlaylists proxies the daemon's playlist enumeration.
func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	names, err := s.daemon.Playlists(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, names)
}

// handleSequences proxies the daemon's sequence enumeration.
func (s *Server) handleSequences(w http.ResponseWriter, r *http.Request) {
	names, err := s.daemon.Sequences(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, names)
}

// handleCommand accepts start/stop control requests and forwards them.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd protocol.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "invalid command body", http.StatusBadRequest)
		return
	}

	var err error
	switch cmd.Command {
	case "start":
		if len(cmd.Args) != 1 {
			http.Error(w, "start requires one argument", http.StatusBadRequest)
			return
		}
		err = s.daemon.StartPlaylist(r.Context(), cmd.Args[0])
	case "stop":
		err = s.daemon.StopNow(r.Context())
	default:
		http.Error(w, fmt.Sprintf("unknown command %q", cmd.Command), http.StatusBadRequest)
		return
	}

	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
