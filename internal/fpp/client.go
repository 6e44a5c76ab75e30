// ABOUTME: HTTP client for the show-playback daemon's status and command API
// ABOUTME: Polls playback status and dispatches start/stop commands
package fpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Playback states reported by the daemon.
const (
	StateIdle     = 0
	StatePlaying  = 1
	StateStopping = 2
)

// Status is one playback status report. SecondsPlayed has integer-second
// granularity; that is the source's full precision.
type Status struct {
	Status          int    `json:"status"`
	CurrentSequence string `json:"current_sequence"`
	CurrentPlaylist string `json:"current_playlist"`
	SecondsPlayed   int    `json:"seconds_played"`
}

// IsPlaying reports whether the daemon is actively playing.
func (s Status) IsPlaying() bool {
	return s.Status == StatePlaying
}

// CurrentItem returns the identity of the playing item, preferring the
// sequence file over the playlist name.
func (s Status) CurrentItem() string {
	if s.CurrentSequence != "" {
		return s.CurrentSequence
	}
	return s.CurrentPlaylist
}

// Poll is a status report annotated with request timing, for round-trip
// compensation downstream.
type Poll struct {
	Status          Status
	RequestSent     time.Time
	RequestReceived time.Time
}

// Config holds client settings.
type Config struct {
	BaseURL string        // e.g. http://192.168.8.1
	Timeout time.Duration // per-request; a slow poll must not stall a cycle
}

// Client talks to the show daemon. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a daemon client. The default timeout is 500ms so a
// single slow poll cannot stall the correction loop past one cycle.
func NewClient(config Config) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 500 * time.Millisecond
	}
	return &Client{
		baseURL: config.BaseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Status polls the daemon and returns the report with request timing.
func (c *Client) Status(ctx context.Context) (Poll, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/fppd/status", nil)
	if err != nil {
		return Poll{}, err
	}

	sent := time.Now()
	resp, err := c.http.Do(req)
	received := time.Now()
	if err != nil {
		return Poll{}, fmt.Errorf("fpp: status poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Poll{}, fmt.Errorf("fpp: status poll: HTTP %d", resp.StatusCode)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return Poll{}, fmt.Errorf("fpp: decode status: %w", err)
	}

	return Poll{Status: status, RequestSent: sent, RequestReceived: received}, nil
}

// command is the daemon's dispatch envelope.
type command struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// dispatch sends a command. Responses carry no position feedback; success is
// fire-and-forget beyond the HTTP status.
func (c *Client) dispatch(ctx context.Context, cmd command) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/command", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fpp: dispatch %q: %w", cmd.Command, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fpp: dispatch %q: HTTP %d", cmd.Command, resp.StatusCode)
	}
	return nil
}

// StartPlaylist starts a playlist or bare sequence file by name.
func (c *Client) StartPlaylist(ctx context.Context, name string) error {
	return c.dispatch(ctx, command{Command: "Start Playlist", Args: []string{name}})
}

// StopNow stops playback immediately.
func (c *Client) StopNow(ctx context.Context) error {
	return c.dispatch(ctx, command{Command: "Stop Now", Args: []string{}})
}

// Playlists enumerates the daemon's playlist names.
func (c *Client) Playlists(ctx context.Context) ([]string, error) {
	return c.getNames(ctx, "/api/playlists")
}

// Sequences enumerates the daemon's sequence files.
func (c *Client) Sequences(ctx context.Context) ([]string, error) {
	return c.getNames(ctx, "/api/sequence")
}

func (c *Client) getNames(ctx context.Context, path string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fpp: list %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fpp: list %s: HTTP %d", path, resp.StatusCode)
	}

	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil, fmt.Errorf("fpp: decode %s: %w", path, err)
	}
	return names, nil
}
