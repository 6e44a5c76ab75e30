// ABOUTME: Panel wire message type definitions
// ABOUTME: JSON envelopes for correction and frame-stream events to clients
package protocol

// Message is the top-level wrapper for all panel messages.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Correction event types sent to audio clients.
const (
	TypeHardSeek          = "correction/hard_seek"
	TypeSoftRate          = "correction/soft_rate"
	TypeIdle              = "playback/idle"
	TypeSourceUnreachable = "sync/source_unreachable"
	TypeLostSync          = "sync/lost"
)

// HardSeek instructs the client to jump to TargetMs.
type HardSeek struct {
	TargetMs int64  `json:"target_ms"`
	Item     string `json:"item"`
}

// SoftRate instructs the client to play at RateFactor until further notice.
type SoftRate struct {
	RateFactor float64 `json:"rate_factor"`
	ErrorMs    float64 `json:"error_ms"`
	Item       string  `json:"item"`
}

// Frame stream event types (alternate, frame-locked mode).
const (
	TypeSeqOpen = "seq/open"
	TypeNoData  = "seq/no_data"
	TypeSeqErr  = "seq/error"
)

// SeqOpen announces a new frame stream session.
type SeqOpen struct {
	SessionID       string `json:"session_id"`
	Item            string `json:"item"`
	Channels        uint32 `json:"channels"`
	Frames          uint32 `json:"frames"`
	FrameDurationMs uint8  `json:"frame_duration_ms"`
	Seq             uint64 `json:"seq"`
}

// SeqError carries a frame stream fault; the stream ends after it.
type SeqError struct {
	Seq   uint64 `json:"seq"`
	Error string `json:"error"`
}

// SeqMarker is the payload for no_data and idle ticks on the frame stream.
type SeqMarker struct {
	Seq uint64 `json:"seq"`
}

// StatusSnapshot is the panel's periodic state report.
type StatusSnapshot struct {
	Playing       bool    `json:"playing"`
	Item          string  `json:"item"`
	ReportedSec   int     `json:"reported_sec"`
	EstimatedMs   int64   `json:"estimated_ms"`
	DriftPpm      float64 `json:"drift_ppm"`
	HardSeeks     int64   `json:"hard_seeks"`
	SoftRates     int64   `json:"soft_rates"`
	FailedPolls   int64   `json:"failed_polls"`
	FrameLocked   bool    `json:"frame_locked"`
	SourceHealthy bool    `json:"source_healthy"`
}

// Command is a panel client's request to the daemon.
type Command struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Binary frame messages carry a 12-byte header then sample bytes:
//
//	[0]     frame payload type (BinaryFramePCM or BinaryFrameOpus)
//	[1:4]   reserved
//	[4:12]  big-endian sequence id
const (
	BinaryHeaderSize = 12
	BinaryFramePCM   = byte(0)
	BinaryFrameOpus  = byte(1)
)
