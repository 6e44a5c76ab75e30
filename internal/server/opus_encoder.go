// ABOUTME: Opus audio encoder for bandwidth-efficient frame streaming
// ABOUTME: Re-chunks arbitrary PCM frame sizes into fixed 20ms Opus packets
package server

import (
	"encoding/binary"
	"fmt"
	"log"

	"gopkg.in/hraban/opus.v2"
)

// opusFrameMs is the packet duration Opus is fed. Source frames arrive at the
// file's step time (often 25ms), which does not match any legal Opus frame
// size, so samples are re-chunked through an accumulator.
const opusFrameMs = 20

// OpusEncoder wraps the Opus encoder
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	channels   int
	frameSize  int // samples per channel per packet
	pending    []int16
}

// NewOpusEncoder creates a new Opus encoder. sampleRate must be one of the
// rates libopus accepts (8, 12, 16, 24, or 48 kHz).
func NewOpusEncoder(sampleRate, channels int) (*OpusEncoder, error) {
	encoder, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	bitrate := 64000 * channels
	if err := encoder.SetBitrate(bitrate); err != nil {
		log.Printf("Warning: Failed to set Opus bitrate: %v", err)
	}

	return &OpusEncoder{
		encoder:    encoder,
		sampleRate: sampleRate,
		channels:   channels,
		frameSize:  sampleRate * opusFrameMs / 1000,
	}, nil
}

// EncodePCM appends big-endian int16 sample bytes to the accumulator and
// returns the Opus packets for every complete 20ms frame now available.
func (e *OpusEncoder) EncodePCM(pcm []byte) ([][]byte, error) {
	for i := 0; i+1 < len(pcm); i += 2 {
		e.pending = append(e.pending, int16(binary.BigEndian.Uint16(pcm[i:i+2])))
	}

	samplesPerPacket := e.frameSize * e.channels

	var packets [][]byte
	for len(e.pending) >= samplesPerPacket {
		frame := e.pending[:samplesPerPacket]

		output := make([]byte, 4000) // Opus packets never exceed 4000 bytes
		n, err := e.encoder.Encode(frame, output)
		if err != nil {
			return nil, fmt.Errorf("opus encode failed: %w", err)
		}
		packets = append(packets, output[:n])

		e.pending = e.pending[samplesPerPacket:]
	}

	return packets, nil
}

// PendingSamples returns the number of buffered samples awaiting a full frame.
func (e *OpusEncoder) PendingSamples() int {
	return len(e.pending)
}

// Reset discards buffered samples, for use across session boundaries.
func (e *OpusEncoder) Reset() {
	e.pending = e.pending[:0]
}
