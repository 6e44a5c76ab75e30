// ABOUTME: Audio output using oto library
// ABOUTME: Handles PCM playback with software volume control
package player

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"

	"github.com/ebitengine/oto/v3"
)

// Format describes a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Output manages audio output
type Output struct {
	otoCtx *oto.Context
	format Format
	volume int
	muted  bool
	ready  bool
}

// NewOutput creates an audio output
func NewOutput() *Output {
	return &Output{
		volume: 100,
		muted:  false,
	}
}

// Initialize sets up oto with the specified format
func (o *Output) Initialize(format Format) error {
	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	o.otoCtx = ctx
	o.format = format
	o.ready = true

	log.Printf("Audio output initialized: %dHz, %d channels",
		format.SampleRate, format.Channels)

	return nil
}

// Play plays a chunk of int16 samples with volume applied
func (o *Output) Play(samples []int16) error {
	if !o.ready {
		return fmt.Errorf("output not initialized")
	}

	adjusted := applyVolume(samples, o.volume, o.muted)

	output := make([]byte, len(adjusted)*2)
	for i, sample := range adjusted {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(sample))
	}

	reader := bytes.NewReader(output)
	player := o.otoCtx.NewPlayer(reader)
	player.Play()

	return nil
}

// SetVolume sets the volume (0-100)
func (o *Output) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	o.volume = volume
	log.Printf("Volume set to %d", volume)
}

// SetMuted sets mute state
func (o *Output) SetMuted(muted bool) {
	o.muted = muted
	log.Printf("Muted: %v", muted)
}

// GetVolume returns current volume
func (o *Output) GetVolume() int {
	return o.volume
}

// IsMuted returns mute state
func (o *Output) IsMuted() bool {
	return o.muted
}

// Close closes the audio output
func (o *Output) Close() {
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
		o.ready = false
	}
}

// applyVolume applies volume and mute to samples
func applyVolume(samples []int16, volume int, muted bool) []int16 {
	multiplier := getVolumeMultiplier(volume, muted)

	result := make([]int16, len(samples))
	for i, sample := range samples {
		result[i] = int16(float64(sample) * multiplier)
	}

	return result
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
