// ABOUTME: MP3 media source with sample-accurate seeking
// ABOUTME: Decodes show audio files into int16 PCM for local playback
package player

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// mp3BytesPerFrame is the decoder's output stride: stereo int16.
const mp3BytesPerFrame = 4

// MediaSource decodes an MP3 file into interleaved stereo int16 PCM and
// supports seeking by playback position, which is what position corrections
// need.
type MediaSource struct {
	file       *os.File
	decoder    *mp3.Decoder
	sampleRate int
	title      string
}

// OpenMedia opens the media file for the given path.
func OpenMedia(path string) (*MediaSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open media file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	filename := filepath.Base(path)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))

	log.Printf("Loaded media: %s (sample rate: %d Hz)", title, decoder.SampleRate())

	return &MediaSource{
		file:       f,
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
		title:      title,
	}, nil
}

// LocateMedia finds the playable media file for a playing item under dir.
// The item's own extension is stripped before trying known media extensions.
func LocateMedia(dir, item string) (string, bool) {
	if item == "" {
		return "", false
	}
	base := strings.TrimSuffix(item, filepath.Ext(item))
	for _, ext := range []string{".mp3", ".MP3"} {
		candidate := filepath.Join(dir, base+ext)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// Read fills samples with decoded PCM. Returns the number of int16 samples
// read; io.EOF at end of media.
func (m *MediaSource) Read(samples []int16) (int, error) {
	buf := make([]byte, len(samples)*2)

	n, err := io.ReadFull(m.decoder, buf)
	if err == io.ErrUnexpectedEOF {
		err = nil // partial final chunk is still playable
	}
	if err != nil && err != io.EOF {
		return 0, err
	}

	numSamples := n / 2
	for i := 0; i < numSamples; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
	}

	if numSamples == 0 && err == io.EOF {
		return 0, io.EOF
	}
	return numSamples, nil
}

// SeekMs jumps the decode position to the given playback millisecond. The
// decoder seeks in output bytes, so the target lands on an exact frame.
func (m *MediaSource) SeekMs(posMs int64) error {
	if posMs < 0 {
		posMs = 0
	}
	frame := posMs * int64(m.sampleRate) / 1000
	_, err := m.decoder.Seek(frame*mp3BytesPerFrame, io.SeekStart)
	if err != nil {
		return fmt.Errorf("failed to seek media to %dms: %w", posMs, err)
	}
	return nil
}

// SampleRate returns the decoder's output sample rate.
func (m *MediaSource) SampleRate() int { return m.sampleRate }

// Channels returns the decoder's output channel count.
func (m *MediaSource) Channels() int { return 2 }

// Title returns the display name of the media.
func (m *MediaSource) Title() string { return m.title }

// Close closes the underlying file.
func (m *MediaSource) Close() error {
	return m.file.Close()
}
