// ABOUTME: Converts WAV audio into frame-addressed FSEQ companion files
// ABOUTME: Mixes to mono, resamples, and packs fixed-duration sync-marked frames
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/glowsync/glowsync-go/internal/fseq"
	"github.com/glowsync/glowsync-go/internal/version"
)

var (
	inPath     = flag.String("in", "", "Input WAV file")
	outPath    = flag.String("out", "", "Output .audio.fseq file (default: input base + .audio.fseq)")
	targetRate = flag.Int("rate", 16000, "Output sample rate in Hz")
	stepMs     = flag.Int("step", 25, "Frame duration in milliseconds")
	mediaTag   = flag.String("media", "", "Media filename for the 'mf' header tag")
)

func main() {
	flag.Parse()

	if *inPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *stepMs <= 0 || *stepMs > 255 {
		log.Fatalf("step must be 1-255 ms, got %d", *stepMs)
	}

	out := *outPath
	if out == "" {
		out = trimExt(*inPath) + ".audio.fseq"
	}

	samples, srcRate, err := readWavMono(*inPath)
	if err != nil {
		log.Fatalf("read %s: %v", *inPath, err)
	}
	log.Printf("Read %d mono samples at %d Hz", len(samples), srcRate)

	if srcRate != *targetRate {
		samples = resampleLinear(samples, srcRate, *targetRate)
		log.Printf("Resampled to %d samples at %d Hz", len(samples), *targetRate)
	}

	samplesPerFrame := *targetRate * *stepMs / 1000
	if samplesPerFrame == 0 {
		log.Fatalf("step %dms too short for %d Hz", *stepMs, *targetRate)
	}

	channelCount := uint32(len(fseq.SyncMarker) + samplesPerFrame*2)
	writer, err := fseq.NewWriter(out, fseq.WriterConfig{
		ChannelCount: channelCount,
		StepTimeMs:   uint8(*stepMs),
		MediaFile:    *mediaTag,
		Producer:     fmt.Sprintf("%s audio2fseq/%s", version.Manufacturer, version.Version),
	})
	if err != nil {
		log.Fatalf("create %s: %v", out, err)
	}

	record := make([]byte, channelCount)
	for start := 0; start < len(samples); start += samplesPerFrame {
		for i := range record {
			record[i] = 0
		}
		copy(record, fseq.SyncMarker)

		// Sample bytes are big-endian int16; the tail frame is zero-padded.
		for i := 0; i < samplesPerFrame && start+i < len(samples); i++ {
			binary.BigEndian.PutUint16(record[2+i*2:], uint16(samples[start+i]))
		}

		if err := writer.WriteFrame(record); err != nil {
			log.Fatalf("write frame: %v", err)
		}
	}

	frames := writer.FrameCount()
	if err := writer.Close(); err != nil {
		log.Fatalf("close %s: %v", out, err)
	}

	log.Printf("Wrote %s: %d frames of %dms (%d bytes each), %.1fs total",
		out, frames, *stepMs, channelCount, float64(frames)*float64(*stepMs)/1000)
}

// readWavMono decodes a WAV file and mixes all channels down to mono int16.
func readWavMono(path string) ([]int16, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("not a valid WAV file")
	}

	format := dec.Format()
	channels := format.NumChannels
	if channels == 0 {
		return nil, 0, fmt.Errorf("zero channels")
	}

	// Read in one-second chunks.
	intBuf := &audio.IntBuffer{
		Data:   make([]int, format.SampleRate*channels),
		Format: &audio.Format{NumChannels: channels, SampleRate: format.SampleRate},
	}

	shift := uint(0)
	if dec.BitDepth > 16 {
		shift = uint(dec.BitDepth - 16)
	}

	var mono []int16
	for {
		n, err := dec.PCMBuffer(intBuf)
		if err != nil && err != io.EOF {
			return nil, 0, err
		}
		if n == 0 {
			break
		}

		for i := 0; i+channels <= n; i += channels {
			sum := 0
			for ch := 0; ch < channels; ch++ {
				sum += intBuf.Data[i+ch] >> shift
			}
			mono = append(mono, int16(sum/channels))
		}
	}

	return mono, format.SampleRate, nil
}

// resampleLinear converts mono samples between rates by linear interpolation.
func resampleLinear(input []int16, srcRate, dstRate int) []int16 {
	if len(input) < 2 {
		return input
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(input)) / ratio)
	output := make([]int16, 0, outLen)

	pos := 0.0
	for {
		idx := int(pos)
		if idx >= len(input)-1 {
			break
		}
		frac := pos - float64(idx)
		interpolated := float64(input[idx])*(1.0-frac) + float64(input[idx+1])*frac
		output = append(output, int16(interpolated))
		pos += ratio
	}

	return output
}

func trimExt(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[:i]
		}
	}
	return path
}
