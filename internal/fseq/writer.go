// ABOUTME: FSEQ v2 file writer for audio frame sequences
// ABOUTME: Emits the fixed header, tagged variable header, and frame records
package fseq

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// SyncMarker prefixes every audio frame record.
var SyncMarker = []byte{0xAA, 0x55}

// WriterConfig describes the file to be written.
type WriterConfig struct {
	ChannelCount uint32 // bytes per frame record, sync marker included
	StepTimeMs   uint8
	MediaFile    string // 'mf' variable header tag, optional
	Producer     string // 'sp' variable header tag, optional
}

// Writer streams frame records into an FSEQ v2 file. Frames must all be
// exactly ChannelCount bytes; the frame count is patched into the header on
// Close since it is not known up front.
type Writer struct {
	f          *os.File
	w          *bufio.Writer
	config     WriterConfig
	frameCount uint32
}

// NewWriter creates the output file and writes the header region.
func NewWriter(path string, config WriterConfig) (*Writer, error) {
	if config.ChannelCount == 0 {
		return nil, fmt.Errorf("fseq: zero channel count")
	}
	if config.StepTimeMs == 0 {
		return nil, fmt.Errorf("fseq: zero step time")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	wr := &Writer{f: f, w: bufio.NewWriter(f), config: config}
	if err := wr.writeHeader(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return wr, nil
}

func (wr *Writer) writeHeader() error {
	varHeader := buildVarHeader(wr.config.MediaFile, wr.config.Producer)

	dataOffset := fixedHeaderSize + len(varHeader)
	padding := (4 - dataOffset%4) % 4 // channel data is 4-byte aligned
	dataOffset += padding

	fixed := make([]byte, fixedHeaderSize)
	copy(fixed[0:4], Magic)
	binary.LittleEndian.PutUint16(fixed[4:6], uint16(dataOffset))
	fixed[6] = 0 // minor version
	fixed[7] = 2 // major version
	binary.LittleEndian.PutUint16(fixed[8:10], fixedHeaderSize)
	binary.LittleEndian.PutUint32(fixed[10:14], wr.config.ChannelCount)
	// frame count at [14:18] patched on Close
	fixed[18] = wr.config.StepTimeMs
	// flags, compression, block count, sparse ranges, reserved all zero

	if _, err := wr.w.Write(fixed); err != nil {
		return err
	}
	if _, err := wr.w.Write(varHeader); err != nil {
		return err
	}
	for i := 0; i < padding; i++ {
		if err := wr.w.WriteByte(0); err != nil {
			return err
		}
	}
	return nil
}

func buildVarHeader(mediaFile, producer string) []byte {
	var out []byte
	appendTag := func(code, value string) {
		if value == "" {
			return
		}
		payload := append([]byte(value), 0)
		out = append(out, code...)
		out = binary.LittleEndian.AppendUint16(out, uint16(len(payload)))
		out = append(out, payload...)
	}
	appendTag("mf", mediaFile)
	appendTag("sp", producer)
	return out
}

// WriteFrame appends one frame record.
func (wr *Writer) WriteFrame(record []byte) error {
	if uint32(len(record)) != wr.config.ChannelCount {
		return fmt.Errorf("fseq: frame size %d, want %d", len(record), wr.config.ChannelCount)
	}
	if _, err := wr.w.Write(record); err != nil {
		return err
	}
	wr.frameCount++
	return nil
}

// FrameCount returns the number of frames written so far.
func (wr *Writer) FrameCount() uint32 {
	return wr.frameCount
}

// Close flushes buffered data, patches the frame count into the header, and
// closes the file.
func (wr *Writer) Close() error {
	if err := wr.w.Flush(); err != nil {
		wr.f.Close()
		return err
	}

	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], wr.frameCount)
	if _, err := wr.f.WriteAt(count[:], 14); err != nil {
		wr.f.Close()
		return err
	}
	if _, err := wr.f.Seek(0, io.SeekEnd); err != nil {
		wr.f.Close()
		return err
	}
	return wr.f.Close()
}
