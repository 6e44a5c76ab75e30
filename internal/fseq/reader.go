// ABOUTME: Frame-addressed FSEQ v2 record reader
// ABOUTME: Maps playback positions to fixed-size per-frame channel records
package fseq

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Magic is the FSEQ v2 file tag.
const Magic = "PSEQ"

// fixedHeaderSize is the byte length of the fixed header region.
const fixedHeaderSize = 32

// Structural errors. A file that fails Open with one of these should not be
// retried until the underlying item changes.
var (
	ErrBadMagic    = errors.New("fseq: bad magic tag")
	ErrTruncated   = errors.New("fseq: truncated header")
	ErrCompressed  = errors.New("fseq: compressed files not supported")
	ErrSparse      = errors.New("fseq: sparse range files not supported")
	ErrBadSyncMark = errors.New("fseq: frame missing sync marker")
)

// ErrEndOfData marks a read past the last complete frame. It is an expected
// playback condition, not a fault.
var ErrEndOfData = errors.New("fseq: end of frame data")

// Header is the parsed fixed header of an FSEQ v2 file.
type Header struct {
	DataOffset      uint16
	VersionMinor    uint8
	VersionMajor    uint8
	VarHeaderOffset uint16
	ChannelCount    uint32 // bytes per frame record
	FrameCount      uint32
	StepTimeMs      uint8
	Flags           uint8
	Compression     uint8
	UniqueID        uint64

	// Variable header tags, when present.
	MediaFile string // 'mf' tag
	Producer  string // 'sp' tag
}

// Handle is an open frame file. It owns its file handle exclusively and is
// not safe for concurrent readers.
type Handle struct {
	f      *os.File
	header Header
	size   int64
	buf    []byte
}

// Open parses the header of the file at path and returns a Handle.
func Open(path string) (*Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	h, err := newHandle(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return h, nil
}

func newHandle(f *os.File) (*Handle, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	hdr, err := parseHeader(f)
	if err != nil {
		return nil, err
	}

	return &Handle{
		f:      f,
		header: hdr,
		size:   fi.Size(),
		buf:    make([]byte, hdr.ChannelCount),
	}, nil
}

// parseHeader reads and validates the fixed header, then scans the variable
// header region for known tags.
func parseHeader(r io.ReaderAt) (Header, error) {
	fixed := make([]byte, fixedHeaderSize)
	if _, err := r.ReadAt(fixed, 0); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	if string(fixed[0:4]) != Magic {
		return Header{}, fmt.Errorf("%w: %q", ErrBadMagic, fixed[0:4])
	}

	hdr := Header{
		DataOffset:      binary.LittleEndian.Uint16(fixed[4:6]),
		VersionMinor:    fixed[6],
		VersionMajor:    fixed[7],
		VarHeaderOffset: binary.LittleEndian.Uint16(fixed[8:10]),
		ChannelCount:    binary.LittleEndian.Uint32(fixed[10:14]),
		FrameCount:      binary.LittleEndian.Uint32(fixed[14:18]),
		StepTimeMs:      fixed[18],
		Flags:           fixed[19],
		Compression:     fixed[20],
		UniqueID:        binary.LittleEndian.Uint64(fixed[24:32]),
	}

	if hdr.ChannelCount == 0 {
		return Header{}, fmt.Errorf("%w: zero channel count", ErrTruncated)
	}
	if hdr.StepTimeMs == 0 {
		return Header{}, fmt.Errorf("%w: zero step time", ErrTruncated)
	}
	if int(hdr.DataOffset) < fixedHeaderSize {
		return Header{}, fmt.Errorf("%w: data offset %d inside fixed header", ErrTruncated, hdr.DataOffset)
	}
	if hdr.Compression != 0 {
		return Header{}, ErrCompressed
	}
	if fixed[22] != 0 {
		return Header{}, ErrSparse
	}

	parseVarHeader(r, &hdr)
	return hdr, nil
}

// parseVarHeader extracts 'mf' and 'sp' tags. Malformed variable headers are
// ignored: the fixed header alone is enough to address frames.
func parseVarHeader(r io.ReaderAt, hdr *Header) {
	start := int64(hdr.VarHeaderOffset)
	end := int64(hdr.DataOffset)
	if start < fixedHeaderSize || start >= end {
		return
	}

	region := make([]byte, end-start)
	if _, err := r.ReadAt(region, start); err != nil {
		return
	}

	for len(region) >= 4 {
		code := string(region[0:2])
		length := int(binary.LittleEndian.Uint16(region[2:4]))
		region = region[4:]
		if length > len(region) {
			return
		}
		value := region[:length]
		region = region[length:]

		// Tag values are NUL-terminated strings.
		if n := len(value); n > 0 && value[n-1] == 0 {
			value = value[:n-1]
		}

		switch code {
		case "mf":
			hdr.MediaFile = string(value)
		case "sp":
			hdr.Producer = string(value)
		}
	}
}

// Header returns the parsed file header.
func (h *Handle) Header() Header {
	return h.header
}

// FrameForPosition maps a millisecond playback position to a frame index,
// clamped into the valid range. Positions slightly outside the file hold the
// nearest frame rather than failing.
func (h *Handle) FrameForPosition(posMs int64) uint32 {
	if posMs < 0 {
		return 0
	}
	idx := posMs / int64(h.header.StepTimeMs)
	if max := int64(h.header.FrameCount) - 1; idx > max {
		if max < 0 {
			return 0
		}
		return uint32(max)
	}
	return uint32(idx)
}

// ReadFrame returns the record for frameIndex. The returned slice is valid
// until the next ReadFrame call. Reads past the last complete frame return
// ErrEndOfData.
func (h *Handle) ReadFrame(frameIndex uint32) ([]byte, error) {
	if frameIndex >= h.header.FrameCount {
		return nil, ErrEndOfData
	}

	offset := int64(h.header.DataOffset) + int64(frameIndex)*int64(h.header.ChannelCount)
	if offset+int64(h.header.ChannelCount) > h.size {
		return nil, ErrEndOfData
	}

	if _, err := h.f.ReadAt(h.buf, offset); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrEndOfData
		}
		return nil, fmt.Errorf("fseq: read frame %d: %w", frameIndex, err)
	}
	return h.buf, nil
}

// FramePCM returns the PCM sample bytes of a frame record, validating the
// leading 0xAA 0x55 sync marker.
func (h *Handle) FramePCM(frameIndex uint32) ([]byte, error) {
	rec, err := h.ReadFrame(frameIndex)
	if err != nil {
		return nil, err
	}
	if len(rec) < 2 || rec[0] != 0xAA || rec[1] != 0x55 {
		return nil, ErrBadSyncMark
	}
	return rec[2:], nil
}

// DurationMs returns the total playable duration covered by the file.
func (h *Handle) DurationMs() int64 {
	return int64(h.header.FrameCount) * int64(h.header.StepTimeMs)
}

// Close releases the underlying file handle.
func (h *Handle) Close() error {
	return h.f.Close()
}
