// ABOUTME: Prints the header and geometry of a frame-addressed FSEQ file
// ABOUTME: Diagnostic companion to audio2fseq
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/glowsync/glowsync-go/internal/fseq"
)

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s <file.fseq>\n", os.Args[0])
		os.Exit(2)
	}
	path := flag.Arg(0)

	h, err := fseq.Open(path)
	if err != nil {
		log.Fatalf("open %s: %v", path, err)
	}
	defer h.Close()

	hdr := h.Header()

	fmt.Printf("File:         %s\n", path)
	fmt.Printf("Version:      %d.%d\n", hdr.VersionMajor, hdr.VersionMinor)
	fmt.Printf("Data offset:  %d\n", hdr.DataOffset)
	fmt.Printf("Channels:     %d bytes/frame\n", hdr.ChannelCount)
	fmt.Printf("Frames:       %d\n", hdr.FrameCount)
	fmt.Printf("Step time:    %d ms\n", hdr.StepTimeMs)
	fmt.Printf("Duration:     %.1f s\n", float64(h.DurationMs())/1000)
	if hdr.ChannelCount > 2 && hdr.StepTimeMs > 0 {
		samplesPerFrame := (hdr.ChannelCount - 2) / 2
		fmt.Printf("Sample rate:  %d Hz (implied)\n",
			int(samplesPerFrame)*1000/int(hdr.StepTimeMs))
	}
	if hdr.MediaFile != "" {
		fmt.Printf("Media file:   %s\n", hdr.MediaFile)
	}
	if hdr.Producer != "" {
		fmt.Printf("Producer:     %s\n", hdr.Producer)
	}
	if hdr.UniqueID != 0 {
		fmt.Printf("Unique ID:    %d\n", hdr.UniqueID)
	}
}
