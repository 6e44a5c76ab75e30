// ABOUTME: Local audio playback following correction events
// ABOUTME: Applies hard seeks and soft rate nudges to keep media in sync
package player

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/glowsync/glowsync-go/internal/driver"
	"github.com/glowsync/glowsync-go/internal/protocol"
)

// chunkMs is the playback pump granularity.
const chunkMs = 20

// Config holds player settings.
type Config struct {
	MediaDir string
}

// Player plays the local copy of the show's media, steered by correction
// events. Hard seeks reposition the decoder; soft corrections bend the
// playback rate through the adjuster.
type Player struct {
	config Config
	output *Output

	mu       sync.Mutex
	media    *MediaSource
	adjuster *RateAdjuster
	item     string
	playing  bool
}

// New creates a player.
func New(config Config) *Player {
	return &Player{
		config: config,
		output: NewOutput(),
	}
}

// Output exposes the audio output for volume control.
func (p *Player) Output() *Output {
	return p.output
}

// Run consumes correction events and pumps decoded audio until ctx is
// cancelled.
func (p *Player) Run(ctx context.Context, corrections <-chan driver.CorrectionEvent) {
	ticker := time.NewTicker(chunkMs * time.Millisecond)
	defer ticker.Stop()
	defer p.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-corrections:
			if !ok {
				return
			}
			p.apply(ev)
		case <-ticker.C:
			p.pump()
		}
	}
}

// apply handles one correction event.
func (p *Player) apply(ev driver.CorrectionEvent) {
	switch ev.Type {
	case protocol.TypeHardSeek:
		p.ensureMedia(ev.Item)
		p.mu.Lock()
		if p.media != nil {
			if err := p.media.SeekMs(ev.TargetMs); err != nil {
				log.Printf("player: seek failed: %v", err)
			} else {
				p.adjuster.Reset()
				p.adjuster.SetRate(1.0)
				p.playing = true
				log.Printf("player: hard seek to %dms", ev.TargetMs)
			}
		}
		p.mu.Unlock()

	case protocol.TypeSoftRate:
		p.ensureMedia(ev.Item)
		p.mu.Lock()
		if p.adjuster != nil {
			p.adjuster.SetRate(ev.RateFactor)
		}
		p.mu.Unlock()

	case protocol.TypeIdle:
		p.stop()
	}
}

// ensureMedia opens the media file for item if it is not already current.
func (p *Player) ensureMedia(item string) {
	p.mu.Lock()
	current := p.item
	p.mu.Unlock()

	if item == "" || item == current {
		return
	}

	p.stop()

	path, ok := LocateMedia(p.config.MediaDir, item)
	if !ok {
		log.Printf("player: no local media for %q", item)
		return
	}

	media, err := OpenMedia(path)
	if err != nil {
		log.Printf("player: %v", err)
		return
	}

	if err := p.output.Initialize(Format{SampleRate: media.SampleRate(), Channels: media.Channels()}); err != nil {
		log.Printf("player: %v", err)
		media.Close()
		return
	}

	p.mu.Lock()
	p.media = media
	p.adjuster = NewRateAdjuster(media.Channels())
	p.item = item
	p.playing = true
	p.mu.Unlock()
}

// pump decodes and plays one chunk at the current rate.
func (p *Player) pump() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing || p.media == nil {
		return
	}

	outSamples := p.media.SampleRate() * p.media.Channels() * chunkMs / 1000
	out := make([]int16, outSamples)
	in := make([]int16, p.adjuster.InputSamplesNeeded(outSamples))

	n, err := p.media.Read(in)
	if err == io.EOF {
		log.Printf("player: media finished: %s", p.item)
		p.playing = false
		return
	}
	if err != nil {
		log.Printf("player: read media: %v", err)
		p.playing = false
		return
	}

	produced := p.adjuster.Process(in[:n], out)
	if produced == 0 {
		return
	}
	if err := p.output.Play(out[:produced]); err != nil {
		log.Printf("player: %v", err)
	}
}

// stop closes the current media and marks playback idle.
func (p *Player) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.media != nil {
		p.media.Close()
		p.media = nil
	}
	p.adjuster = nil
	p.item = ""
	p.playing = false
}
