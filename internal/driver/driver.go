// ABOUTME: Playback client driver coordinating polling, estimation, and frames
// ABOUTME: Runs the poll/correct loop and the frame-locked streaming loop
package driver

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glowsync/glowsync-go/internal/estimator"
	"github.com/glowsync/glowsync-go/internal/fpp"
	"github.com/glowsync/glowsync-go/internal/fseq"
	"github.com/glowsync/glowsync-go/internal/protocol"
	"github.com/google/uuid"
)

// StatusSource is the polled authoritative position source.
type StatusSource interface {
	Status(ctx context.Context) (fpp.Poll, error)
}

// CorrectionEvent is one decision from the estimator, fanned out to audio
// clients. Type uses the protocol constants.
type CorrectionEvent struct {
	Type       string
	TargetMs   int64
	RateFactor float64
	ErrorMs    float64
	Item       string
}

// FrameEvent is one tick of the frame-locked stream. Seq is strictly
// increasing across the whole stream, session boundaries included.
type FrameEvent struct {
	Seq             uint64
	Type            string // protocol.TypeSeqOpen, "frame", TypeNoData, TypeIdle, TypeSeqErr
	SessionID       string
	Item            string
	Channels        uint32
	Frames          uint32
	FrameDurationMs uint8
	PCM             []byte
	Error           string
}

// TypeFrame is the FrameEvent type carrying PCM payload.
const TypeFrame = "frame"

// Config holds driver settings.
type Config struct {
	PollInterval   time.Duration // 250ms default
	MediaDir       string        // where companion frame files live
	FrameStreaming bool          // enable the frame-locked stream
	Estimator      estimator.Config
}

// Driver owns the poll/correct cycle and, when enabled, one frame-stream
// session per playing item. The estimator's position cell is the only state
// shared between the two loops.
type Driver struct {
	config Config
	source StatusSource
	est    *estimator.Estimator

	seq atomic.Uint64 // frame stream sequence ids

	mu          sync.RWMutex
	playing     bool
	item        string
	lastStatus  fpp.Status
	lastPollOK  bool
	session     *session
	corrections []chan CorrectionEvent
	frames      []chan FrameEvent
}

// session is one frame-stream lifetime, torn down on item change or idle.
// The goroutine started in startSession owns the handle exclusively.
type session struct {
	id     string
	item   string
	handle *fseq.Handle
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a driver.
func New(source StatusSource, config Config) *Driver {
	if config.PollInterval == 0 {
		config.PollInterval = 250 * time.Millisecond
	}
	return &Driver{
		config: config,
		source: source,
		est:    estimator.New(config.Estimator),
	}
}

// SubscribeCorrections returns a channel of correction events. Slow
// subscribers drop events rather than stalling the poll loop.
func (d *Driver) SubscribeCorrections() <-chan CorrectionEvent {
	ch := make(chan CorrectionEvent, 16)
	d.mu.Lock()
	d.corrections = append(d.corrections, ch)
	d.mu.Unlock()
	return ch
}

// SubscribeFrames returns a channel of frame stream events.
func (d *Driver) SubscribeFrames() <-chan FrameEvent {
	ch := make(chan FrameEvent, 64)
	d.mu.Lock()
	d.frames = append(d.frames, ch)
	d.mu.Unlock()
	return ch
}

// Run executes the poll loop until ctx is cancelled. Polls are strictly
// sequential: one in-flight request at a time, so corrections are applied in
// poll order and a stale response can never overtake a newer one.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()
	defer d.stopSession()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.pollOnce(ctx)
		}
	}
}

func (d *Driver) pollOnce(ctx context.Context) {
	poll, err := d.source.Status(ctx)
	if err != nil {
		d.mu.Lock()
		d.lastPollOK = false
		d.mu.Unlock()

		switch d.est.OnPollError() {
		case estimator.SignalLostSync:
			d.emitCorrection(CorrectionEvent{Type: protocol.TypeLostSync})
		default:
			d.emitCorrection(CorrectionEvent{Type: protocol.TypeSourceUnreachable})
		}
		return
	}

	st := poll.Status

	d.mu.Lock()
	d.lastStatus = st
	d.lastPollOK = true
	wasPlaying := d.playing
	previousItem := d.item
	d.mu.Unlock()

	if !st.IsPlaying() {
		if wasPlaying {
			d.transitionIdle()
		}
		return
	}

	item := st.CurrentItem()
	if !wasPlaying || item != previousItem {
		d.transitionItem(item)
	}

	decision := d.est.OnPoll(estimator.Sample{
		RequestSent:     poll.RequestSent,
		RequestReceived: poll.RequestReceived,
		ReportedSeconds: st.SecondsPlayed,
		ItemID:          item,
	})

	switch decision.Kind {
	case estimator.DecisionHardSeek:
		d.emitCorrection(CorrectionEvent{
			Type:     protocol.TypeHardSeek,
			TargetMs: decision.TargetMs,
			ErrorMs:  decision.ErrorMs,
			Item:     item,
		})
	case estimator.DecisionSoftRate:
		d.emitCorrection(CorrectionEvent{
			Type:       protocol.TypeSoftRate,
			RateFactor: decision.RateFactor,
			ErrorMs:    decision.ErrorMs,
			Item:       item,
		})
	}
}

// transitionIdle tears down playback state: drift model, frame session, and
// the open file handle all go together.
func (d *Driver) transitionIdle() {
	d.est.OnIdle()
	d.stopSession()

	d.mu.Lock()
	d.playing = false
	d.item = ""
	d.mu.Unlock()

	d.emitCorrection(CorrectionEvent{Type: protocol.TypeIdle})
	d.emitFrame(FrameEvent{Seq: d.seq.Add(1), Type: protocol.TypeIdle})
	log.Printf("driver: idle")
}

// transitionItem rebuilds per-item state for a newly playing item. The old
// session's handle is never reused, even if the new item resolves to the
// same companion path.
func (d *Driver) transitionItem(item string) {
	d.est.OnItemChanged(item)
	d.stopSession()

	d.mu.Lock()
	d.playing = true
	d.item = item
	d.mu.Unlock()

	log.Printf("driver: now playing %q", item)

	if d.config.FrameStreaming {
		d.startSession(item)
	}
}

// startSession opens the companion frame file and starts the streaming loop.
// A missing companion is a normal outcome, reported once per item.
func (d *Driver) startSession(item string) {
	path, ok := fseq.Locate(d.config.MediaDir, item, nil)
	if !ok {
		log.Printf("driver: no companion data for %q", item)
		d.emitFrame(FrameEvent{Seq: d.seq.Add(1), Type: protocol.TypeNoData, Item: item})
		return
	}

	handle, err := fseq.Open(path)
	if err != nil {
		// Structural failure: fall back to non-frame-locked mode and do not
		// retry this file until the item changes.
		log.Printf("driver: open companion %s: %v", path, err)
		d.emitFrame(FrameEvent{Seq: d.seq.Add(1), Type: protocol.TypeSeqErr, Item: item, Error: err.Error()})
		return
	}

	hdr := handle.Header()
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:     uuid.New().String(),
		item:   item,
		handle: handle,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	d.mu.Lock()
	d.session = sess
	d.mu.Unlock()

	d.emitFrame(FrameEvent{
		Seq:             d.seq.Add(1),
		Type:            protocol.TypeSeqOpen,
		SessionID:       sess.id,
		Item:            item,
		Channels:        hdr.ChannelCount,
		Frames:          hdr.FrameCount,
		FrameDurationMs: hdr.StepTimeMs,
	})

	log.Printf("driver: frame stream open: %s (%d ch, %d frames, %dms steps)",
		path, hdr.ChannelCount, hdr.FrameCount, hdr.StepTimeMs)

	go d.streamFrames(ctx, sess)
}

// streamFrames is the frame-locked loop: every step interval it snapshots
// the estimator's position and emits that frame's PCM. It reads the position
// cell non-destructively and never blocks on a poll.
func (d *Driver) streamFrames(ctx context.Context, sess *session) {
	defer close(sess.done)
	defer sess.handle.Close()

	step := time.Duration(sess.handle.Header().StepTimeMs) * time.Millisecond
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pos, ok := d.est.Position(time.Now())
		if !ok {
			// Model not primed yet for this item; hold rather than guess.
			continue
		}

		idx := sess.handle.FrameForPosition(pos)
		pcm, err := sess.handle.FramePCM(idx)
		switch {
		case err == nil:
			out := make([]byte, len(pcm))
			copy(out, pcm)
			d.emitFrame(FrameEvent{
				Seq:       d.seq.Add(1),
				Type:      TypeFrame,
				SessionID: sess.id,
				Item:      sess.item,
				PCM:       out,
			})
		case err == fseq.ErrEndOfData:
			d.emitFrame(FrameEvent{
				Seq:       d.seq.Add(1),
				Type:      protocol.TypeNoData,
				SessionID: sess.id,
				Item:      sess.item,
			})
		default:
			d.emitFrame(FrameEvent{
				Seq:       d.seq.Add(1),
				Type:      protocol.TypeSeqErr,
				SessionID: sess.id,
				Item:      sess.item,
				Error:     err.Error(),
			})
			return
		}
	}
}

// stopSession cancels the streaming loop and waits for it to release the
// file handle, so teardown is atomic from the caller's perspective.
func (d *Driver) stopSession() {
	d.mu.Lock()
	sess := d.session
	d.session = nil
	d.mu.Unlock()

	if sess == nil {
		return
	}
	sess.cancel()
	<-sess.done
}

func (d *Driver) emitCorrection(ev CorrectionEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, ch := range d.corrections {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (d *Driver) emitFrame(ev FrameEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, ch := range d.frames {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Position returns the current estimated playback position.
func (d *Driver) Position() (int64, bool) {
	return d.est.Position(time.Now())
}

// Snapshot returns the panel status report.
func (d *Driver) Snapshot() protocol.StatusSnapshot {
	d.mu.RLock()
	playing := d.playing
	item := d.item
	st := d.lastStatus
	pollOK := d.lastPollOK
	frameLocked := d.session != nil
	d.mu.RUnlock()

	stats := d.est.GetStats()
	pos, _ := d.est.Position(time.Now())

	return protocol.StatusSnapshot{
		Playing:       playing,
		Item:          item,
		ReportedSec:   st.SecondsPlayed,
		EstimatedMs:   pos,
		DriftPpm:      stats.DriftPpm,
		HardSeeks:     stats.HardSeeks,
		SoftRates:     stats.SoftRates,
		FailedPolls:   stats.FailedPolls,
		FrameLocked:   frameLocked,
		SourceHealthy: pollOK,
	}
}
