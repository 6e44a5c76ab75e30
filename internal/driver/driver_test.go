// ABOUTME: Tests for the playback client driver
// ABOUTME: Uses a fake status source and temp frame files to drive transitions
package driver

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glowsync/glowsync-go/internal/fpp"
	"github.com/glowsync/glowsync-go/internal/fseq"
	"github.com/glowsync/glowsync-go/internal/protocol"
)

// fakeSource is a scriptable StatusSource.
type fakeSource struct {
	mu     sync.Mutex
	status fpp.Status
	err    error
}

func (f *fakeSource) set(status fpp.Status) {
	f.mu.Lock()
	f.status = status
	f.err = nil
	f.mu.Unlock()
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSource) Status(ctx context.Context) (fpp.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return fpp.Poll{}, f.err
	}
	now := time.Now()
	return fpp.Poll{Status: f.status, RequestSent: now, RequestReceived: now}, nil
}

func playing(item string, seconds int) fpp.Status {
	return fpp.Status{Status: fpp.StatePlaying, CurrentSequence: item, SecondsPlayed: seconds}
}

// writeCompanion builds a small valid frame file and returns its path.
func writeCompanion(t *testing.T, dir, name string, channels uint32, frames int, stepMs uint8) string {
	t.Helper()

	path := filepath.Join(dir, name)
	w, err := fseq.NewWriter(path, fseq.WriterConfig{ChannelCount: channels, StepTimeMs: stepMs})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	record := make([]byte, channels)
	copy(record, fseq.SyncMarker)
	for i := 0; i < frames; i++ {
		record[2] = byte(i)
		if err := w.WriteFrame(record); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func drain(ch <-chan FrameEvent) []FrameEvent {
	var out []FrameEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPollEmitsInitialHardSeek(t *testing.T) {
	src := &fakeSource{}
	src.set(playing("show.fseq", 10))

	d := New(src, Config{})
	corrections := d.SubscribeCorrections()

	d.pollOnce(context.Background())

	select {
	case ev := <-corrections:
		if ev.Type != protocol.TypeHardSeek {
			t.Fatalf("expected hard seek, got %s", ev.Type)
		}
		if ev.TargetMs != 10000 {
			t.Errorf("expected target 10000ms, got %d", ev.TargetMs)
		}
		if ev.Item != "show.fseq" {
			t.Errorf("expected item identity on event, got %q", ev.Item)
		}
	default:
		t.Fatal("expected a correction event")
	}
}

func TestIdleTransition(t *testing.T) {
	src := &fakeSource{}
	src.set(playing("show.fseq", 10))

	d := New(src, Config{})
	corrections := d.SubscribeCorrections()
	frames := d.SubscribeFrames()

	d.pollOnce(context.Background())
	<-corrections // initial hard seek

	src.set(fpp.Status{Status: fpp.StateIdle})
	d.pollOnce(context.Background())

	select {
	case ev := <-corrections:
		if ev.Type != protocol.TypeIdle {
			t.Fatalf("expected idle correction, got %s", ev.Type)
		}
	default:
		t.Fatal("expected an idle correction event")
	}

	evs := drain(frames)
	if len(evs) == 0 || evs[len(evs)-1].Type != protocol.TypeIdle {
		t.Errorf("expected idle frame event, got %v", evs)
	}

	if _, ok := d.Position(); ok {
		t.Error("expected no position after idle")
	}
	if snap := d.Snapshot(); snap.Playing {
		t.Error("snapshot should report not playing")
	}
}

func TestMissingCompanionReportedOncePerItem(t *testing.T) {
	src := &fakeSource{}
	src.set(playing("noaudio.fseq", 5))

	d := New(src, Config{MediaDir: t.TempDir(), FrameStreaming: true})
	frames := d.SubscribeFrames()

	d.pollOnce(context.Background())
	d.pollOnce(context.Background())
	d.pollOnce(context.Background())

	noData := 0
	for _, ev := range drain(frames) {
		if ev.Type == protocol.TypeNoData {
			noData++
		}
	}
	if noData != 1 {
		t.Errorf("expected one no-data report for the item, got %d", noData)
	}
}

func TestFrameStreamSession(t *testing.T) {
	dir := t.TempDir()
	writeCompanion(t, dir, "show.audio.fseq", 64, 400, 25)

	src := &fakeSource{}
	src.set(playing("show.fseq", 2))

	d := New(src, Config{MediaDir: dir, FrameStreaming: true})
	frames := d.SubscribeFrames()

	d.pollOnce(context.Background())
	time.Sleep(150 * time.Millisecond)
	d.stopSession()

	evs := drain(frames)
	if len(evs) < 3 {
		t.Fatalf("expected open plus several frames, got %d events", len(evs))
	}

	open := evs[0]
	if open.Type != protocol.TypeSeqOpen {
		t.Fatalf("expected session open first, got %s", open.Type)
	}
	if open.SessionID == "" {
		t.Error("expected a session id")
	}
	if open.Channels != 64 || open.Frames != 400 || open.FrameDurationMs != 25 {
		t.Errorf("unexpected stream geometry: %d ch, %d frames, %dms",
			open.Channels, open.Frames, open.FrameDurationMs)
	}

	var lastSeq uint64
	for i, ev := range evs {
		if ev.Seq <= lastSeq {
			t.Fatalf("event %d: sequence id not strictly increasing (%d after %d)",
				i, ev.Seq, lastSeq)
		}
		lastSeq = ev.Seq

		if i == 0 {
			continue
		}
		if ev.Type != TypeFrame {
			t.Fatalf("event %d: expected frame, got %s", i, ev.Type)
		}
		if ev.SessionID != open.SessionID {
			t.Errorf("event %d: session id mismatch", i)
		}
		// FramePCM strips the two-byte sync marker.
		if len(ev.PCM) != 62 {
			t.Errorf("event %d: expected 62 payload bytes, got %d", i, len(ev.PCM))
		}
	}
}

func TestItemChangeRebuildsSession(t *testing.T) {
	dir := t.TempDir()
	writeCompanion(t, dir, "first.audio.fseq", 32, 100, 25)
	writeCompanion(t, dir, "second.audio.fseq", 32, 100, 25)

	src := &fakeSource{}
	src.set(playing("first.fseq", 1))

	d := New(src, Config{MediaDir: dir, FrameStreaming: true})
	frames := d.SubscribeFrames()

	d.pollOnce(context.Background())
	src.set(playing("second.fseq", 1))
	d.pollOnce(context.Background())
	d.stopSession()

	var opens []FrameEvent
	for _, ev := range drain(frames) {
		if ev.Type == protocol.TypeSeqOpen {
			opens = append(opens, ev)
		}
	}
	if len(opens) != 2 {
		t.Fatalf("expected two session opens, got %d", len(opens))
	}
	if opens[0].SessionID == opens[1].SessionID {
		t.Error("expected a fresh session id per item")
	}
	if opens[0].Item != "first.fseq" || opens[1].Item != "second.fseq" {
		t.Errorf("unexpected session items: %q, %q", opens[0].Item, opens[1].Item)
	}
}

func TestPollFailureSignals(t *testing.T) {
	src := &fakeSource{}
	src.set(playing("show.fseq", 10))

	d := New(src, Config{})
	corrections := d.SubscribeCorrections()

	d.pollOnce(context.Background())
	<-corrections

	src.fail(errors.New("connection refused"))
	d.pollOnce(context.Background())
	d.pollOnce(context.Background())
	d.pollOnce(context.Background())

	want := []string{
		protocol.TypeSourceUnreachable,
		protocol.TypeSourceUnreachable,
		protocol.TypeLostSync,
	}
	for i, w := range want {
		select {
		case ev := <-corrections:
			if ev.Type != w {
				t.Errorf("failure %d: expected %s, got %s", i, w, ev.Type)
			}
		default:
			t.Fatalf("failure %d: expected a correction event", i)
		}
	}

	if snap := d.Snapshot(); snap.SourceHealthy {
		t.Error("snapshot should report unhealthy source")
	}

	// Recovery keeps the model: no hard seek on the next good poll.
	src.set(playing("show.fseq", 10))
	d.pollOnce(context.Background())
	for _, ev := range drainCorrections(corrections) {
		if ev.Type == protocol.TypeHardSeek {
			t.Error("recovery poll should not hard seek")
		}
	}
}

func drainCorrections(ch <-chan CorrectionEvent) []CorrectionEvent {
	var out []CorrectionEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSnapshotWhilePlaying(t *testing.T) {
	src := &fakeSource{}
	src.set(playing("show.fseq", 42))

	d := New(src, Config{})
	d.pollOnce(context.Background())

	snap := d.Snapshot()
	if !snap.Playing {
		t.Error("expected playing")
	}
	if snap.Item != "show.fseq" {
		t.Errorf("expected item, got %q", snap.Item)
	}
	if snap.ReportedSec != 42 {
		t.Errorf("expected 42 reported seconds, got %d", snap.ReportedSec)
	}
	if snap.EstimatedMs < 42000 || snap.EstimatedMs > 42100 {
		t.Errorf("expected estimate near 42000ms, got %d", snap.EstimatedMs)
	}
	if !snap.SourceHealthy {
		t.Error("expected healthy source")
	}
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	src.set(playing("show.fseq", 1))

	d := New(src, Config{PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}

	if d.Snapshot().Item != "show.fseq" {
		t.Error("expected at least one poll to have landed")
	}
}
