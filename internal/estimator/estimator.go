// ABOUTME: Playback position estimation against a polled second-granularity source
// ABOUTME: Tracks offset and clock drift, deciding hard seeks vs soft rate nudges
package estimator

import (
	"log"
	"sync"
	"time"
)

// Config holds the correction tunables. The defaults are empirically chosen;
// they are configuration, not fixed law.
type Config struct {
	HardSeekThresholdMs float64       // error magnitude that justifies a jump
	HardSeekCooldown    time.Duration // minimum spacing between jumps
	DeadbandMs          float64       // below this, error is measurement noise
	MaxRateAdjust       float64       // soft correction clamp (0.02 = ±2%)
	RateGain            float64       // rate factor per ms of error
	SmoothingRate       float64       // EWMA weight for new samples
	MaxDriftPpm         float64       // clamp on per-sample implied drift
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		HardSeekThresholdMs: 1000,
		HardSeekCooldown:    2 * time.Second,
		DeadbandMs:          500,
		MaxRateAdjust:       0.02,
		RateGain:            0.00002,
		SmoothingRate:       0.1,
		MaxDriftPpm:         500,
	}
}

// Sample is one poll of the authoritative status source.
type Sample struct {
	RequestSent     time.Time
	RequestReceived time.Time
	ReportedSeconds int // integer seconds, the source's full precision
	ItemID          string
}

// DecisionKind classifies a correction decision.
type DecisionKind int

const (
	DecisionNone DecisionKind = iota
	DecisionHardSeek
	DecisionSoftRate
)

// Decision is the correction issued for one poll.
type Decision struct {
	Kind       DecisionKind
	TargetMs   int64   // hard seek target
	RateFactor float64 // soft correction playback rate (1.0 = nominal)
	ErrorMs    float64 // residual that drove the decision
}

// Signal reports poll-failure state for UI display. Failures never touch the
// drift model; sync recovers without rebuilding state.
type Signal int

const (
	SignalNone Signal = iota
	SignalSourceUnreachable
	SignalLostSync
)

// lostSyncAfter is the consecutive-failure count that escalates the signal.
const lostSyncAfter = 3

// Estimator maintains the drift model for the currently playing item and
// issues correction decisions. All mutation happens in OnPoll, OnPollError,
// OnItemChanged, and OnIdle; Position is a read-only snapshot.
type Estimator struct {
	mu     sync.RWMutex
	config Config

	// Drift model, reset on item change and idle transitions.
	itemID         string
	offsetMs       float64 // believed true elapsed time, audio-clock referenced
	driftPpm       float64 // local clock fast/slow rate vs the source
	lastSampleAt   time.Time
	lastHardSeekAt time.Time
	sampleCount    int

	consecutiveFailures int

	stats Stats
}

// Stats counts correction activity since the last reset.
type Stats struct {
	Samples      int
	HardSeeks    int64
	SoftRates    int64
	DriftPpm     float64
	LastErrorMs  float64
	FailedPolls  int64
	CurrentItem  string
}

// New creates an estimator with the given tunables. Zero-value fields fall
// back to the defaults.
func New(config Config) *Estimator {
	def := DefaultConfig()
	if config.HardSeekThresholdMs == 0 {
		config.HardSeekThresholdMs = def.HardSeekThresholdMs
	}
	if config.HardSeekCooldown == 0 {
		config.HardSeekCooldown = def.HardSeekCooldown
	}
	if config.DeadbandMs == 0 {
		config.DeadbandMs = def.DeadbandMs
	}
	if config.MaxRateAdjust == 0 {
		config.MaxRateAdjust = def.MaxRateAdjust
	}
	if config.RateGain == 0 {
		config.RateGain = def.RateGain
	}
	if config.SmoothingRate == 0 {
		config.SmoothingRate = def.SmoothingRate
	}
	if config.MaxDriftPpm == 0 {
		config.MaxDriftPpm = def.MaxDriftPpm
	}
	return &Estimator{config: config}
}

// OnPoll processes one successful poll and returns the correction decision.
// The reported value's true instant is taken as the midpoint of the request
// interval, halving the error from unknown one-way latency.
func (e *Estimator) OnPoll(s Sample) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFailures = 0

	instant := s.RequestSent.Add(s.RequestReceived.Sub(s.RequestSent) / 2)
	observedMs := float64(s.ReportedSeconds) * 1000

	// A different item means a different timeline: nothing measured against
	// the previous item may leak into this one.
	if s.ItemID != e.itemID {
		e.resetLocked(s.ItemID)
	}

	// First sample for this item: adopt the reported position outright.
	if e.sampleCount == 0 {
		e.offsetMs = observedMs
		e.lastSampleAt = instant
		e.lastHardSeekAt = s.RequestReceived
		e.sampleCount = 1
		e.stats.Samples = 1
		log.Printf("estimator: initial position %s @ %.0fms", s.ItemID, observedMs)
		return Decision{Kind: DecisionHardSeek, TargetMs: int64(observedMs)}
	}

	elapsedMs := float64(instant.Sub(e.lastSampleAt)) / float64(time.Millisecond)
	if elapsedMs <= 0 {
		// Out-of-order or duplicate timing; nothing to infer from it.
		return Decision{Kind: DecisionNone}
	}

	predictedMs := e.offsetMs + elapsedMs*(1+e.driftPpm/1e6)
	errorMs := observedMs - predictedMs
	e.stats.LastErrorMs = errorMs

	abs := errorMs
	if abs < 0 {
		abs = -abs
	}

	if abs >= e.config.HardSeekThresholdMs &&
		s.RequestReceived.Sub(e.lastHardSeekAt) >= e.config.HardSeekCooldown {
		// The jump invalidates drift inference for this interval, so the
		// rate estimate is left alone.
		e.offsetMs = observedMs
		e.lastSampleAt = instant
		e.lastHardSeekAt = s.RequestReceived
		e.sampleCount++
		e.stats.Samples++
		e.stats.HardSeeks++
		log.Printf("estimator: hard seek to %.0fms (error %.0fms)", observedMs, errorMs)
		return Decision{Kind: DecisionHardSeek, TargetMs: int64(observedMs), ErrorMs: errorMs}
	}

	// Steady state: blend this sample into offset and drift. Per-poll drift
	// signals are extremely noisy at 1Hz effective resolution, so the
	// implied rate is clamped to a plausible clock error before the EWMA;
	// a raw instantaneous estimate would diverge on quantization noise.
	impliedPpm := errorMs / elapsedMs * 1e6
	if impliedPpm > e.config.MaxDriftPpm {
		impliedPpm = e.config.MaxDriftPpm
	} else if impliedPpm < -e.config.MaxDriftPpm {
		impliedPpm = -e.config.MaxDriftPpm
	}
	e.driftPpm = (1-e.config.SmoothingRate)*e.driftPpm + e.config.SmoothingRate*impliedPpm
	e.offsetMs = predictedMs + e.config.SmoothingRate*errorMs
	e.lastSampleAt = instant
	e.sampleCount++
	e.stats.Samples++
	e.stats.DriftPpm = e.driftPpm

	if abs < e.config.DeadbandMs {
		// Expected quantization noise from the integer-second source.
		return Decision{Kind: DecisionNone, ErrorMs: errorMs}
	}

	adjust := errorMs * e.config.RateGain
	if adjust > e.config.MaxRateAdjust {
		adjust = e.config.MaxRateAdjust
	} else if adjust < -e.config.MaxRateAdjust {
		adjust = -e.config.MaxRateAdjust
	}
	e.stats.SoftRates++

	return Decision{Kind: DecisionSoftRate, RateFactor: 1 + adjust, ErrorMs: errorMs}
}

// OnPollError records a failed poll. The drift model is untouched; transient
// network loss must not discard sync state.
func (e *Estimator) OnPollError() Signal {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFailures++
	e.stats.FailedPolls++

	if e.consecutiveFailures >= lostSyncAfter {
		return SignalLostSync
	}
	return SignalSourceUnreachable
}

// OnItemChanged forces a drift model reset for a new item.
func (e *Estimator) OnItemChanged(itemID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked(itemID)
}

// OnIdle clears the model when playback stops.
func (e *Estimator) OnIdle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked("")
}

func (e *Estimator) resetLocked(itemID string) {
	e.itemID = itemID
	e.offsetMs = 0
	e.driftPpm = 0
	e.lastSampleAt = time.Time{}
	e.lastHardSeekAt = time.Time{}
	e.sampleCount = 0
	e.stats = Stats{CurrentItem: itemID}
}

// Position returns the current best position estimate, extrapolated from the
// last sample by the drift-adjusted clock. ok is false until the model has a
// sample for the current item. Readers take snapshots; they never block the
// poll loop beyond the brief read lock.
func (e *Estimator) Position(now time.Time) (ms int64, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.sampleCount == 0 {
		return 0, false
	}

	elapsedMs := float64(now.Sub(e.lastSampleAt)) / float64(time.Millisecond)
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	return int64(e.offsetMs + elapsedMs*(1+e.driftPpm/1e6)), true
}

// GetStats returns correction counters for display.
func (e *Estimator) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}
