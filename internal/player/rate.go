// ABOUTME: Variable-rate PCM adjuster using linear interpolation
// ABOUTME: Applies small playback speed corrections without pitch machinery
package player

import "sync"

// RateAdjuster resamples interleaved int16 PCM by a settable rate factor.
// A factor above 1.0 consumes input faster than real time, letting playback
// catch up to the source; below 1.0 lets the source catch up to us. Intended
// for small corrections where linear interpolation is inaudible.
type RateAdjuster struct {
	mu       sync.Mutex
	channels int
	rate     float64
	position float64
}

// NewRateAdjuster creates an adjuster at nominal rate.
func NewRateAdjuster(channels int) *RateAdjuster {
	return &RateAdjuster{
		channels: channels,
		rate:     1.0,
	}
}

// SetRate updates the playback rate factor.
func (r *RateAdjuster) SetRate(rate float64) {
	r.mu.Lock()
	r.rate = rate
	r.mu.Unlock()
}

// Rate returns the current rate factor.
func (r *RateAdjuster) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}

// Reset clears interpolation state, for use after a seek.
func (r *RateAdjuster) Reset() {
	r.mu.Lock()
	r.position = 0.0
	r.mu.Unlock()
}

// Process converts input frames at the current rate into output. Returns the
// number of output samples produced; the last input frame is held back as the
// interpolation anchor for the next chunk.
func (r *RateAdjuster) Process(input []int16, output []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(input) == 0 {
		return 0
	}

	inputFrames := len(input) / r.channels
	outputFrames := len(output) / r.channels

	outIdx := 0

	for outIdx < outputFrames {
		inputPos := r.position
		inputIdx := int(inputPos)

		if inputIdx >= inputFrames-1 {
			break
		}

		frac := inputPos - float64(inputIdx)

		for ch := 0; ch < r.channels; ch++ {
			sample1 := input[inputIdx*r.channels+ch]
			sample2 := input[(inputIdx+1)*r.channels+ch]

			interpolated := float64(sample1)*(1.0-frac) + float64(sample2)*frac
			output[outIdx*r.channels+ch] = int16(interpolated)
		}

		outIdx++
		r.position += r.rate
	}

	r.position -= float64(int(r.position))

	return outIdx * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce
// outputSamples at the current rate.
func (r *RateAdjuster) InputSamplesNeeded(outputSamples int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames)*r.rate) + 1
	return inputFrames * r.channels
}
