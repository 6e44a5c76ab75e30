// ABOUTME: Tests for the variable-rate adjuster
// ABOUTME: Verifies passthrough, speed-up consumption, and chunk continuity
package player

import (
	"testing"
)

func TestNominalRatePassesThrough(t *testing.T) {
	r := NewRateAdjuster(2)

	input := []int16{100, 200, 300, 400, 500, 600, 700, 800}
	output := make([]int16, 6)

	n := r.Process(input, output)
	if n != 6 {
		t.Fatalf("expected 6 output samples, got %d", n)
	}

	// At rate 1.0 with zero phase, samples pass through unchanged.
	for i := 0; i < n; i++ {
		if output[i] != input[i] {
			t.Errorf("sample %d: expected %d, got %d", i, input[i], output[i])
		}
	}
}

func TestSpeedUpConsumesMoreInput(t *testing.T) {
	r := NewRateAdjuster(1)
	r.SetRate(2.0)

	input := []int16{0, 10, 20, 30, 40, 50, 60, 70}
	output := make([]int16, 8)

	n := r.Process(input, output)

	// Rate 2.0 halves the output: only ~4 frames fit before input runs out.
	if n >= 8 {
		t.Fatalf("expected fewer output samples at 2x rate, got %d", n)
	}
	if output[0] != 0 || output[1] != 20 {
		t.Errorf("expected every other sample, got %d, %d", output[0], output[1])
	}
}

func TestSlowDownInterpolates(t *testing.T) {
	r := NewRateAdjuster(1)
	r.SetRate(0.5)

	input := []int16{0, 100}
	output := make([]int16, 4)

	n := r.Process(input, output)
	if n < 2 {
		t.Fatalf("expected at least 2 output samples, got %d", n)
	}
	if output[0] != 0 {
		t.Errorf("expected 0, got %d", output[0])
	}
	if output[1] != 50 {
		t.Errorf("expected midpoint 50, got %d", output[1])
	}
}

func TestInputSamplesNeeded(t *testing.T) {
	r := NewRateAdjuster(2)
	r.SetRate(1.02)

	needed := r.InputSamplesNeeded(960)
	// 480 output frames at 1.02 needs ~490 input frames, plus the held frame.
	if needed < 960 || needed > 1000 {
		t.Errorf("unexpected input requirement: %d", needed)
	}
	if needed%2 != 0 {
		t.Errorf("input requirement not frame-aligned: %d", needed)
	}
}

func TestResetClearsPhase(t *testing.T) {
	r := NewRateAdjuster(1)
	r.SetRate(1.5)

	input := []int16{0, 10, 20, 30}
	output := make([]int16, 2)
	r.Process(input, output)

	r.Reset()
	r.SetRate(1.0)

	n := r.Process(input, output)
	if n != 2 {
		t.Fatalf("expected 2 samples after reset, got %d", n)
	}
	if output[0] != 0 {
		t.Errorf("expected phase-zero start after reset, got %d", output[0])
	}
}
