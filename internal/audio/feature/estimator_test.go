package feature

import (
	"context"
	"math"
	"testing"
	"time"
)

func sine(freq float64, amplitude float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func assertUnit(t *testing.T, m Metrics) {
	t.Helper()
	for name, v := range map[string]float64{"pitch": m.Pitch, "tone": m.Tone, "clarity": m.Clarity, "pace": m.Pace} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			t.Fatalf("%s out of range: %v", name, v)
		}
	}
}

func TestEstimateSilence(t *testing.T) {
	m := Estimate(make([]float64, WindowSize), 16000)
	if m != (Metrics{}) {
		t.Fatalf("expected all zero metrics for silence, got %+v", m)
	}
}

func TestEstimateClipping(t *testing.T) {
	samples := make([]float64, WindowSize)
	for i := range samples {
		if (i/7)%2 == 0 {
			samples[i] = 1
		} else {
			samples[i] = -1
		}
	}

	m := Estimate(samples, 48000)
	assertUnit(t, m)
	if m.Clarity != 1 {
		t.Fatalf("full-scale signal should saturate clarity, got %v", m.Clarity)
	}
}

func TestEstimatePitchOfSine(t *testing.T) {
	m := Estimate(sine(200, 0.5, 16000, WindowSize), 16000)
	assertUnit(t, m)

	if math.Abs(m.Pitch-0.5) > 0.01 {
		t.Fatalf("expected pitch near 200/400, got %v", m.Pitch)
	}
	if m.Tone <= 0 {
		t.Fatalf("expected non-zero tone, got %v", m.Tone)
	}
	if m.Pace <= 0 {
		t.Fatalf("expected non-zero pace, got %v", m.Pace)
	}
}

func TestPitchFollowsSampleRate(t *testing.T) {
	cases := []struct {
		name       string
		freq       float64
		sampleRate int
	}{
		{"500Hz at 16kHz", 500, 16000},
		{"800Hz at 16kHz", 800, 16000},
		{"150Hz at 16kHz", 150, 16000},
		{"500Hz at 44.1kHz", 500, 44100},
		{"150Hz at 48kHz", 150, 48000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := pitch(sine(tc.freq, 0.5, tc.sampleRate, WindowSize), tc.sampleRate)
			if math.Abs(got-tc.freq)/tc.freq > 0.03 {
				t.Fatalf("expected pitch near %vHz, got %.1fHz", tc.freq, got)
			}
		})
	}

	if m := Estimate(sine(500, 0.5, 16000, WindowSize), 16000); m.Pitch != 1 {
		t.Fatalf("500Hz is above the 400Hz ceiling, expected pitch 1, got %v", m.Pitch)
	}
}

func TestEstimateBrighterSignalHasHigherTone(t *testing.T) {
	low := Estimate(sine(150, 0.5, 16000, WindowSize), 16000)
	high := Estimate(sine(3000, 0.5, 16000, WindowSize), 16000)

	if high.Tone <= low.Tone {
		t.Fatalf("expected higher centroid for 3kHz tone: low=%v high=%v", low.Tone, high.Tone)
	}
}

func TestEstimateHandlesDegenerateInput(t *testing.T) {
	if m := Estimate(nil, 16000); m != (Metrics{}) {
		t.Fatalf("expected zero metrics for empty window, got %+v", m)
	}
	if m := Estimate([]float64{0.3, -0.3}, 0); m != (Metrics{}) {
		t.Fatalf("expected zero metrics for invalid sample rate, got %+v", m)
	}

	spiky := []float64{math.Inf(1), -1, 1, -1}
	assertUnit(t, Estimate(spiky, 16000))
}

func TestPushKeepsRollingWindow(t *testing.T) {
	est := NewEstimator(16000)
	est.Push(sine(200, 0.5, 16000, WindowSize))

	m := est.Push(make([]float64, WindowSize))
	if m != (Metrics{}) {
		t.Fatalf("window should be fully replaced by silence, got %+v", m)
	}
	if got := len(est.window()); got != WindowSize {
		t.Fatalf("unexpected window length: %d", got)
	}
}

func TestRunNilSourceReturnsClosedChannel(t *testing.T) {
	out := NewEstimator(16000).Run(context.Background(), nil)

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("nil source should not block")
	}
}

func TestRunEmitsPerFrameAndCloses(t *testing.T) {
	est := NewEstimator(16000)
	frames := make(chan []float64)
	out := est.Run(context.Background(), frames)

	go func() {
		frames <- sine(200, 0.5, 16000, 512)
		frames <- sine(200, 0.5, 16000, 512)
		close(frames)
	}()

	count := 0
	for m := range out {
		assertUnit(t, m)
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 snapshots, got %d", count)
	}

	again := est.Run(context.Background(), make(chan []float64))
	if _, ok := <-again; ok {
		t.Fatal("estimator should not restart")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := NewEstimator(16000).Run(ctx, make(chan []float64))
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected channel to close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestDecodePCM16LE(t *testing.T) {
	samples := DecodePCM16LE([]byte{0x00, 0x80, 0xff, 0x7f, 0x00, 0x00, 0x01})
	if len(samples) != 3 {
		t.Fatalf("unexpected sample count: %d", len(samples))
	}
	if samples[0] != -1 || samples[2] != 0 {
		t.Fatalf("unexpected samples: %v", samples)
	}
	if samples[1] <= 0.999 || samples[1] >= 1 {
		t.Fatalf("unexpected max sample: %v", samples[1])
	}
}
