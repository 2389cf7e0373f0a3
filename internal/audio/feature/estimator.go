// Package feature estimates live delivery metrics (pitch, tone, clarity, pace) from microphone audio.
package feature

import (
	"context"
	"math"
	"math/cmplx"
	"sync/atomic"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	// WindowSize is the number of samples analysed per snapshot.
	WindowSize = 2048

	// Fundamental frequencies considered by the pitch search.
	minPitchHz   = 110
	maxPitchHz   = 1000
	pitchCeiling = 400.0
	clarityGain  = 8.0
	paceGain     = 10.0
	paceScale    = 2.0
)

// Metrics is one snapshot. Every field is in [0, 1].
type Metrics struct {
	Pitch   float64 `json:"pitch"`
	Tone    float64 `json:"tone"`
	Clarity float64 `json:"clarity"`
	Pace    float64 `json:"pace"`
}

// Estimate computes the four metrics for a single window of samples.
func Estimate(samples []float64, sampleRate int) Metrics {
	if len(samples) == 0 || sampleRate <= 0 {
		return Metrics{}
	}
	return Metrics{
		Pitch:   clamp01(pitch(samples, sampleRate) / pitchCeiling),
		Tone:    clamp01(tone(samples)),
		Clarity: clamp01(RMS(samples) * clarityGain),
		Pace:    clamp01(zeroCrossingRate(samples) * paceGain / paceScale),
	}
}

// pitch returns the fundamental frequency in Hz from the autocorrelation peak, or 0.
func pitch(samples []float64, sampleRate int) float64 {
	var (
		bestLag  = -1
		bestCorr float64
	)
	minLag := max(sampleRate/maxPitchHz, 1)
	maxLag := min(sampleRate/minPitchHz, len(samples)-1)
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i+lag < len(samples); i++ {
			corr += samples[i] * samples[i+lag]
		}
		if corr > bestCorr {
			bestCorr, bestLag = corr, lag
		}
	}
	if bestLag <= 0 {
		return 0
	}
	return float64(sampleRate) / float64(bestLag)
}

// tone is the normalized spectral centroid of the Blackman-tapered window.
func tone(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}

	tapered := window.Blackman(append([]float64(nil), samples...))
	fft := fourier.NewFFT(len(tapered))
	coeffs := fft.Coefficients(nil, tapered)

	bins := len(coeffs)
	norm := float64(len(tapered))
	var weighted, total float64
	for i, c := range coeffs {
		power := cmplx.Abs(c) / norm
		power *= power
		if power <= 0 {
			continue
		}
		db := 10 * math.Log10(power)
		magnitude := math.Pow(10, db/10)
		weighted += float64(i) * magnitude
		total += magnitude
	}
	if total == 0 {
		return 0
	}
	return weighted / total / float64(bins)
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if samples[i-1]*samples[i] < 0 {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Estimator keeps a rolling window over a frame stream.
// Push is not safe for concurrent use; Run owns the estimator for its lifetime.
type Estimator struct {
	sampleRate int
	ring       []float64
	pos        int
	filled     int
	started    atomic.Bool
}

// NewEstimator returns an estimator for the given sample rate.
func NewEstimator(sampleRate int) *Estimator {
	return &Estimator{
		sampleRate: sampleRate,
		ring:       make([]float64, WindowSize),
	}
}

// Push appends samples to the rolling window and returns the current snapshot.
func (e *Estimator) Push(samples []float64) Metrics {
	if e.ring == nil {
		return Metrics{}
	}
	for _, s := range samples {
		e.ring[e.pos] = s
		e.pos = (e.pos + 1) % len(e.ring)
		if e.filled < len(e.ring) {
			e.filled++
		}
	}
	return Estimate(e.window(), e.sampleRate)
}

// window returns the filled part of the ring in chronological order.
func (e *Estimator) window() []float64 {
	out := make([]float64, 0, e.filled)
	if e.filled < len(e.ring) {
		return append(out, e.ring[:e.filled]...)
	}
	out = append(out, e.ring[e.pos:]...)
	return append(out, e.ring[:e.pos]...)
}

// Run emits one snapshot per received frame until frames closes or ctx is done.
// A nil source yields an already closed channel. The estimator cannot be restarted:
// later calls also return a closed channel.
func (e *Estimator) Run(ctx context.Context, frames <-chan []float64) <-chan Metrics {
	out := make(chan Metrics, 1)
	if frames == nil || !e.started.CompareAndSwap(false, true) {
		close(out)
		return out
	}

	go func() {
		defer close(out)
		defer e.release()

		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					return
				}
				m := e.Push(frame)
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func (e *Estimator) release() {
	e.ring = nil
	e.pos, e.filled = 0, 0
}
