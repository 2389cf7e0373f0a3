package turn

import (
	"sync"
	"time"
)

const (
	DefaultThreshold  = 0.02
	DefaultSilence    = 1800 * time.Millisecond
	DefaultRearmDelay = 500 * time.Millisecond
)

// VAD is a trailing-edge silence detector. Speech onset is triggered externally by Arm;
// the detector only decides when an armed capture has gone quiet for long enough.
type VAD struct {
	mu         sync.Mutex
	threshold  float64
	silence    time.Duration
	armed      bool
	lastActive time.Time
}

// NewVAD builds a detector. Non-positive values fall back to the defaults.
func NewVAD(threshold float64, silence time.Duration) *VAD {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if silence <= 0 {
		silence = DefaultSilence
	}
	return &VAD{threshold: threshold, silence: silence}
}

// Arm starts a capture window with now as the last active instant.
func (v *VAD) Arm(now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.armed = true
	v.lastActive = now
}

// Disarm ends the capture window without reporting a stop.
func (v *VAD) Disarm() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.armed = false
}

// Armed reports whether a capture window is open.
func (v *VAD) Armed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.armed
}

// Observe records one energy sample and reports true exactly once per Arm,
// on the first tick where the silence has lasted longer than the configured duration.
func (v *VAD) Observe(rms float64, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.armed {
		return false
	}
	if rms > v.threshold {
		v.lastActive = now
	}
	return v.expiredLocked(now)
}

// Check is a tick without new audio, used when frames stop arriving altogether.
func (v *VAD) Check(now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.armed {
		return false
	}
	return v.expiredLocked(now)
}

func (v *VAD) expiredLocked(now time.Time) bool {
	if now.Sub(v.lastActive) <= v.silence {
		return false
	}
	v.armed = false
	return true
}
