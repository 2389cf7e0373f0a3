package feature

import (
	"encoding/binary"
	"math"
)

// DecodePCM16LE converts 16-bit signed little-endian PCM into samples in [-1, 1).
// A trailing odd byte is ignored.
func DecodePCM16LE(pcm []byte) []float64 {
	n := len(pcm) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		samples[i] = float64(v) / 32768.0
	}
	return samples
}

// RMS returns the root-mean-square level of the samples, 0 for an empty slice.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
