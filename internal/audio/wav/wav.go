// Package wav reads and writes the 16-bit mono RIFF files exchanged with speech providers.
package wav

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrNotWAV is returned when the payload has no RIFF/WAVE structure.
	ErrNotWAV = errors.New("wav: not a RIFF/WAVE payload")
	// ErrUnsupported is returned for anything other than 16-bit mono PCM.
	ErrUnsupported = errors.New("wav: only 16-bit mono PCM is supported")
)

// Encode wraps mono 16-bit PCM in a canonical 44-byte RIFF/WAVE header.
func Encode(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// Decode extracts the PCM payload and sample rate from a 16-bit mono WAV file.
// It walks the chunk list so files with extra chunks (LIST, fact) are accepted.
func Decode(data []byte) (pcm []byte, sampleRate int, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}

	var (
		channels uint16
		bits     uint16
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, ErrNotWAV
			}
			channels = binary.LittleEndian.Uint16(data[body+2:])
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bits = binary.LittleEndian.Uint16(data[body+14:])
		case "data":
			if channels != 1 || bits != 16 {
				return nil, 0, ErrUnsupported
			}
			return data[body : body+size], sampleRate, nil
		}

		off = body + size + size%2
	}
	return nil, 0, ErrNotWAV
}
