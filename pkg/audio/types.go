// ABOUTME: Shared PCM type definitions
// ABOUTME: Stereo int16 frame layout, clamping and byte packing helpers
package audio

import "encoding/binary"

const (
	// Channels is the channel count used across the pipeline (interleaved L/R)
	Channels = 2

	// BytesPerSample is the size of one signed 16-bit sample
	BytesPerSample = 2

	// BytesPerFrame is the size of one interleaved stereo frame
	BytesPerFrame = Channels * BytesPerSample

	MaxInt16 = 32767
	MinInt16 = -32768
)

// Format describes a PCM stream
type Format struct {
	SampleRate int
	Channels   int
}

// Frames returns the number of whole frames held by n interleaved samples
func (f Format) Frames(n int) int {
	if f.Channels <= 0 {
		return 0
	}
	return n / f.Channels
}

// Clamp16 saturates a wide sample into the int16 range
func Clamp16(v int32) int16 {
	if v > MaxInt16 {
		return MaxInt16
	}
	if v < MinInt16 {
		return MinInt16
	}
	return int16(v)
}

// PutInt16LE packs samples into dst as little-endian bytes.
// dst must hold at least len(samples)*2 bytes. Returns bytes written.
func PutInt16LE(dst []byte, samples []int16) int {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(s))
	}
	return len(samples) * BytesPerSample
}

// Int16FromLE unpacks little-endian bytes into dst. Returns samples written.
func Int16FromLE(dst []int16, src []byte) int {
	n := len(src) / BytesPerSample
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(src[i*2:]))
	}
	return n
}

// MonoToStereo duplicates each mono sample into an L/R pair.
// dst must hold 2*len(mono) samples.
func MonoToStereo(dst, mono []int16) {
	for i, s := range mono {
		dst[i*2] = s
		dst[i*2+1] = s
	}
}
