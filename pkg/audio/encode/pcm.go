// ABOUTME: Raw PCM encoder
// ABOUTME: Writes stereo int16 samples as headerless little-endian bytes
package encode

import (
	"fmt"
	"io"

	"github.com/harperreed/emusync/pkg/audio"
)

// PCMEncoder writes raw s16le
type PCMEncoder struct {
	w   io.Writer
	buf []byte
}

// NewPCM creates a raw PCM encoder on w
func NewPCM(w io.Writer) *PCMEncoder {
	return &PCMEncoder{w: w}
}

// Write converts samples to little-endian bytes
func (e *PCMEncoder) Write(samples []int16) error {
	if len(samples)%audio.Channels != 0 {
		return fmt.Errorf("partial frame: %d samples", len(samples))
	}
	n := len(samples) * audio.BytesPerSample
	if len(e.buf) < n {
		e.buf = make([]byte, n)
	}
	audio.PutInt16LE(e.buf, samples)
	if _, err := e.w.Write(e.buf[:n]); err != nil {
		return fmt.Errorf("pcm write failed: %w", err)
	}
	return nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
