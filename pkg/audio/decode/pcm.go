// ABOUTME: Raw PCM audio decoder
// ABOUTME: Reads headerless 16-bit little-endian mono or stereo PCM
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/harperreed/emusync/pkg/audio"
)

// PCMDecoder decodes raw s16le PCM
type PCMDecoder struct {
	r        io.Reader
	format   audio.Format
	buf      []byte
	mono     []int16
	leftover int
}

// NewPCM creates a raw PCM decoder for the given format
func NewPCM(r io.Reader, format audio.Format) (*PCMDecoder, error) {
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", format.SampleRate)
	}
	if format.Channels != 1 && format.Channels != 2 {
		return nil, fmt.Errorf("unsupported channel count: %d (supported: 1, 2)", format.Channels)
	}
	return &PCMDecoder{r: r, format: format}, nil
}

// SampleRate returns the stream rate
func (d *PCMDecoder) SampleRate() int {
	return d.format.SampleRate
}

// Read fills dst with stereo samples, duplicating mono input
func (d *PCMDecoder) Read(dst []int16) (int, error) {
	frames := len(dst) / audio.Channels
	if frames == 0 {
		return 0, nil
	}
	frameBytes := d.format.Channels * audio.BytesPerSample
	need := frames * frameBytes
	if cap(d.buf) < need {
		grown := make([]byte, need)
		copy(grown, d.buf[:d.leftover])
		d.buf = grown
	}
	buf := d.buf[:need]

	n, err := io.ReadAtLeast(d.r, buf[d.leftover:], frameBytes-d.leftover)
	n += d.leftover
	whole := n - n%frameBytes

	var samples int
	if d.format.Channels == 1 {
		if cap(d.mono) < frames {
			d.mono = make([]int16, frames)
		}
		count := audio.Int16FromLE(d.mono[:frames], buf[:whole])
		audio.MonoToStereo(dst, d.mono[:count])
		samples = count * audio.Channels
	} else {
		samples = audio.Int16FromLE(dst, buf[:whole])
	}

	// Keep a trailing partial frame for the next call
	d.leftover = copy(buf, buf[whole:n])

	switch {
	case err == nil:
		return samples, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if samples > 0 {
			return samples, nil
		}
		return 0, io.EOF
	default:
		return samples, fmt.Errorf("pcm read error: %w", err)
	}
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
