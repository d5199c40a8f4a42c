// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes MP3 streams to stereo int16 samples
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/harperreed/emusync/pkg/audio"
)

// MP3Decoder decodes MP3 audio
type MP3Decoder struct {
	decoder *mp3.Decoder
	buf     []byte
}

// NewMP3 creates a new MP3 decoder reading from r
func NewMP3(r io.Reader) (*MP3Decoder, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}
	return &MP3Decoder{decoder: decoder}, nil
}

// SampleRate returns the stream rate
func (d *MP3Decoder) SampleRate() int {
	return d.decoder.SampleRate()
}

// Read converts decoded MP3 bytes (always 16-bit stereo) to samples
func (d *MP3Decoder) Read(dst []int16) (int, error) {
	frames := len(dst) / audio.Channels
	need := frames * audio.BytesPerFrame
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	buf := d.buf[:need]

	n, err := io.ReadFull(d.decoder, buf)
	n -= n % audio.BytesPerFrame
	samples := audio.Int16FromLE(dst, buf[:n])

	switch {
	case err == nil:
		return samples, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if samples > 0 {
			return samples, nil
		}
		return 0, io.EOF
	default:
		return samples, fmt.Errorf("mp3 decode error: %w", err)
	}
}

// Close releases decoder resources
func (d *MP3Decoder) Close() error {
	return nil
}
