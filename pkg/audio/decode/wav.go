// ABOUTME: WAV audio decoder
// ABOUTME: Decodes 8/16/24/32-bit PCM WAV files to stereo int16 samples
package decode

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/harperreed/emusync/pkg/audio"
)

// WAVDecoder decodes PCM WAV files
type WAVDecoder struct {
	decoder  *wav.Decoder
	channels int
	bitDepth int
	rate     int
	buf      *goaudio.IntBuffer
}

// NewWAV creates a WAV decoder. Files with more than two channels play
// their first two.
func NewWAV(rs io.ReadSeeker) (*WAVDecoder, error) {
	decoder := wav.NewDecoder(rs)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file")
	}

	format := decoder.Format()
	if format == nil || format.NumChannels < 1 {
		return nil, fmt.Errorf("wav file has no audio format")
	}

	bitDepth := int(decoder.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", bitDepth)
	}

	return &WAVDecoder{
		decoder:  decoder,
		channels: format.NumChannels,
		bitDepth: bitDepth,
		rate:     format.SampleRate,
		buf: &goaudio.IntBuffer{
			Format:         format,
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// SampleRate returns the stream rate
func (d *WAVDecoder) SampleRate() int {
	return d.rate
}

// Read converts WAV frames to stereo int16
func (d *WAVDecoder) Read(dst []int16) (int, error) {
	frames := len(dst) / audio.Channels
	need := frames * d.channels
	if cap(d.buf.Data) < need {
		d.buf.Data = make([]int, need)
	}
	d.buf.Data = d.buf.Data[:need]

	n, err := d.decoder.PCMBuffer(d.buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("wav decode error: %w", err)
	}
	got := n / d.channels
	if got == 0 {
		return 0, io.EOF
	}

	for i := 0; i < got; i++ {
		frame := d.buf.Data[i*d.channels:]
		left := d.to16(frame[0])
		right := left
		if d.channels > 1 {
			right = d.to16(frame[1])
		}
		dst[i*2] = left
		dst[i*2+1] = right
	}
	return got * audio.Channels, nil
}

// to16 rescales one sample from the file's bit depth
func (d *WAVDecoder) to16(v int) int16 {
	switch d.bitDepth {
	case 8:
		// 8-bit WAV is unsigned
		return int16((v - 128) << 8)
	case 16:
		return int16(v)
	default:
		return int16(v >> (d.bitDepth - 16))
	}
}

// Close releases decoder resources
func (d *WAVDecoder) Close() error {
	return nil
}
