// ABOUTME: WAV encoder
// ABOUTME: Writes stereo 16-bit PCM WAV files through go-audio/wav
package encode

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/harperreed/emusync/pkg/audio"
)

// wavFormatPCM is the WAVE_FORMAT_PCM format tag
const wavFormatPCM = 1

// WAVEncoder writes 16-bit stereo WAV
type WAVEncoder struct {
	enc *wav.Encoder
	buf *goaudio.IntBuffer
}

// NewWAV creates a WAV encoder on ws. The header is finalised by Close.
func NewWAV(ws io.WriteSeeker, sampleRate int) (*WAVEncoder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	return &WAVEncoder{
		enc: wav.NewEncoder(ws, sampleRate, 16, audio.Channels, wavFormatPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: audio.Channels, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

// Write appends samples to the data chunk
func (e *WAVEncoder) Write(samples []int16) error {
	if len(samples)%audio.Channels != 0 {
		return fmt.Errorf("partial frame: %d samples", len(samples))
	}
	if cap(e.buf.Data) < len(samples) {
		e.buf.Data = make([]int, len(samples))
	}
	e.buf.Data = e.buf.Data[:len(samples)]
	for i, s := range samples {
		e.buf.Data[i] = int(s)
	}
	if err := e.enc.Write(e.buf); err != nil {
		return fmt.Errorf("wav write failed: %w", err)
	}
	return nil
}

// Close writes the final chunk sizes
func (e *WAVEncoder) Close() error {
	if err := e.enc.Close(); err != nil {
		return fmt.Errorf("wav finalise failed: %w", err)
	}
	return nil
}
