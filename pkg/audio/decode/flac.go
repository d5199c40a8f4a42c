// ABOUTME: FLAC audio decoder
// ABOUTME: Decodes FLAC streams of any bit depth to stereo int16 samples
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/harperreed/emusync/pkg/audio"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
)

// FLACDecoder decodes FLAC audio
type FLACDecoder struct {
	stream   *flac.Stream
	rate     int
	channels int
	bitDepth int

	// decoded stereo samples of the current block not yet handed out
	pending []int16
	block   []int16
}

// NewFLAC creates a FLAC decoder reading from r. Files with more than
// two channels play their first two.
func NewFLAC(r io.Reader) (*FLACDecoder, error) {
	// Hide any Closer so the stream never closes a file the caller owns
	stream, err := flac.New(struct{ io.Reader }{r})
	if err != nil {
		return nil, fmt.Errorf("failed to decode flac: %w", err)
	}

	info := stream.Info
	if info.NChannels < 1 {
		return nil, fmt.Errorf("flac stream has no channels")
	}
	bitDepth := int(info.BitsPerSample)
	if bitDepth < 4 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}

	return &FLACDecoder{
		stream:   stream,
		rate:     int(info.SampleRate),
		channels: int(info.NChannels),
		bitDepth: bitDepth,
	}, nil
}

// SampleRate returns the stream rate
func (d *FLACDecoder) SampleRate() int {
	return d.rate
}

// Read converts FLAC blocks to stereo int16, carrying the rest of a
// block over to the next call
func (d *FLACDecoder) Read(dst []int16) (int, error) {
	want := len(dst) - len(dst)%audio.Channels
	n := 0
	for n < want {
		if len(d.pending) == 0 {
			f, err := d.stream.ParseNext()
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if n > 0 {
					return n, nil
				}
				return 0, io.EOF
			}
			if err != nil {
				return n, fmt.Errorf("flac decode error: %w", err)
			}
			d.decodeBlock(f)
			continue
		}
		c := copy(dst[n:want], d.pending)
		d.pending = d.pending[c:]
		n += c
	}
	return n, nil
}

func (d *FLACDecoder) decodeBlock(f *frame.Frame) {
	frames := int(f.BlockSize)
	if cap(d.block) < frames*audio.Channels {
		d.block = make([]int16, frames*audio.Channels)
	}
	d.block = d.block[:frames*audio.Channels]

	left := f.Subframes[0].Samples
	right := left
	if len(f.Subframes) > 1 {
		right = f.Subframes[1].Samples
	}
	for i := 0; i < frames; i++ {
		d.block[i*2] = d.to16(left[i])
		d.block[i*2+1] = d.to16(right[i])
	}
	d.pending = d.block
}

// to16 rescales one signed sample from the stream's bit depth
func (d *FLACDecoder) to16(v int32) int16 {
	if d.bitDepth >= 16 {
		return int16(v >> (d.bitDepth - 16))
	}
	return int16(v << (16 - d.bitDepth))
}

// Close releases decoder resources
func (d *FLACDecoder) Close() error {
	return d.stream.Close()
}
