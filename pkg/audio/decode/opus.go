// ABOUTME: Ogg Opus audio decoder
// ABOUTME: Decodes Ogg Opus files via libopusfile to 48kHz stereo int16 samples
package decode

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/harperreed/emusync/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// OpusRate is the only rate libopusfile decodes to
const OpusRate = 48000

// opusStream is the part of *opus.Stream the decoder uses
type opusStream interface {
	Read(pcm []int16) (int, error)
	Close() error
}

// OpusDecoder decodes Ogg Opus audio
type OpusDecoder struct {
	stream   opusStream
	channels int
	buf      []int16
}

// NewOpus creates an Ogg Opus decoder reading from r. Streams with more
// than two channels play their first two.
func NewOpus(r io.Reader) (*OpusDecoder, error) {
	br := bufio.NewReaderSize(r, 4096)
	channels, err := opusChannels(br)
	if err != nil {
		return nil, err
	}

	// Hide any Closer so the stream never closes a file the caller owns
	stream, err := opus.NewStream(struct{ io.Reader }{br})
	if err != nil {
		return nil, fmt.Errorf("failed to create opus stream: %w", err)
	}
	return newOpusDecoder(stream, channels), nil
}

func newOpusDecoder(stream opusStream, channels int) *OpusDecoder {
	return &OpusDecoder{stream: stream, channels: channels}
}

const (
	oggHeaderSize = 27
	opusHeadSize  = 19
)

// opusChannels reads the channel count from the OpusHead packet on the
// first Ogg page without consuming it
func opusChannels(br *bufio.Reader) (int, error) {
	hdr, err := br.Peek(oggHeaderSize)
	if err != nil || !bytes.Equal(hdr[:4], []byte("OggS")) {
		return 0, fmt.Errorf("not an ogg stream")
	}
	start := oggHeaderSize + int(hdr[26])
	page, err := br.Peek(start + opusHeadSize)
	if err != nil {
		return 0, fmt.Errorf("truncated ogg page: %w", err)
	}
	head := page[start:]
	if !bytes.Equal(head[:8], []byte("OpusHead")) {
		return 0, fmt.Errorf("ogg stream does not carry opus")
	}
	channels := int(head[9])
	if channels < 1 {
		return 0, fmt.Errorf("opus stream has no channels")
	}
	return channels, nil
}

// SampleRate returns OpusRate
func (d *OpusDecoder) SampleRate() int {
	return OpusRate
}

// Read decodes into dst, narrowing the stream's channels to stereo
func (d *OpusDecoder) Read(dst []int16) (int, error) {
	frames := len(dst) / audio.Channels
	if frames == 0 {
		return 0, nil
	}
	if d.channels == audio.Channels {
		return d.finish(d.stream.Read(dst[:frames*audio.Channels]))
	}

	need := frames * d.channels
	if cap(d.buf) < need {
		d.buf = make([]int16, need)
	}
	got, err := d.stream.Read(d.buf[:need])
	if d.channels == 1 {
		audio.MonoToStereo(dst, d.buf[:got])
	} else {
		for i := 0; i < got; i++ {
			dst[i*2] = d.buf[i*d.channels]
			dst[i*2+1] = d.buf[i*d.channels+1]
		}
	}
	return d.finish(got, err)
}

// finish maps a per-channel sample count to stereo samples written
func (d *OpusDecoder) finish(got int, err error) (int, error) {
	switch {
	case err == nil:
		return got * audio.Channels, nil
	case errors.Is(err, io.EOF):
		if got > 0 {
			return got * audio.Channels, nil
		}
		return 0, io.EOF
	default:
		return got * audio.Channels, fmt.Errorf("opus decode error: %w", err)
	}
}

// Close releases the libopusfile handle
func (d *OpusDecoder) Close() error {
	return d.stream.Close()
}
