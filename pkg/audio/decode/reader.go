// ABOUTME: PCM source interface definition
// ABOUTME: Common interface for decoded stereo int16 streams and a format-sniffing opener
package decode

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/harperreed/emusync/pkg/audio"
)

// Reader yields interleaved stereo int16 samples at a fixed rate
type Reader interface {
	// SampleRate returns the stream rate in Hz
	SampleRate() int

	// Read fills dst with interleaved stereo samples and returns how many
	// samples were written, always a whole number of frames. It returns
	// io.EOF once the stream is exhausted.
	Read(dst []int16) (int, error)

	// Close releases decoder resources
	Close() error
}

// DefaultRawRate is assumed for headerless .raw / .pcm files
const DefaultRawRate = 44100

// Open decodes a file chosen by extension: .mp3, .wav, .flac, .opus, or raw
// stereo s16le (.raw, .pcm) at DefaultRawRate.
func Open(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}

	var r Reader
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		r, err = NewMP3(f)
	case ".wav":
		r, err = NewWAV(f)
	case ".flac":
		r, err = NewFLAC(f)
	case ".opus":
		r, err = NewOpus(f)
	case ".raw", ".pcm":
		r, err = NewPCM(f, audio.Format{SampleRate: DefaultRawRate, Channels: audio.Channels})
	default:
		err = fmt.Errorf("unsupported audio file type: %q", ext)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileReader{Reader: r, file: f}, nil
}

type fileReader struct {
	Reader
	file io.Closer
}

func (f *fileReader) Close() error {
	err := f.Reader.Close()
	if cerr := f.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadAll drains r into a single interleaved stereo slice
func ReadAll(r Reader) ([]int16, error) {
	var (
		out []int16
		buf = make([]int16, 4096)
	)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}
