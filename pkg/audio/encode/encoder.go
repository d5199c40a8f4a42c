// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for stereo int16 sinks and an extension-based file opener
package encode

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Encoder writes interleaved stereo int16 samples
type Encoder interface {
	// Write encodes whole stereo frames
	Write(samples []int16) error

	// Close flushes the encoder. It does not close the underlying writer.
	Close() error
}

// Create makes a file at path and picks the encoder by extension: .wav,
// or raw stereo s16le for .raw / .pcm
func Create(path string, sampleRate int) (Encoder, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".wav" && ext != ".raw" && ext != ".pcm" {
		return nil, fmt.Errorf("unsupported output file type: %q", ext)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	var e Encoder
	if ext == ".wav" {
		e, err = NewWAV(f, sampleRate)
	} else {
		e = NewPCM(f)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileEncoder{Encoder: e, file: f}, nil
}

type fileEncoder struct {
	Encoder
	file io.Closer
}

func (f *fileEncoder) Close() error {
	err := f.Encoder.Close()
	if cerr := f.file.Close(); err == nil {
		err = cerr
	}
	return err
}
