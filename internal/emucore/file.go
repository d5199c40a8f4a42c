// ABOUTME: File-backed test core that plays decoded audio as emulator output
// ABOUTME: Steps one sixtieth of a second per frame, optionally looping
package emucore

import (
	"errors"
	"fmt"
	"io"

	"github.com/harperreed/emusync/pkg/audio"
	"github.com/harperreed/emusync/pkg/audio/decode"
)

// FileFramesPerSecond is the video rate the file core pretends to run at
const FileFramesPerSecond = 60

// FileCore plays a decoded audio file as if it were emulator output.
// Its CPU clock equals its sample rate, so one cycle is one sample.
type FileCore struct {
	open   func() (decode.Reader, error)
	reader decode.Reader
	rate   int
	loop   bool
	buf    []int16
}

// NewFileCore opens path with decode.Open
func NewFileCore(path string, loop bool) (*FileCore, error) {
	return NewFileCoreFrom(func() (decode.Reader, error) { return decode.Open(path) }, loop)
}

// NewFileCoreFrom creates a file core over readers produced by open.
// open is called again each time a looping core reaches the end.
func NewFileCoreFrom(open func() (decode.Reader, error), loop bool) (*FileCore, error) {
	r, err := open()
	if err != nil {
		return nil, err
	}
	rate := r.SampleRate()
	if rate < FileFramesPerSecond {
		r.Close()
		return nil, fmt.Errorf("sample rate %d too low", rate)
	}

	return &FileCore{
		open:   open,
		reader: r,
		rate:   rate,
		loop:   loop,
		buf:    make([]int16, rate/FileFramesPerSecond*audio.Channels),
	}, nil
}

// Step reads one frame of audio. A short final frame is zero padded; a
// non-looping core returns io.EOF after it.
func (c *FileCore) Step() (Frame, error) {
	filled := 0
	rewound := false
	for filled < len(c.buf) {
		n, err := c.reader.Read(c.buf[filled:])
		filled += n
		if n > 0 {
			rewound = false
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			return Frame{}, fmt.Errorf("audio source: %w", err)
		}
		// An empty source stays at EOF even after rewinding
		if !c.loop || rewound {
			if filled == 0 {
				return Frame{}, io.EOF
			}
			break
		}
		if err := c.rewind(); err != nil {
			return Frame{}, err
		}
		rewound = true
	}
	clear(c.buf[filled:])

	return Frame{Cycles: uint32(len(c.buf) / audio.Channels), Samples: c.buf}, nil
}

// rewind swaps in a fresh reader. The old one stays current until the
// new one opens, so a failed reopen leaves nothing closed twice.
func (c *FileCore) rewind() error {
	r, err := c.open()
	if err != nil {
		return fmt.Errorf("failed to reopen audio source: %w", err)
	}
	c.reader.Close()
	c.reader = r
	return nil
}

// SampleRate returns the file's sample rate
func (c *FileCore) SampleRate() int {
	return c.rate
}

// CPUFrequency equals the sample rate
func (c *FileCore) CPUFrequency() uint64 {
	return uint64(c.rate)
}

// Close closes the current reader
func (c *FileCore) Close() error {
	return c.reader.Close()
}
