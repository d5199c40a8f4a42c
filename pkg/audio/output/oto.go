// ABOUTME: Oto-based playback backend
// ABOUTME: Default device only; the player pulls PCM through an io.Reader
package output

import (
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/harperreed/emusync/pkg/audio"
)

const (
	// DefaultOtoSampleRate is used when the caller does not ask for a rate
	DefaultOtoSampleRate = 48000

	// DefaultOtoBufferMs is the oto driver buffer length
	DefaultOtoBufferMs = 20
)

// oto allows only one context per process, so it is shared by every Oto backend
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat oto.NewContextOptions
)

// Oto backend implementation using oto library
type Oto struct {
	sampleRate int
	bufferMs   int
}

// NewOto creates an oto backend. The first stream fixes the process-wide
// sample rate; later streams reuse it.
func NewOto(sampleRate, bufferMs int) *Oto {
	if sampleRate <= 0 {
		sampleRate = DefaultOtoSampleRate
	}
	if bufferMs <= 0 {
		bufferMs = DefaultOtoBufferMs
	}
	return &Oto{sampleRate: sampleRate, bufferMs: bufferMs}
}

// Name returns the backend name
func (o *Oto) Name() string {
	return "oto"
}

// Devices reports the single default route oto plays to
func (o *Oto) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{
		ID:         DefaultID,
		Name:       "System default",
		IsDefault:  true,
		SampleRate: o.rate(),
	}}, nil
}

func (o *Oto) rate() int {
	otoMu.Lock()
	defer otoMu.Unlock()
	if otoCtx != nil {
		return otoFormat.SampleRate
	}
	return o.sampleRate
}

func (o *Oto) context() (*oto.Context, oto.NewContextOptions, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if otoFormat.SampleRate != o.sampleRate {
			log.Printf("Warning: oto context already running at %dHz, ignoring requested %dHz",
				otoFormat.SampleRate, o.sampleRate)
		}
		return otoCtx, otoFormat, nil
	}

	op := oto.NewContextOptions{
		SampleRate:   o.sampleRate,
		ChannelCount: audio.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(o.bufferMs) * time.Millisecond,
	}

	ctx, readyChan, err := oto.NewContext(&op)
	if err != nil {
		return nil, op, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	otoCtx = ctx
	otoFormat = op
	return ctx, op, nil
}

// Open starts a player on the default route. dev is ignored beyond logging.
func (o *Oto) Open(dev DeviceInfo, pull PullFunc, onStop func()) (Stream, error) {
	ctx, op, err := o.context()
	if err != nil {
		return nil, err
	}
	if err := ctx.Resume(); err != nil {
		return nil, fmt.Errorf("failed to resume oto context: %w", err)
	}

	batch := op.SampleRate * o.bufferMs / 1000
	s := &otoStream{
		sampleRate: op.SampleRate,
		batchSize:  batch,
		pull:       pull,
		scratch:    make([]int16, batch*audio.Channels*4),
	}
	s.player = ctx.NewPlayer(s)
	s.player.Play()

	log.Printf("Audio output initialized: %dHz, %d channels (oto)", op.SampleRate, audio.Channels)
	return s, nil
}

// Close suspends the shared context. It cannot be destroyed, only paused.
func (o *Oto) Close() error {
	otoMu.Lock()
	defer otoMu.Unlock()
	if otoCtx != nil {
		if err := otoCtx.Suspend(); err != nil {
			return fmt.Errorf("failed to suspend oto context: %w", err)
		}
	}
	return nil
}

type otoStream struct {
	player     *oto.Player
	sampleRate int
	batchSize  int
	pull       PullFunc
	scratch    []int16
	closed     atomic.Bool
}

func (s *otoStream) SampleRate() int { return s.sampleRate }
func (s *otoStream) BatchSize() int  { return s.batchSize }

// Read is called by the oto player goroutine to fetch PCM bytes
func (s *otoStream) Read(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, io.EOF
	}

	n := len(p) / audio.BytesPerFrame * audio.Channels
	if n == 0 {
		return 0, nil
	}
	if len(s.scratch) < n {
		s.scratch = make([]int16, n)
	}
	samples := s.scratch[:n]
	s.pull(samples)
	return audio.PutInt16LE(p, samples), nil
}

func (s *otoStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.player.Close()
}
