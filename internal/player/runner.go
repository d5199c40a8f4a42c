// ABOUTME: Emulation driver loop
// ABOUTME: Steps the core, dispatches its audio and paces each frame to real time
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/harperreed/emusync/internal/emucore"
)

// pausePoll is how often a paused runner checks for resume or shutdown
const pausePoll = 10 * time.Millisecond

// AudioSink receives each frame's audio
type AudioSink interface {
	DispatchAudio(pcm []int16, fastForwarding bool)
}

// Pacer paces the loop against the wall clock
type Pacer interface {
	Throttle(cyclesRan uint32, speedFactor uint32, cpuFrequency uint64)
	Resync()
}

// Runner drives a core on the emulation goroutine
type Runner struct {
	core  emucore.Core
	sink  AudioSink
	pacer Pacer

	speed  atomic.Uint32
	paused atomic.Bool

	frames atomic.Uint64
	cycles atomic.Uint64
}

// RunnerStats tracks driver loop metrics
type RunnerStats struct {
	Frames uint64
	Cycles uint64
	Speed  uint32
	Paused bool
}

// NewRunner creates a runner at 1x speed
func NewRunner(core emucore.Core, sink AudioSink, pacer Pacer) *Runner {
	r := &Runner{core: core, sink: sink, pacer: pacer}
	r.speed.Store(1)
	return r
}

// SetSpeed sets the integer speed multiplier. Above 1x the ring buffer is
// allowed to overflow instead of resyncing.
func (r *Runner) SetSpeed(speed uint32) {
	if speed == 0 {
		speed = 1
	}
	if old := r.speed.Swap(speed); old != speed {
		log.Printf("Emulation speed %dx", speed)
	}
}

// Speed returns the speed multiplier
func (r *Runner) Speed() uint32 {
	return r.speed.Load()
}

// SetPaused pauses or resumes emulation
func (r *Runner) SetPaused(paused bool) {
	r.paused.Store(paused)
}

// Paused reports whether emulation is paused
func (r *Runner) Paused() bool {
	return r.paused.Load()
}

// Stats returns runner statistics
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		Frames: r.frames.Load(),
		Cycles: r.cycles.Load(),
		Speed:  r.speed.Load(),
		Paused: r.paused.Load(),
	}
}

// Run steps the core until ctx is done or the core ends. Shutdown is
// noticed between frames, so it takes at most one throttle quantum.
// A core that reaches io.EOF ends the run without error.
func (r *Runner) Run(ctx context.Context) error {
	freq := r.core.CPUFrequency()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if r.paused.Load() {
			if !r.waitWhilePaused(ctx) {
				return nil
			}
			// Do not try to catch up on the time spent paused
			r.pacer.Resync()
		}

		frame, err := r.core.Step()
		if errors.Is(err, io.EOF) {
			log.Printf("Core finished after %d frames", r.frames.Load())
			return nil
		}
		if err != nil {
			return fmt.Errorf("core step failed: %w", err)
		}

		speed := r.speed.Load()
		r.sink.DispatchAudio(frame.Samples, speed > 1)
		r.pacer.Throttle(frame.Cycles, speed, freq)

		r.frames.Add(1)
		r.cycles.Add(uint64(frame.Cycles))
	}
}

func (r *Runner) waitWhilePaused(ctx context.Context) bool {
	ticker := time.NewTicker(pausePoll)
	defer ticker.Stop()

	for r.paused.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}
