// ABOUTME: Fixed-capacity circular buffer of interleaved stereo PCM
// ABOUTME: Absorbs jitter between the emulation writer and the device reader
package ring

import (
	"sync"

	"github.com/harperreed/emusync/pkg/audio"
)

// Buffer holds stereo int16 frames for one writer and one reader.
// One slot is always left empty so full and empty stay distinguishable:
// Used() + Avail() == Capacity() - 1.
type Buffer struct {
	mu sync.Mutex

	data     []int16
	capacity int
	read     int
	write    int

	allocations uint64
	dropped     uint64
	underruns   uint64
}

// New creates a buffer of capacity frames pre-filled with prefill frames of silence
func New(capacity, prefill int) *Buffer {
	b := &Buffer{}
	b.Reset(capacity, prefill)
	return b
}

// Reset reallocates the backing store and seeds it with prefill frames of
// silence so playback starts at the target latency.
func (b *Buffer) Reset(capacity, prefill int) {
	if capacity < 2 {
		capacity = 2
	}
	if prefill < 0 {
		prefill = 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = make([]int16, capacity*audio.Channels)
	b.allocations++
	b.capacity = capacity
	b.read = 0
	b.write = min(prefill, capacity-1)
}

// Write copies as many frames from samples as fit and returns the number of
// frames written. Frames beyond the free space are dropped.
func (b *Buffer) Write(samples []int16) int {
	frames := len(samples) / audio.Channels

	b.mu.Lock()
	defer b.mu.Unlock()

	free := b.avail()
	if frames > free {
		b.dropped += uint64(frames - free)
		frames = free
	}
	if frames == 0 {
		return 0
	}

	first := min(frames, b.capacity-b.write)
	copy(b.data[b.write*audio.Channels:], samples[:first*audio.Channels])
	if rest := frames - first; rest > 0 {
		copy(b.data, samples[first*audio.Channels:frames*audio.Channels])
	}

	b.write = (b.write + frames) % b.capacity
	return frames
}

// Read fills out with buffered frames and returns how many were real.
// Any shortfall is zero-filled.
func (b *Buffer) Read(out []int16) int {
	frames := len(out) / audio.Channels

	b.mu.Lock()
	defer b.mu.Unlock()

	n := min(frames, b.used())
	if n > 0 {
		first := min(n, b.capacity-b.read)
		copy(out, b.data[b.read*audio.Channels:(b.read+first)*audio.Channels])
		if rest := n - first; rest > 0 {
			copy(out[first*audio.Channels:], b.data[:rest*audio.Channels])
		}
		b.read = (b.read + n) % b.capacity
	}

	if n < frames {
		b.underruns += uint64(frames - n)
		clear(out[n*audio.Channels : frames*audio.Channels])
	}
	return n
}

// Used returns the number of frames waiting to be read
func (b *Buffer) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used()
}

// Avail returns the number of frames that can be written
func (b *Buffer) Avail() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.avail()
}

// Capacity returns the backing store size in frames
func (b *Buffer) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Allocations returns how many times the backing store has been allocated
func (b *Buffer) Allocations() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allocations
}

// Dropped returns the total frames discarded by Write on overflow
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Underruns returns the total frames zero-filled by Read
func (b *Buffer) Underruns() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.underruns
}

func (b *Buffer) used() int {
	if b.write >= b.read {
		return b.write - b.read
	}
	return b.capacity - b.read + b.write
}

func (b *Buffer) avail() int {
	return b.capacity - 1 - b.used()
}
