// ABOUTME: Fixed-point wall-clock pacer for the emulation loop
// ABOUTME: Sleeps or spins so emulated cycles track real time at an integer speed factor
package sync

import (
	"math"
	"math/bits"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// fixedShift is the number of fractional bits in throttle time values
	fixedShift = 16

	nanosPerSecond = uint64(time.Second)

	// SpinThreshold is the remaining wait below which the throttle spins
	// instead of sleeping
	SpinThreshold = time.Millisecond

	// DefaultMaxCarry bounds the carried timing error in either direction
	DefaultMaxCarry = 20 * time.Millisecond
)

// Clock is a monotonic time source
type Clock interface {
	// Now returns monotonic nanoseconds
	Now() int64
	Sleep(d time.Duration)
}

type systemClock struct {
	start time.Time
}

func (c systemClock) Now() int64          { return int64(time.Since(c.start)) }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock returns the process monotonic clock
func SystemClock() Clock {
	return systemClock{start: time.Now()}
}

var timerOnce sync.Once

// Throttle paces a single emulation goroutine. Resync may be called from
// any goroutine; everything else belongs to the emulation goroutine.
type Throttle struct {
	clock    Clock
	last     int64 // ns timestamp of the previous return
	carry    int64 // fixed-point ns; positive means we are ahead of schedule
	maxCarry int64
	speed    uint32
	primed   bool
	resync   atomic.Bool

	calls   uint64
	sleeps  uint64
	spins   uint64
	resyncs uint64
}

// Stats reports throttle activity
type Stats struct {
	Calls   uint64
	Sleeps  uint64
	Spins   uint64
	Resyncs uint64
	Carry   time.Duration
}

// NewThrottle creates a throttle on clock. A nil clock uses SystemClock.
func NewThrottle(clock Clock) *Throttle {
	if clock == nil {
		timerOnce.Do(raiseTimerResolution)
		clock = SystemClock()
	}
	return &Throttle{
		clock:    clock,
		maxCarry: int64(DefaultMaxCarry) << fixedShift,
	}
}

// SetMaxCarry changes the carried error bound
func (t *Throttle) SetMaxCarry(d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.maxCarry = int64(d) << fixedShift
}

// Resync makes the next Throttle call drop the carried error and rebase
// on the current time. Call it on pause, unpause or after a stall.
func (t *Throttle) Resync() {
	t.resync.Store(true)
}

// Throttle blocks until the wall-clock time for cyclesRan cycles at
// cpuFrequency, divided by speedFactor, has passed since the previous call.
func (t *Throttle) Throttle(cyclesRan uint32, speedFactor uint32, cpuFrequency uint64) {
	if speedFactor == 0 {
		speedFactor = 1
	}
	t.calls++

	now := t.clock.Now()
	requested := t.resync.Swap(false)
	if !t.primed || speedFactor != t.speed || requested {
		if t.primed {
			t.resyncs++
		}
		t.primed = true
		t.speed = speedFactor
		t.carry = 0
		t.last = now
	}

	owed := timeOwed(cyclesRan, speedFactor, cpuFrequency)
	credit := t.carry + (now-t.last)<<fixedShift

	for credit < owed {
		remaining := time.Duration((owed - credit) >> fixedShift)
		if remaining < SpinThreshold {
			t.spins++
			runtime.Gosched()
		} else {
			t.sleeps++
			t.clock.Sleep(remaining - SpinThreshold)
		}
		now = t.clock.Now()
		credit = t.carry + (now-t.last)<<fixedShift
	}

	t.carry = clampCarry(credit-owed, t.maxCarry)
	t.last = now
}

// Stats returns a snapshot of throttle counters
func (t *Throttle) Stats() Stats {
	return Stats{
		Calls:   t.calls,
		Sleeps:  t.sleeps,
		Spins:   t.spins,
		Resyncs: t.resyncs,
		Carry:   time.Duration(t.carry >> fixedShift),
	}
}

// timeOwed returns cycles/frequency/speed seconds as fixed-point nanoseconds
func timeOwed(cycles uint32, speed uint32, cpuFrequency uint64) int64 {
	if cpuFrequency == 0 {
		return 0
	}
	hi, lo := bits.Mul64(nanosPerSecond<<fixedShift, uint64(cycles))

	overflow, divisor := bits.Mul64(cpuFrequency, uint64(speed))
	if overflow != 0 {
		// Divisor wider than 64 bits: under a nanosecond per call
		return 0
	}
	if hi >= divisor {
		return math.MaxInt64
	}

	q, _ := bits.Div64(hi, lo, divisor)
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

func clampCarry(v, limit int64) int64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
