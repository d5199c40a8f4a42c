// ABOUTME: Tests for the emulation throttle
// ABOUTME: Uses a fake clock for drift bounds and the real clock for a short smoke test
package sync

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cpuHz       = 4194304
	frameCycles = 70224
)

// fakeClock advances a little on every read so spin loops terminate, and
// oversleeps by a random amount up to jitter
type fakeClock struct {
	now    int64
	step   int64
	jitter int64
	rng    *rand.Rand
	slept  time.Duration
}

func newFakeClock(jitter time.Duration) *fakeClock {
	return &fakeClock{
		step:   int64(10 * time.Microsecond),
		jitter: int64(jitter),
		rng:    rand.New(rand.NewSource(7)),
	}
}

func (c *fakeClock) Now() int64 {
	c.now += c.step
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.slept += d
	c.now += int64(d)
	if c.jitter > 0 {
		c.now += c.rng.Int63n(c.jitter)
	}
}

func (c *fakeClock) advance(d time.Duration) {
	c.now += int64(d)
}

func frameDuration(speed uint32) time.Duration {
	return time.Duration(uint64(frameCycles) * uint64(time.Second) / cpuHz / uint64(speed))
}

func TestTimeOwed(t *testing.T) {
	tests := []struct {
		name   string
		cycles uint32
		speed  uint32
		freq   uint64
		want   int64
	}{
		{"one second", cpuHz, 1, cpuHz, int64(time.Second) << fixedShift},
		{"quarter at 4x", cpuHz, 4, cpuHz, int64(time.Second) << fixedShift / 4},
		{"no frequency", 100, 1, 0, 0},
		{"saturates", math.MaxUint32, 1, 1, math.MaxInt64},
		{"zero cycles", 0, 1, cpuHz, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, timeOwed(tt.cycles, tt.speed, tt.freq))
		})
	}
}

func TestTimeOwedKeepsFraction(t *testing.T) {
	owed := timeOwed(frameCycles, 1, cpuHz)
	exact := float64(frameCycles) * 1e9 / cpuHz * (1 << fixedShift)
	assert.InDelta(t, exact, float64(owed), 1)
}

func TestDriftBoundedOverManyCalls(t *testing.T) {
	clock := newFakeClock(3 * time.Millisecond)
	th := NewThrottle(clock)

	const calls = 10000
	var start int64
	for i := 0; i < calls; i++ {
		clock.advance(2 * time.Millisecond)
		if i == 0 {
			// The first call rebases onto the clock
			start = clock.now + clock.step
		}
		th.Throttle(frameCycles, 1, cpuHz)
	}

	expected := float64(calls) * float64(frameCycles) * 1e9 / cpuHz
	// The last frame's work is not yet paced, so measure to the last return
	elapsed := float64(clock.now - start)
	drift := math.Abs(elapsed - expected)

	bound := float64(DefaultMaxCarry) + float64(frameDuration(1))
	if drift > bound {
		t.Fatalf("drift %.3fms exceeds bound %.3fms", drift/1e6, bound/1e6)
	}

	stats := th.Stats()
	assert.Equal(t, uint64(calls), stats.Calls)
	assert.Greater(t, stats.Sleeps, uint64(0))
	assert.Equal(t, uint64(0), stats.Resyncs)
	assert.LessOrEqual(t, stats.Carry, DefaultMaxCarry)
}

func TestAheadOfScheduleSkipsSleep(t *testing.T) {
	clock := newFakeClock(0)
	th := NewThrottle(clock)
	th.Throttle(frameCycles, 1, cpuHz)
	slept := th.Stats().Sleeps

	// Frames that take longer than real time never sleep
	for i := 0; i < 5; i++ {
		clock.advance(30 * time.Millisecond)
		th.Throttle(frameCycles, 1, cpuHz)
	}
	assert.Equal(t, slept, th.Stats().Sleeps)
	assert.Equal(t, DefaultMaxCarry, th.Stats().Carry, "carry clamps after a stall")

	// The clamped credit covers one fast frame, not dozens
	th.Throttle(frameCycles, 1, cpuHz)
	assert.Equal(t, slept, th.Stats().Sleeps)
	th.Throttle(frameCycles, 1, cpuHz)
	assert.Greater(t, th.Stats().Sleeps, slept)
}

func TestResyncDropsCarry(t *testing.T) {
	clock := newFakeClock(0)
	th := NewThrottle(clock)
	th.Throttle(frameCycles, 1, cpuHz)

	clock.advance(time.Second)
	th.Throttle(frameCycles, 1, cpuHz)
	require.Equal(t, DefaultMaxCarry, th.Stats().Carry)

	th.Resync()
	before := clock.now
	th.Throttle(frameCycles, 1, cpuHz)

	elapsed := time.Duration(clock.now - before)
	assert.GreaterOrEqual(t, elapsed, frameDuration(1))
	assert.Less(t, elapsed, frameDuration(1)+time.Millisecond)
	assert.Equal(t, uint64(1), th.Stats().Resyncs)
}

func TestSpeedChangeResyncs(t *testing.T) {
	clock := newFakeClock(0)
	th := NewThrottle(clock)
	th.Throttle(frameCycles, 1, cpuHz)

	before := clock.now
	th.Throttle(frameCycles, 2, cpuHz)
	elapsed := time.Duration(clock.now - before)

	assert.GreaterOrEqual(t, elapsed, frameDuration(2))
	assert.Less(t, elapsed, frameDuration(2)+time.Millisecond)
	assert.Equal(t, uint64(1), th.Stats().Resyncs)
}

func TestZeroSpeedTreatedAsOne(t *testing.T) {
	clock := newFakeClock(0)
	th := NewThrottle(clock)

	before := clock.now
	th.Throttle(frameCycles, 0, cpuHz)
	assert.GreaterOrEqual(t, time.Duration(clock.now-before), frameDuration(1))
}

func TestSleepsLeaveSpinTail(t *testing.T) {
	clock := newFakeClock(0)
	th := NewThrottle(clock)
	th.Throttle(frameCycles, 1, cpuHz)

	// Without oversleep every wait ends with a sub-millisecond spin
	stats := th.Stats()
	assert.Equal(t, uint64(1), stats.Sleeps)
	assert.Greater(t, stats.Spins, uint64(0))
	assert.Less(t, clock.slept, frameDuration(1))
}

func TestRealClockPacing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping wall-clock test in short mode")
	}

	th := NewThrottle(nil)
	const frames = 30
	start := time.Now()
	for i := 0; i < frames; i++ {
		th.Throttle(frameCycles, 4, cpuHz)
	}
	elapsed := time.Since(start)

	expected := frames * frameDuration(4)
	assert.GreaterOrEqual(t, elapsed, expected-frameDuration(4))
	assert.Less(t, elapsed, expected+50*time.Millisecond)
}
