// ABOUTME: Band-limited delta resampler for emulator audio
// ABOUTME: Converts step events at the emulator clock into device-rate stereo PCM
package resample

import (
	"fmt"

	"github.com/harperreed/emusync/pkg/audio"
)

const (
	preShift = 32
	timeBits = preShift + 20
	timeUnit = uint64(1) << timeBits
	fracBits = timeBits - preShift

	phaseShift    = fracBits - phaseBits
	bassShift     = 9
	endFrameExtra = 2

	// bufExtra is the overhang past capacity that the kernel may write into
	bufExtra = halfWidth*2 + endFrameExtra

	// MaxCapacity keeps capacity*timeUnit inside 64 bits
	MaxCapacity = 4000

	// MaxRatio is the largest supported input/output rate ratio
	MaxRatio = 1 << 20
)

// Resampler accumulates delta events on two delay lines and integrates
// them into band-limited PCM at the output rate.
//
// offset is the fixed-point output position: its integer part (offset >>
// timeBits) is the number of samples ready to read, its fraction is the
// phase of the next input clock.
type Resampler struct {
	factor   uint64
	offset   uint64
	capacity int

	left  []int32
	right []int32

	integratorL int32
	integratorR int32
}

// New creates a resampler able to hold capacity output frames between reads
func New(capacity int) *Resampler {
	if capacity < 1 {
		capacity = 1
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}

	r := &Resampler{
		factor:   timeUnit / MaxRatio,
		capacity: capacity,
		left:     make([]int32, capacity+bufExtra),
		right:    make([]int32, capacity+bufExtra),
	}
	r.Clear()
	return r
}

// SetRates sets the input clock rate and output sample rate.
// Pending samples are kept; call Clear to discard them.
func (r *Resampler) SetRates(inputHz, outputHz float64) error {
	if inputHz <= 0 || outputHz <= 0 {
		return fmt.Errorf("invalid rates: input=%v output=%v", inputHz, outputHz)
	}
	if inputHz/outputHz > MaxRatio {
		return fmt.Errorf("rate ratio %v exceeds maximum %d", inputHz/outputHz, MaxRatio)
	}

	f := float64(timeUnit) * outputHz / inputHz
	factor := uint64(f)
	// Round up so the output never lags the input clock
	if float64(factor) < f {
		factor++
	}
	r.factor = factor
	return nil
}

// Clear discards all pending samples and recentres the kernel
func (r *Resampler) Clear() {
	r.offset = r.factor / 2
	r.integratorL = 0
	r.integratorR = 0
	clear(r.left)
	clear(r.right)
}

// Capacity returns the number of output frames the delay line holds
func (r *Resampler) Capacity() int {
	return r.capacity
}

// Factor returns the fixed-point output samples per input clock
func (r *Resampler) Factor() uint64 {
	return r.factor
}

// SamplesAvail returns the number of frames ready to read
func (r *Resampler) SamplesAvail() int {
	return int(r.offset >> timeBits)
}

// ClocksNeeded returns how many input clocks must be ended before
// SamplesAvail reaches samples
func (r *Resampler) ClocksNeeded(samples int) int {
	if samples > r.capacity {
		samples = r.capacity
	}
	needed := uint64(samples) * timeUnit
	if needed <= r.offset {
		return 0
	}
	return int((needed - r.offset + r.factor - 1) / r.factor)
}

// AddDelta adds a step of dLeft/dRight at input clock t of the current frame.
// t must map inside the delay line: SamplesAvail after EndFrame(t) stays
// below Capacity.
func (r *Resampler) AddDelta(t uint, dLeft, dRight int32) {
	if dLeft|dRight == 0 {
		return
	}

	fixed := (uint64(t)*r.factor + r.offset) >> preShift
	pos := int(fixed >> fracBits)
	phase := int(fixed>>phaseShift) & (phaseCount - 1)
	interp := int32(fixed >> (phaseShift - deltaBits) & (deltaUnit - 1))

	rows := kernelRows{
		in:      &kernel[phase],
		next:    &kernel[phase+1],
		rev:     &kernel[phaseCount-phase],
		revNext: &kernel[phaseCount-phase-1],
	}

	if dLeft != 0 {
		rows.convolve(r.left[pos:pos+2*halfWidth], dLeft, interp)
	}
	if dRight != 0 {
		rows.convolve(r.right[pos:pos+2*halfWidth], dRight, interp)
	}
}

// EndFrame ends the current frame of t input clocks, making the samples
// it produced available to ReadSamples
func (r *Resampler) EndFrame(t uint) {
	r.offset += uint64(t) * r.factor
}

// ReadSamples writes up to len(out)/2 interleaved stereo frames into out at
// the given volume (0-100) and returns the number of frames written.
func (r *Resampler) ReadSamples(out []int16, volume int) int {
	count := len(out) / audio.Channels
	if avail := r.SamplesAvail(); count > avail {
		count = avail
	}
	if count == 0 {
		return 0
	}

	gain := volumeTable[clampVolume(volume)]
	r.integratorL = integrate(out, r.left[:count], r.integratorL, gain)
	r.integratorR = integrate(out[1:], r.right[:count], r.integratorR, gain)
	r.removeSamples(count)

	return count
}

// removeSamples shifts the delay lines left by count and zeroes the tail
func (r *Resampler) removeSamples(count int) {
	remain := r.SamplesAvail() + bufExtra - count
	r.offset -= uint64(count) * timeUnit

	for _, buf := range [2][]int32{r.left, r.right} {
		copy(buf, buf[count:count+remain])
		clear(buf[remain : remain+count])
	}
}

type kernelRows struct {
	in, next, rev, revNext *[halfWidth]int16
}

// convolve spreads one delta over 16 taps, blending the two nearest phases
func (k kernelRows) convolve(out []int32, delta, interp int32) {
	delta2 := int32((int64(delta) * int64(interp)) >> deltaBits)
	delta -= delta2

	for i := 0; i < halfWidth; i++ {
		out[i] += int32(k.in[i])*delta + int32(k.next[i])*delta2
	}
	for i := 0; i < halfWidth; i++ {
		j := halfWidth - 1 - i
		out[halfWidth+i] += int32(k.rev[j])*delta + int32(k.revNext[j])*delta2
	}
}

// integrate runs one channel through the leaky integrator into every other
// slot of out and returns the updated integrator
func integrate(out []int16, in []int32, sum int32, gain int32) int32 {
	for i, v := range in {
		s := audio.Clamp16(sum >> deltaBits)
		sum += v
		sum -= int32(s) << (deltaBits - bassShift)

		switch gain {
		case unityGain:
			out[i*audio.Channels] = s
		case 0:
			out[i*audio.Channels] = 0
		default:
			out[i*audio.Channels] = int16((int32(s) * gain) >> volumeShift)
		}
	}
	return sum
}
