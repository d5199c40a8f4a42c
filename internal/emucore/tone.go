// ABOUTME: Square-wave test core with handheld console timing
// ABOUTME: Produces two pulse channels at the 2 MHz APU rate, 70224 cycles per frame
package emucore

import (
	"fmt"

	"github.com/harperreed/emusync/pkg/audio"
)

const (
	// ToneCPUFrequency is the handheld's CPU clock
	ToneCPUFrequency = 4194304

	// ToneSampleRate is the APU output clock, one sample every two CPU cycles
	ToneSampleRate = ToneCPUFrequency / 2

	// ToneCyclesPerFrame is one 59.7 Hz video frame
	ToneCyclesPerFrame = 70224

	samplesPerFrame = ToneCyclesPerFrame * ToneSampleRate / ToneCPUFrequency

	DefaultToneHz        = 440
	DefaultToneAmplitude = 6000
)

// pulse is a 50% duty square wave counted in APU samples.
// The phase is kept as a fraction of 2*ToneSampleRate so any Hz divides exactly.
type pulse struct {
	hz    int
	phase int
	high  bool
}

func (p *pulse) next() bool {
	p.phase += 2 * p.hz
	if p.phase >= ToneSampleRate {
		p.phase -= ToneSampleRate
		p.high = !p.high
	}
	return p.high
}

// ToneCore plays a tone on the left pulse channel and a fifth above on
// the right, with the timing of a handheld console APU.
type ToneCore struct {
	left      pulse
	right     pulse
	amplitude int16
	muted     bool
	frames    uint64
	buf       []int16
}

// NewToneCore creates a tone core at hz with the given amplitude
func NewToneCore(hz int, amplitude int) (*ToneCore, error) {
	c := &ToneCore{buf: make([]int16, samplesPerFrame*audio.Channels)}
	if err := c.SetTone(hz); err != nil {
		return nil, err
	}
	if amplitude < 0 || amplitude > audio.MaxInt16 {
		return nil, fmt.Errorf("amplitude %d out of range 0-%d", amplitude, audio.MaxInt16)
	}
	c.amplitude = int16(amplitude)
	return c, nil
}

// SetTone retunes both channels
func (c *ToneCore) SetTone(hz int) error {
	// Each half period must last at least one sample
	if hz <= 0 || 3*hz/2 > ToneSampleRate/2 {
		return fmt.Errorf("tone frequency %d out of range", hz)
	}
	c.left.hz = hz
	c.right.hz = hz * 3 / 2
	return nil
}

// Tone returns the left channel frequency
func (c *ToneCore) Tone() int {
	return c.left.hz
}

// SetMuted silences both channels while the core keeps running
func (c *ToneCore) SetMuted(muted bool) {
	c.muted = muted
}

// Frames returns the number of frames stepped
func (c *ToneCore) Frames() uint64 {
	return c.frames
}

// Step renders one frame of APU output
func (c *ToneCore) Step() (Frame, error) {
	for i := 0; i < samplesPerFrame; i++ {
		c.buf[i*2] = c.level(c.left.next())
		c.buf[i*2+1] = c.level(c.right.next())
	}
	c.frames++
	return Frame{Cycles: ToneCyclesPerFrame, Samples: c.buf}, nil
}

func (c *ToneCore) level(high bool) int16 {
	switch {
	case c.muted:
		return 0
	case high:
		return c.amplitude
	default:
		return -c.amplitude
	}
}

// SampleRate returns the APU clock
func (c *ToneCore) SampleRate() int {
	return ToneSampleRate
}

// CPUFrequency returns the CPU clock
func (c *ToneCore) CPUFrequency() uint64 {
	return ToneCPUFrequency
}

// Close releases nothing
func (c *ToneCore) Close() error {
	return nil
}
