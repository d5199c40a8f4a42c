// ABOUTME: Level meter for encoded output
// ABOUTME: Tracks peak and RMS per channel over everything written
package encode

import (
	"math"

	"github.com/harperreed/emusync/pkg/audio"
	"github.com/tphakala/simd/f64"
)

// Levels are peak and RMS amplitudes in the range 0..1
type Levels struct {
	Frames    int
	PeakLeft  float64
	PeakRight float64
	RMSLeft   float64
	RMSRight  float64
}

// Meter is an Encoder that measures what passes through it
type Meter struct {
	next   Encoder
	frames int
	peak   [audio.Channels]float64
	energy [audio.Channels]float64
	ch     [audio.Channels][]float64
}

// NewMeter wraps next. A nil next only measures.
func NewMeter(next Encoder) *Meter {
	return &Meter{next: next}
}

// Write measures samples and forwards them
func (m *Meter) Write(samples []int16) error {
	frames := len(samples) / audio.Channels
	for c := range m.ch {
		if cap(m.ch[c]) < frames {
			m.ch[c] = make([]float64, frames)
		}
		m.ch[c] = m.ch[c][:frames]
	}

	for i := 0; i < frames; i++ {
		for c := range m.ch {
			v := float64(samples[i*audio.Channels+c]) / -audio.MinInt16
			m.ch[c][i] = v
			m.peak[c] = max(m.peak[c], math.Abs(v))
		}
	}
	for c := range m.ch {
		m.energy[c] += f64.DotProduct(m.ch[c], m.ch[c])
	}
	m.frames += frames

	if m.next == nil {
		return nil
	}
	return m.next.Write(samples)
}

// Levels returns the levels measured so far
func (m *Meter) Levels() Levels {
	l := Levels{Frames: m.frames, PeakLeft: m.peak[0], PeakRight: m.peak[1]}
	if m.frames > 0 {
		l.RMSLeft = math.Sqrt(m.energy[0] / float64(m.frames))
		l.RMSRight = math.Sqrt(m.energy[1] / float64(m.frames))
	}
	return l
}

// Close closes the wrapped encoder
func (m *Meter) Close() error {
	if m.next == nil {
		return nil
	}
	return m.next.Close()
}
