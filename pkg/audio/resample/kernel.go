// ABOUTME: Band-limited step kernel generation
// ABOUTME: Builds the phase table once at init from a Blackman-windowed sinc
package resample

import (
	"math"

	"github.com/tphakala/simd/f64"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	halfWidth  = 8
	phaseBits  = 5
	phaseCount = 1 << phaseBits
	deltaBits  = 15
	deltaUnit  = 1 << deltaBits

	// kernelCutoff is the passband edge as a fraction of the output Nyquist rate
	kernelCutoff = 0.85
)

// kernel holds phaseCount+1 rows of the left half of the step response.
// The right half of phase p is row phaseCount-p read backwards.
var kernel = buildKernel()

func buildKernel() [phaseCount + 1][halfWidth]int16 {
	// Continuous impulse sampled every 1/phaseCount of an output sample over
	// the full 16-tap span. Index i corresponds to x = i/phaseCount - halfWidth.
	impulse := make([]float64, 2*halfWidth*phaseCount+1)
	for i := range impulse {
		x := float64(i)/phaseCount - halfWidth
		impulse[i] = sinc(x * kernelCutoff)
	}
	window.Blackman(impulse)

	// Every phase picks one point per output sample, so one phase sums to
	// roughly total/phaseCount. Scale that to deltaUnit.
	sum := f64.Sum(impulse)
	f64.Scale(impulse, impulse, deltaUnit*phaseCount/sum)

	var table [phaseCount + 1][halfWidth]int16
	for p := 0; p <= phaseCount; p++ {
		for k := 0; k < halfWidth; k++ {
			table[p][k] = int16(math.Round(impulse[(k+1)*phaseCount-p]))
		}
	}

	// Rounding leaves each phase a few units off deltaUnit. Phase p and
	// phaseCount-p share the same pair of rows, so fixing the centre tap of
	// the lower row corrects both.
	for p := 0; p <= phaseCount/2; p++ {
		var total int
		for k := 0; k < halfWidth; k++ {
			total += int(table[p][k]) + int(table[phaseCount-p][k])
		}
		diff := deltaUnit - total
		if p == phaseCount/2 {
			diff /= 2
		}
		table[p][halfWidth-1] += int16(diff)
	}

	return table
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}
