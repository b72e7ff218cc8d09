package separation

import (
	"math"
	"math/cmplx"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design/pass"
)

// edgeMargin keeps normalised cutoffs strictly inside (0, 1) of Nyquist.
const edgeMargin = 0.001

// clampCutoff limits freq to (margin, 1-margin) of Nyquist.
func clampCutoff(freq, sampleRate float64) float64 {
	nyq := sampleRate / 2
	norm := freq / nyq
	norm = math.Max(edgeMargin, math.Min(norm, 1-edgeMargin))
	return norm * nyq
}

// Cascade is a chain of biquad sections applied in order.
type Cascade []biquad.Coefficients

// ButterworthLowpass designs an order-n lowpass as a biquad cascade.
// Odd orders end with a first-order section.
func ButterworthLowpass(freq float64, order int, sampleRate float64) Cascade {
	if order <= 0 || sampleRate <= 0 {
		return nil
	}
	return pass.ButterworthLP(clampCutoff(freq, sampleRate), order, sampleRate)
}

// ButterworthHighpass designs an order-n highpass as a biquad cascade.
func ButterworthHighpass(freq float64, order int, sampleRate float64) Cascade {
	if order <= 0 || sampleRate <= 0 {
		return nil
	}
	return pass.ButterworthHP(clampCutoff(freq, sampleRate), order, sampleRate)
}

// ButterworthBandpass cascades a highpass at low with a lowpass at high.
// The upper edge is kept above the lower one after clamping.
func ButterworthBandpass(low, high float64, order int, sampleRate float64) Cascade {
	if order <= 0 || sampleRate <= 0 {
		return nil
	}
	low = clampCutoff(low, sampleRate)
	high = clampCutoff(high, sampleRate)
	if minHigh := low + edgeMargin*sampleRate/2; high < minHigh {
		high = minHigh
	}
	hp := ButterworthHighpass(low, order, sampleRate)
	lp := ButterworthLowpass(high, order, sampleRate)
	return append(hp, lp...)
}

// Response returns the magnitude response at freq Hz.
func (c Cascade) Response(freq, sampleRate float64) float64 {
	return cmplx.Abs(biquad.NewChain(c).Response(freq, sampleRate))
}

// dcGain is the response of one section at 0 Hz.
func dcGain(c biquad.Coefficients) float64 {
	den := 1 + c.A1 + c.A2
	if den == 0 {
		return 0
	}
	return (c.B0 + c.B1 + c.B2) / den
}

// steadyState returns, per section, the delay-line state a constant
// input x0 settles into. Starting there removes the step transient.
func (c Cascade) steadyState(x0 float64) [][2]float64 {
	states := make([][2]float64, len(c))
	in := x0
	for i, sec := range c {
		y := dcGain(sec) * in
		d1 := sec.B2*in - sec.A2*y
		d0 := sec.B1*in - sec.A1*y + d1
		states[i] = [2]float64{d0, d1}
		in = y
	}
	return states
}

// padLength mirrors the usual zero-phase padding rule: three times the
// total number of coefficients per direction.
func (c Cascade) padLength() int {
	n := 2*len(c) + 1
	var firstOrder int
	for _, sec := range c {
		if sec.B2 == 0 && sec.A2 == 0 {
			firstOrder++
		}
	}
	return 3 * (n - firstOrder)
}

// filter runs x through a fresh chain in place, seeded at steady state
// for x[0].
func (c Cascade) filter(x []float64) {
	if len(x) == 0 {
		return
	}
	chain := biquad.NewChain(c)
	chain.SetState(c.steadyState(x[0]))
	chain.ProcessBlock(x)
}

// FiltFilt applies the cascade forward and backward for zero phase
// distortion. The input is extended at both ends by odd reflection to
// reduce edge transients. x is not modified.
func (c Cascade) FiltFilt(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(c) == 0 || len(x) == 0 {
		copy(out, x)
		return out
	}

	pad := min(c.padLength(), len(x)-1)
	ext := make([]float64, len(x)+2*pad)
	for i := 0; i < pad; i++ {
		ext[i] = 2*x[0] - x[pad-i]
		ext[len(ext)-1-i] = 2*x[len(x)-1] - x[len(x)-2-(pad-1-i)]
	}
	copy(ext[pad:], x)

	c.filter(ext)
	reverse(ext)
	c.filter(ext)
	reverse(ext)

	copy(out, ext[pad:pad+len(x)])
	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
