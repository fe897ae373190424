package detect

import (
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

// Templates at least this long run the FFT numerator; shorter ones are faster
// with the direct vectorized path.
const fftTemplateMin = 64

// Correlate computes the normalized sliding cross-correlation of a template
// against a continuous trace. The result has len(continuous)-len(template)+1
// samples, one Pearson-style coefficient per shift:
//
//	c[i] = Σ_j (t[j]-mean(t)) * (w[j]-mean(w)) / (M * std(w) * std(t))
//
// where w is the length-M window continuous[i:i+M]. Shifts where the window
// or the template has zero variance yield exactly 0, never NaN or Inf.
//
// The numerator reduces to a plain cross-correlation of the continuous trace
// with the demeaned template (the window-mean term vanishes because the
// demeaned template sums to zero); the denominator uses a rolling window sum
// and sum of squares, so the whole computation is O(N·M) worst case and
// O(N log M) on the FFT path.
func Correlate(continuous, template []float64) ([]float64, error) {
	n, m := len(continuous), len(template)
	if n == 0 || m == 0 {
		return nil, ErrEmptyTrace
	}
	if n < m {
		return nil, ErrTemplateTooLong
	}

	out := make([]float64, n-m+1)

	meanT, stdT := meanStd(template)
	if stdT == 0 {
		// Flat template: every shift is degenerate.
		return out, nil
	}

	demeaned := make([]float64, m)
	for j, v := range template {
		demeaned[j] = v - meanT
	}

	var num []float64
	var err error
	if m >= fftTemplateMin {
		num, err = fftNumerator(continuous, demeaned)
		if err != nil {
			return nil, err
		}
	} else {
		num = directNumerator(continuous, demeaned)
	}

	// Rolling window mean and variance of the continuous trace.
	var sum, sumSq float64
	for j := 0; j < m; j++ {
		sum += continuous[j]
		sumSq += continuous[j] * continuous[j]
	}
	mf := float64(m)
	for i := range out {
		meanW := sum / mf
		varW := sumSq/mf - meanW*meanW
		if varW < 0 {
			varW = 0
		}
		denom := mf * math.Sqrt(varW) * stdT
		if denom == 0 {
			out[i] = 0
		} else {
			out[i] = num[i] / denom
		}
		if i+m < n {
			old, next := continuous[i], continuous[i+m]
			sum += next - old
			sumSq += next*next - old*old
		}
	}
	return out, nil
}

// directNumerator computes the correlation numerator shift by shift with
// vectorized multiply blocks.
func directNumerator(continuous, demeaned []float64) []float64 {
	n, m := len(continuous), len(demeaned)
	num := make([]float64, n-m+1)
	scratch := make([]float64, m)
	for i := range num {
		vecmath.MulBlock(scratch, demeaned, continuous[i:i+m])
		var s float64
		for _, v := range scratch {
			s += v
		}
		num[i] = s
	}
	return num
}

// fftNumerator computes the correlation numerator by overlap-save block
// processing: each block is multiplied in the frequency domain with the
// conjugated template spectrum, which yields circular correlation; the first
// fftSize-M+1 output samples per block are free of wrap-around and therefore
// valid linear correlation values.
func fftNumerator(continuous, demeaned []float64) ([]float64, error) {
	n, m := len(continuous), len(demeaned)
	outLen := n - m + 1

	fftSize := nextPowerOf2(4 * m)
	hop := fftSize - m + 1

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("detect: failed to create FFT plan: %w", err)
	}

	tmplPadded := make([]complex128, fftSize)
	for j, v := range demeaned {
		tmplPadded[j] = complex(v, 0)
	}
	tmplFreq := make([]complex128, fftSize)
	if err := plan.Forward(tmplFreq, tmplPadded); err != nil {
		return nil, fmt.Errorf("detect: forward FFT failed: %w", err)
	}

	seg := make([]complex128, fftSize)
	segFreq := make([]complex128, fftSize)
	prod := make([]complex128, fftSize)
	res := make([]complex128, fftSize)
	num := make([]float64, outLen)

	for p := 0; p < outLen; p += hop {
		for k := 0; k < fftSize; k++ {
			if p+k < n {
				seg[k] = complex(continuous[p+k], 0)
			} else {
				seg[k] = 0
			}
		}
		if err := plan.Forward(segFreq, seg); err != nil {
			return nil, fmt.Errorf("detect: forward FFT failed: %w", err)
		}
		for k := range prod {
			prod[k] = segFreq[k] * cmplx.Conj(tmplFreq[k])
		}
		if err := plan.Inverse(res, prod); err != nil {
			return nil, fmt.Errorf("detect: inverse FFT failed: %w", err)
		}
		for k := 0; k < hop && p+k < outLen; k++ {
			num[p+k] = real(res[k])
		}
	}
	return num, nil
}

// meanStd returns the mean and population standard deviation.
func meanStd(x []float64) (mean, std float64) {
	n := float64(len(x))
	for _, v := range x {
		mean += v
	}
	mean /= n
	var ss float64
	for _, v := range x {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / n)
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
