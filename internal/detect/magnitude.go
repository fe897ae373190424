package detect

import (
	"math"
)

// ChannelMagnitude computes one channel's magnitude estimate from the
// template amplitude, the detection amplitude, and the template magnitude:
//
//	m = magT - log10(ampT / ampD)
//
// Callers must skip channels where either amplitude is zero.
func ChannelMagnitude(templateMag, templateAmp, detectionAmp float64) float64 {
	return templateMag - math.Log10(templateAmp/detectionAmp)
}

// RejectOutliers filters a vector of per-channel magnitude estimates. Exact
// zeros mark missing channels and are dropped first; the rest are kept when
// within m scaled deviations of the median, where the scale is twice the
// median absolute deviation. A zero scale means all remaining values are
// identical up to the median, so every value is treated as the median. The
// surviving values keep their input order.
func RejectOutliers(estimates []float64, m float64) []float64 {
	nonzero := make([]float64, 0, len(estimates))
	for _, v := range estimates {
		if v != 0 {
			nonzero = append(nonzero, v)
		}
	}
	if len(nonzero) == 0 {
		return nil
	}

	med := median(nonzero)
	dev := make([]float64, len(nonzero))
	for i, v := range nonzero {
		dev[i] = math.Abs(v - med)
	}
	mdev := 2 * median(dev)

	if mdev == 0 {
		out := make([]float64, len(nonzero))
		for i := range out {
			out[i] = med
		}
		return out
	}

	var out []float64
	for i, v := range nonzero {
		if dev[i]/mdev <= m {
			out = append(out, v)
		}
	}
	return out
}

// EstimateMagnitude robustly combines per-channel magnitude estimates into
// the detection magnitude: outlier rejection with the default rejection
// factor, then the mean of the survivors rounded to two decimals. When no
// estimate survives there is no defensible magnitude and
// ErrMagnitudeUnavailable is returned.
func EstimateMagnitude(estimates []float64) (float64, error) {
	kept := RejectOutliers(estimates, 1.0)
	if len(kept) == 0 {
		return 0, ErrMagnitudeUnavailable
	}
	var sum float64
	for _, v := range kept {
		sum += v
	}
	return round2(sum / float64(len(kept))), nil
}
