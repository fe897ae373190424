package detect

import (
	"fmt"
	"math"
	"time"

	"github.com/seisscan/seisscan/internal/models"
)

// stackWindowSeconds is the synchronized window length: one day plus a
// 60 second guard so triggers near midnight keep their full episode.
const stackWindowSeconds = 86400 + 60

// Align shifts every correlation trace by its channel's static travel-time
// correction and cuts it to a window of stackWindowSeconds starting at the
// corrected start time, zero filling past the available data. All returned
// traces have identical sample counts and are index-synchronized: the same
// sample index refers to the same instant relative to the template origin, so
// matching arrivals line up across channels.
func Align(traces []models.CorrelationTrace, travelTimes map[models.ChannelID]float64) ([]models.CorrelationTrace, error) {
	if len(traces) == 0 {
		return nil, ErrEmptyTrace
	}
	aligned := make([]models.CorrelationTrace, 0, len(traces))
	for _, tr := range traces {
		corr, ok := travelTimes[tr.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingTravelTime, tr.ID)
		}
		correctedStart := tr.Start.Add(secondsToDuration(corr))
		outLen := int(math.Round(stackWindowSeconds*tr.SampleRate)) + 1
		srcOffset := int(math.Round(corr * tr.SampleRate))

		out := models.CorrelationTrace{
			ID:         tr.ID,
			SampleRate: tr.SampleRate,
			Start:      correctedStart,
			Samples:    make([]float64, outLen),
		}
		for k := 0; k < outLen; k++ {
			src := srcOffset + k
			if src >= 0 && src < len(tr.Samples) {
				out.Samples[k] = tr.Samples[src]
			}
		}
		aligned = append(aligned, out)
	}
	return aligned, nil
}

// Stack removes statistical outlier channels and averages the rest into one
// composite trace. A channel is an outlier when the standard deviation of its
// absolute samples is at least avg*stdUp or at most avg*stdDown (dead or
// saturated sensors). The removed channel ids are returned for reporting;
// removing every channel is a fatal configuration error for the unit.
func Stack(traces []models.CorrelationTrace, stdUp, stdDown float64) (models.StackedTrace, []models.ChannelID, error) {
	if len(traces) == 0 {
		return models.StackedTrace{}, nil, ErrEmptyTrace
	}
	n := len(traces[0].Samples)
	for _, tr := range traces[1:] {
		if len(tr.Samples) != n {
			return models.StackedTrace{}, nil, fmt.Errorf("detect: unaligned trace %s: %d samples, want %d",
				tr.ID, len(tr.Samples), n)
		}
	}

	stds := make([]float64, len(traces))
	var avg float64
	for i, tr := range traces {
		stds[i] = stdAbs(tr.Samples)
		avg += stds[i]
	}
	avg /= float64(len(traces))
	upper, lower := avg*stdUp, avg*stdDown

	var survivors []models.CorrelationTrace
	var removed []models.ChannelID
	for i, tr := range traces {
		if stds[i] >= upper || stds[i] <= lower {
			removed = append(removed, tr.ID)
			continue
		}
		survivors = append(survivors, tr)
	}
	if len(survivors) == 0 {
		return models.StackedTrace{}, removed, ErrAllChannelsOutlier
	}

	start := survivors[0].Start
	for _, tr := range survivors[1:] {
		if tr.Start.Before(start) {
			start = tr.Start
		}
	}

	samples := make([]float64, n)
	inv := 1.0 / float64(len(survivors))
	for _, tr := range survivors {
		for k, v := range tr.Samples {
			samples[k] += v * inv
		}
	}

	stacked := models.StackedTrace{
		SampleRate: survivors[0].SampleRate,
		Start:      start,
		Samples:    samples,
		NoiseLevel: robustNoiseLevel(samples),
	}
	return stacked, removed, nil
}

// robustNoiseLevel is the median absolute value of the nonzero samples.
// Zero samples come from zero-fill padding and degenerate correlation shifts
// and would bias the noise estimate down.
func robustNoiseLevel(samples []float64) float64 {
	abs := make([]float64, 0, len(samples))
	for _, v := range samples {
		if v != 0 {
			abs = append(abs, math.Abs(v))
		}
	}
	return median(abs)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
