package detect

import (
	"math"

	"github.com/seisscan/seisscan/internal/models"
)

// ValidateOptions tunes single-channel trigger validation.
type ValidateOptions struct {
	// SampleTolerance is the half width, in samples, of the search window
	// around the nominal trigger sample. Values below 2 often give wrong
	// magnitudes because of sub-sample misalignment between channels.
	SampleTolerance int

	// ChannelThreshold is the per-channel correlation a windowed peak must
	// exceed to count toward the channel tally.
	ChannelThreshold float64

	// MinChannelCount rejects triggers supported by fewer channels.
	MinChannelCount int
}

// ValidationResult reports how the individual channels support one trigger.
// When Accepted is false the aggregate fields hold the historical all-ones
// rejection sentinel: they mark a failed check, not a measurement.
type ValidationResult struct {
	Accepted bool

	// ChannelCount is the number of channels whose windowed peak exceeded the
	// per-channel threshold.
	ChannelCount int

	MeanPeak           float64 // mean windowed peak over all channels
	PeakRatio          float64 // MeanPeak / noise level
	MeanPeakAtTrigger  float64 // mean exact-sample value over all channels
	PeakRatioAtTrigger float64 // MeanPeakAtTrigger / noise level

	// Tier counts are channels whose windowed peak exceeds the fixed
	// confidence levels 0.3, 0.5, 0.7, and 0.9.
	Tier03, Tier05, Tier07, Tier09 int

	// Channels holds the per-channel diagnostics, populated only for
	// accepted triggers.
	Channels []models.ChannelStat
}

// rejectedResult is the preserved sentinel convention for triggers that fail
// the channel-count check.
func rejectedResult() ValidationResult {
	return ValidationResult{
		Accepted:           false,
		ChannelCount:       1,
		MeanPeak:           1,
		PeakRatio:          1,
		MeanPeakAtTrigger:  1,
		PeakRatioAtTrigger: 1,
		Tier03:             1,
		Tier05:             1,
		Tier07:             1,
		Tier09:             1,
	}
}

// ValidateTrigger re-examines the aligned per-channel correlation traces
// around one trigger. For each channel it searches ±SampleTolerance samples
// around the nominal trigger sample for the local maximum, compensating
// sub-sample misalignment, and records the windowed peak, the exact-sample
// value, and the signed offset of the peak. Triggers supported by fewer than
// MinChannelCount channels are rejected.
func ValidateTrigger(aligned []models.CorrelationTrace, stacked models.StackedTrace, trigger models.TriggerCandidate, noiseLevel float64, opts ValidateOptions) ValidationResult {
	triggerSample := int(math.Round(trigger.Time.Sub(stacked.Start).Seconds() * stacked.SampleRate))

	peaks := make([]float64, len(aligned))
	exacts := make([]float64, len(aligned))
	offsets := make([]int, len(aligned))

	for i, tr := range aligned {
		lo := triggerSample - opts.SampleTolerance
		hi := triggerSample + opts.SampleTolerance
		if lo < 0 {
			lo = 0
		}
		if hi > len(tr.Samples)-1 {
			hi = len(tr.Samples) - 1
		}
		if lo > hi {
			continue
		}

		peakIdx := lo
		for k := lo + 1; k <= hi; k++ {
			if tr.Samples[k] > tr.Samples[peakIdx] {
				peakIdx = k
			}
		}
		peaks[i] = tr.Samples[peakIdx]
		// Signed offset of the peak from the nominal trigger sample; zero
		// when the channel peaks exactly at the trigger.
		offsets[i] = triggerSample - peakIdx
		if triggerSample >= 0 && triggerSample < len(tr.Samples) {
			exacts[i] = tr.Samples[triggerSample]
		}
	}

	var nch int
	for _, p := range peaks {
		if p > opts.ChannelThreshold {
			nch++
		}
	}
	if nch < opts.MinChannelCount {
		return rejectedResult()
	}

	res := ValidationResult{
		Accepted:     true,
		ChannelCount: nch,
		Channels:     make([]models.ChannelStat, 0, len(aligned)),
	}
	var sumPeak, sumExact float64
	for i, tr := range aligned {
		sumPeak += peaks[i]
		sumExact += exacts[i]
		if peaks[i] > 0.3 {
			res.Tier03++
		}
		if peaks[i] > 0.5 {
			res.Tier05++
		}
		if peaks[i] > 0.7 {
			res.Tier07++
		}
		if peaks[i] > 0.9 {
			res.Tier09++
		}
		res.Channels = append(res.Channels, models.ChannelStat{
			Channel:      tr.ID,
			Exact:        exacts[i],
			WindowPeak:   peaks[i],
			SampleOffset: offsets[i],
		})
	}
	n := float64(len(aligned))
	res.MeanPeak = sumPeak / n
	res.MeanPeakAtTrigger = sumExact / n
	if noiseLevel != 0 {
		res.PeakRatio = res.MeanPeak / noiseLevel
		res.PeakRatioAtTrigger = res.MeanPeakAtTrigger / noiseLevel
	}
	return res
}
