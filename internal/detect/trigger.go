package detect

import (
	"math"

	"github.com/seisscan/seisscan/internal/models"
)

// TriggerOptions tunes the threshold state machine.
type TriggerOptions struct {
	// ThresholdOn arms a trigger episode, ThresholdOff closes it.
	ThresholdOn  float64
	ThresholdOff float64

	// OffExtension keeps an episode open for this many seconds after the
	// value drops below ThresholdOff; a value recovering within the extension
	// continues the same episode. Zero closes immediately.
	OffExtension float64

	// MinCoincidenceSum is the minimum number of contributing traces. The
	// composite trace counts as one, so 1.0 keeps every episode.
	MinCoincidenceSum float64
}

// Thresholds derives the on/off pair from the stacked trace's robust noise
// level: on = noise * factor, off = on - 0.15*on.
func Thresholds(noiseLevel, factor float64) (on, off float64) {
	on = noiseLevel * factor
	off = on - 0.15*on
	return on, off
}

// DetectTriggers scans the composite trace for threshold-crossing episodes
// and emits one candidate per episode. Episodes are independent; the only
// merging is the off-extension debounce.
func DetectTriggers(stacked models.StackedTrace, opts TriggerOptions) []models.TriggerCandidate {
	var (
		triggers []models.TriggerCandidate

		above        bool
		onIdx        int
		peak         float64
		peakIdx      int
		weightSum    float64
		weightedASum float64

		// belowIdx is the sample where the value first dropped under
		// ThresholdOff, -1 while the episode is live.
		belowIdx int
	)

	extSamples := int(math.Round(opts.OffExtension * stacked.SampleRate))

	emit := func(i int) {
		cand := models.TriggerCandidate{
			Time:           stacked.TimeAt(onIdx),
			PeakTime:       stacked.TimeAt(peakIdx),
			PeakValue:      peak,
			CoincidenceSum: 1.0,
		}
		if weightSum > 0 {
			cand.WeightedPeak = weightedASum / weightSum
		} else {
			cand.WeightedPeak = peak
		}
		if cand.CoincidenceSum >= opts.MinCoincidenceSum {
			triggers = append(triggers, cand)
		}
		above = false
	}

	for i, v := range stacked.Samples {
		if !above {
			if v > opts.ThresholdOn {
				above = true
				onIdx = i
				peak = v
				peakIdx = i
				weightedASum = v * v
				weightSum = v
				belowIdx = -1
			}
			continue
		}

		if v > peak {
			peak = v
			peakIdx = i
		}
		if v > opts.ThresholdOn {
			weightedASum += v * v
			weightSum += v
		}

		if v < opts.ThresholdOff {
			if belowIdx < 0 {
				belowIdx = i
			}
			if i-belowIdx >= extSamples {
				emit(i)
			}
		} else {
			belowIdx = -1
		}
	}
	if above {
		emit(len(stacked.Samples) - 1)
	}
	return triggers
}
