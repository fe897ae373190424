package detect

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/seisscan/seisscan/internal/models"
)

// Params holds the detection tuning for one batch run.
type Params struct {
	SampleTolerance   int     // half width of the validation search window, samples
	CCThreshold       float64 // per-channel correlation threshold
	MinChannelCount   int     // channels required to keep a trigger
	TemplateLength    float64 // template window length, seconds
	TimePrecision     int     // decimal digits kept on reported times
	ThresholdFactor   float64 // detection threshold = noise level * factor
	StdUp             float64 // stacking outlier multipliers
	StdDown           float64
	OffExtension      float64 // trigger off-extension, seconds
	MinCoincidenceSum float64
}

// Unit is one independent (template, day) detection run. It owns freshly
// constructed state only; the waveform inputs are shared read-only.
type Unit struct {
	Day         string
	Template    models.TemplateSet
	TravelTimes map[models.ChannelID]float64
	Continuous  []models.WaveformTrace
	Params      Params
}

// Result collects everything one unit run produced. Detections carry the
// validated triggers; ChannelStats and ChannelMagnitudes are the per-channel
// diagnostics for the accepted triggers, handed to the output sink alongside.
type Result struct {
	Detections        []models.DetectionRecord
	ChannelStats      []models.ChannelStat
	ChannelMagnitudes []models.ChannelMagnitude

	// SkippedChannels failed correlation (corrupt or too-short data);
	// RemovedChannels were discarded by the stacking quality filter.
	SkippedChannels []models.ChannelID
	RemovedChannels []models.ChannelID
	TriggerCount    int
	RejectedCount   int
}

// Run executes the full pipeline for the unit: per-channel correlation,
// travel-time alignment, stacking, trigger extraction, single-channel
// validation, and magnitude estimation. It is a pure function of its inputs;
// rerunning a unit on identical data yields identical records.
func (u *Unit) Run() (Result, error) {
	cfts, skipped, err := u.correlateChannels()
	if err != nil {
		return Result{}, err
	}
	if len(cfts) < u.Params.MinChannelCount {
		return Result{SkippedChannels: skipped}, fmt.Errorf("%w: %d of %d required",
			ErrNoUsableChannels, len(cfts), u.Params.MinChannelCount)
	}

	aligned, err := Align(cfts, u.TravelTimes)
	if err != nil {
		return Result{SkippedChannels: skipped}, err
	}
	stacked, removed, err := Stack(aligned, u.Params.StdUp, u.Params.StdDown)
	if err != nil {
		return Result{SkippedChannels: skipped, RemovedChannels: removed}, err
	}

	on, off := Thresholds(stacked.NoiseLevel, u.Params.ThresholdFactor)
	triggers := DetectTriggers(stacked, TriggerOptions{
		ThresholdOn:       on,
		ThresholdOff:      off,
		OffExtension:      u.Params.OffExtension,
		MinCoincidenceSum: u.Params.MinCoincidenceSum,
	})

	res := Result{
		SkippedChannels: skipped,
		RemovedChannels: removed,
		TriggerCount:    len(triggers),
	}

	// Minimum correction over the channels that produced a CFT versus the
	// minimum over the whole travel-time table; both are found by numeric
	// comparison.
	chanMin := minCorrection(u.TravelTimes, cfts)
	tableMin := minValue(u.TravelTimes)

	vopts := ValidateOptions{
		SampleTolerance:  u.Params.SampleTolerance,
		ChannelThreshold: u.Params.CCThreshold,
		MinChannelCount:  u.Params.MinChannelCount,
	}

	for i, trg := range triggers {
		v := ValidateTrigger(aligned, stacked, trg, stacked.NoiseLevel, vopts)
		if !v.Accepted {
			res.RejectedCount++
			continue
		}

		originTime := u.originTime(trg.Time, chanMin, tableMin)
		estimates, contribs := u.measureMagnitudes(originTime, chanMin, i)

		rec := models.DetectionRecord{
			ID:                 detectionID(u.Template.Index, u.Day, i),
			TemplateID:         u.Template.Index,
			Day:                u.Day,
			TriggerIndex:       i,
			OriginTime:         originTime,
			TemplateMagnitude:  u.Template.Magnitude,
			ChannelCount:       v.ChannelCount,
			Tier03:             v.Tier03,
			Tier05:             v.Tier05,
			Tier07:             v.Tier07,
			Tier09:             v.Tier09,
			NoiseLevel:         stacked.NoiseLevel,
			MeanPeak:           round3(v.MeanPeak),
			PeakRatio:          round3(v.PeakRatio),
			MeanPeakAtTrigger:  round3(v.MeanPeakAtTrigger),
			PeakRatioAtTrigger: round3(v.PeakRatioAtTrigger),
			CoincidenceSum:     trg.CoincidenceSum,
			PeakValue:          trg.PeakValue,
		}

		if mag, err := EstimateMagnitude(estimates); err == nil {
			rec.Magnitude = mag
			rec.MagnitudeOK = true
		}

		for j := range v.Channels {
			v.Channels[j].TemplateID = u.Template.Index
			v.Channels[j].Day = u.Day
			v.Channels[j].TriggerIndex = i
		}
		res.ChannelStats = append(res.ChannelStats, v.Channels...)
		res.ChannelMagnitudes = append(res.ChannelMagnitudes, contribs...)
		res.Detections = append(res.Detections, rec)
	}
	return res, nil
}

// correlateChannels runs the cross-correlator for every continuous channel
// that has a template trace. Channels with corrupt or too-short data are
// skipped and reported back; a channel without a travel-time entry aborts
// the unit.
func (u *Unit) correlateChannels() ([]models.CorrelationTrace, []models.ChannelID, error) {
	seen := make(map[models.ChannelID]bool, len(u.Continuous))
	var cfts []models.CorrelationTrace
	var skipped []models.ChannelID
	for i := range u.Continuous {
		tc := &u.Continuous[i]
		tmpl, ok := u.Template.Traces[tc.ID]
		if !ok || seen[tc.ID] {
			continue
		}
		if _, ok := u.TravelTimes[tc.ID]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingTravelTime, tc.ID)
		}
		samples, err := Correlate(tc.Samples, tmpl.Samples)
		if err != nil {
			// Data-quality failure: drop the channel, keep the unit.
			skipped = append(skipped, tc.ID)
			continue
		}
		seen[tc.ID] = true
		cfts = append(cfts, models.CorrelationTrace{
			ID:         tc.ID,
			SampleRate: tc.SampleRate,
			Start:      tc.Start,
			Samples:    samples,
		})
	}
	return cfts, skipped, nil
}

// originTime corrects a trigger time back to the template origin reference.
// When the channels that produced CFTs include the table's minimum
// travel-time entry the correction is that minimum itself; otherwise the
// residual between the two minima applies.
func (u *Unit) originTime(trigger time.Time, chanMin, tableMin float64) time.Time {
	var corrected time.Time
	if chanMin == tableMin {
		corrected = trigger.Add(secondsToDuration(chanMin))
	} else {
		corrected = trigger.Add(secondsToDuration(tableMin - chanMin))
	}
	return roundTime(corrected, u.Params.TimePrecision)
}

// measureMagnitudes trims each continuous channel to the template-length
// window at the detection time and derives the per-channel magnitude from
// the template/detection amplitude ratio. Channels where either amplitude is
// zero contribute nothing.
func (u *Unit) measureMagnitudes(originTime time.Time, chanMin float64, triggerIndex int) ([]float64, []models.ChannelMagnitude) {
	var estimates []float64
	var contribs []models.ChannelMagnitude
	for i := range u.Continuous {
		tc := &u.Continuous[i]
		tmpl, ok := u.Template.Traces[tc.ID]
		if !ok {
			continue
		}
		start := originTime.
			Add(secondsToDuration(-chanMin)).
			Add(tmpl.Start.Sub(u.Template.ReferenceTime))
		end := start.Add(secondsToDuration(u.Params.TemplateLength))

		ampDet := tc.Trim(start, end).PeakAbs()
		ampTmpl := u.Template.PeakAmp[tc.ID]
		if ampDet == 0 || ampTmpl == 0 {
			continue
		}
		est := ChannelMagnitude(u.Template.Magnitude, ampTmpl, ampDet)
		estimates = append(estimates, est)
		contribs = append(contribs, models.ChannelMagnitude{
			TemplateID:   u.Template.Index,
			Day:          u.Day,
			TriggerIndex: triggerIndex,
			Channel:      tc.ID,
			Magnitude:    est,
		})
	}
	return estimates, contribs
}

// detectionID derives a stable ID from the unit coordinates so reruns of the
// same unit produce identical records.
func detectionID(templateID int, day string, triggerIndex int) string {
	name := fmt.Sprintf("%d.%s.%d", templateID, day, triggerIndex)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func minCorrection(travelTimes map[models.ChannelID]float64, cfts []models.CorrelationTrace) float64 {
	min := math.Inf(1)
	for _, tr := range cfts {
		if v := travelTimes[tr.ID]; v < min {
			min = v
		}
	}
	return min
}

func minValue(m map[models.ChannelID]float64) float64 {
	min := math.Inf(1)
	for _, v := range m {
		if v < min {
			min = v
		}
	}
	return min
}

// roundTime rounds t to the given number of decimal digits of a second.
func roundTime(t time.Time, digits int) time.Time {
	if digits < 0 || digits > 9 {
		return t
	}
	unit := time.Second
	for i := 0; i < digits; i++ {
		unit /= 10
	}
	return t.Round(unit)
}
