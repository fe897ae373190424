package models

import (
	"errors"
	"time"
)

// TriggerCandidate is one threshold-crossing episode on the stacked trace.
// Candidates exist only between trigger extraction and validation; validated
// candidates become DetectionRecords.
type TriggerCandidate struct {
	// Time is the instant of the upward threshold crossing.
	Time time.Time
	// PeakTime and PeakValue describe the episode maximum.
	PeakTime  time.Time
	PeakValue float64
	// WeightedPeak is the value-weighted mean of the above-threshold samples.
	WeightedPeak float64
	// CoincidenceSum counts contributing traces (1.0 for the single composite).
	CoincidenceSum float64
}

// ChannelStat is the per-channel validator diagnostic for one accepted
// trigger: the exact-sample value, the peak found in the tolerance window,
// and the signed offset of that peak from the nominal trigger sample.
type ChannelStat struct {
	TemplateID   int
	Day          string
	TriggerIndex int
	Channel      ChannelID
	Exact        float64
	WindowPeak   float64
	SampleOffset int
}

// ChannelMagnitude is one channel's contribution to the detection magnitude.
type ChannelMagnitude struct {
	TemplateID   int
	Day          string
	TriggerIndex int
	Channel      ChannelID
	Magnitude    float64
}

// DetectionRecord is the final, immutable product of one validated trigger.
type DetectionRecord struct {
	ID           string
	TemplateID   int
	Day          string
	TriggerIndex int

	// OriginTime is the trigger time corrected for the minimum travel-time
	// offset of the template.
	OriginTime time.Time

	// Magnitude is valid only when MagnitudeOK is true; a detection whose
	// per-channel estimates were all rejected is kept but flagged.
	Magnitude         float64
	MagnitudeOK       bool
	TemplateMagnitude float64

	// ChannelCount is the number of channels whose correlation exceeded the
	// per-channel threshold; Tier03..Tier09 count channels above the fixed
	// confidence levels 0.3, 0.5, 0.7, and 0.9.
	ChannelCount int
	Tier03       int
	Tier05       int
	Tier07       int
	Tier09       int

	NoiseLevel         float64
	MeanPeak           float64 // mean windowed channel peak
	PeakRatio          float64 // MeanPeak / NoiseLevel
	MeanPeakAtTrigger  float64 // mean exact-sample channel value
	PeakRatioAtTrigger float64 // MeanPeakAtTrigger / NoiseLevel

	CoincidenceSum float64
	PeakValue      float64

	CreatedAt time.Time
}

// Validate checks detection record field constraints.
func (d *DetectionRecord) Validate() error {
	if d.ID == "" {
		return errors.New("detection ID must not be empty")
	}
	if d.Day == "" {
		return errors.New("detection day must not be empty")
	}
	if d.TemplateID < 0 {
		return errors.New("template ID must not be negative")
	}
	if d.TriggerIndex < 0 {
		return errors.New("trigger index must not be negative")
	}
	if d.OriginTime.IsZero() {
		return errors.New("origin time must be set")
	}
	if d.ChannelCount < 1 {
		return errors.New("channel count must be at least 1")
	}
	if d.NoiseLevel < 0 {
		return errors.New("noise level must not be negative")
	}
	return nil
}
