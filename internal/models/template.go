package models

import (
	"errors"
	"time"
)

// TemplateSet holds the per-channel template traces of one catalog event
// together with the amplitude and timing metadata needed for magnitude
// estimation and channel synchronization.
type TemplateSet struct {
	Index     int
	Magnitude float64
	Traces    map[ChannelID]WaveformTrace

	// PeakAmp is the maximum absolute amplitude per channel, measured at load.
	PeakAmp map[ChannelID]float64

	// ReferenceTime is the earliest template trace start, the zero point for
	// per-channel template offsets.
	ReferenceTime time.Time
}

// NewTemplateSet assembles a template set from per-channel traces, computing
// peak amplitudes and the reference time.
func NewTemplateSet(index int, magnitude float64, traces []WaveformTrace) (TemplateSet, error) {
	if len(traces) == 0 {
		return TemplateSet{}, errors.New("template set must contain at least one trace")
	}
	ts := TemplateSet{
		Index:     index,
		Magnitude: magnitude,
		Traces:    make(map[ChannelID]WaveformTrace, len(traces)),
		PeakAmp:   make(map[ChannelID]float64, len(traces)),
	}
	for i, tr := range traces {
		if err := tr.Validate(); err != nil {
			return TemplateSet{}, err
		}
		ts.Traces[tr.ID] = tr
		ts.PeakAmp[tr.ID] = tr.PeakAbs()
		if i == 0 || tr.Start.Before(ts.ReferenceTime) {
			ts.ReferenceTime = tr.Start
		}
	}
	return ts, nil
}

// ChannelCount returns the number of channels in the set.
func (s *TemplateSet) ChannelCount() int {
	return len(s.Traces)
}

// CatalogEvent is one template event from the external catalog.
type CatalogEvent struct {
	Index      int
	OriginTime time.Time
	Magnitude  float64
	Longitude  float64
	Latitude   float64
	Depth      float64
}
