package models

import (
	"errors"
	"math"
	"time"
)

// WaveformTrace is a single-channel waveform segment with a fixed sample
// cadence. Traces are treated as immutable once built; trimming returns a new
// trace.
type WaveformTrace struct {
	ID         ChannelID
	SampleRate float64
	Start      time.Time
	Samples    []float64
}

// Delta returns the sampling interval in seconds.
func (t WaveformTrace) Delta() float64 {
	return 1.0 / t.SampleRate
}

// End returns the time of the last sample.
func (t WaveformTrace) End() time.Time {
	if len(t.Samples) == 0 {
		return t.Start
	}
	return t.TimeAt(len(t.Samples) - 1)
}

// TimeAt returns the time of sample i.
func (t WaveformTrace) TimeAt(i int) time.Time {
	return t.Start.Add(durationForSamples(i, t.SampleRate))
}

// IndexOf returns the nearest sample index for the given instant. The index
// may lie outside [0, len(Samples)).
func (t WaveformTrace) IndexOf(at time.Time) int {
	return int(math.Round(at.Sub(t.Start).Seconds() * t.SampleRate))
}

// Validate checks trace field constraints.
func (t WaveformTrace) Validate() error {
	if t.ID.Network == "" || t.ID.Station == "" || t.ID.Channel == "" {
		return errors.New("channel id must be fully specified")
	}
	if t.SampleRate <= 0 {
		return errors.New("sample rate must be positive")
	}
	if len(t.Samples) == 0 {
		return errors.New("trace must contain samples")
	}
	return nil
}

// PeakAbs returns the maximum absolute sample amplitude.
func (t WaveformTrace) PeakAbs() float64 {
	var peak float64
	for _, v := range t.Samples {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

// ZeroFraction returns the fraction of exactly-zero samples.
func (t WaveformTrace) ZeroFraction() float64 {
	if len(t.Samples) == 0 {
		return 1
	}
	var zeros int
	for _, v := range t.Samples {
		if v == 0 {
			zeros++
		}
	}
	return float64(zeros) / float64(len(t.Samples))
}

// Trim returns a copy of the trace cut to [start, end] with nearest-sample
// alignment. Regions outside the available data are zero filled; the result
// always has round((end-start)*rate)+1 samples.
func (t WaveformTrace) Trim(start, end time.Time) WaveformTrace {
	n := int(math.Round(end.Sub(start).Seconds()*t.SampleRate)) + 1
	if n < 1 {
		n = 1
	}
	out := WaveformTrace{
		ID:         t.ID,
		SampleRate: t.SampleRate,
		Start:      start,
		Samples:    make([]float64, n),
	}
	offset := t.IndexOf(start)
	for i := 0; i < n; i++ {
		src := offset + i
		if src >= 0 && src < len(t.Samples) {
			out.Samples[i] = t.Samples[src]
		}
	}
	return out
}

// CorrelationTrace is the sliding normalized cross-correlation of one
// continuous channel against its template (one coefficient per shift). It
// keeps the cadence and start time of the continuous trace.
type CorrelationTrace struct {
	ID         ChannelID
	SampleRate float64
	Start      time.Time
	Samples    []float64
}

// Delta returns the sampling interval in seconds.
func (t CorrelationTrace) Delta() float64 {
	return 1.0 / t.SampleRate
}

// StackedTrace is the channel-averaged composite correlation trace used for
// trigger scanning.
type StackedTrace struct {
	SampleRate float64
	Start      time.Time
	Samples    []float64

	// NoiseLevel is the median absolute value of the nonzero samples, the
	// scale for the detection threshold.
	NoiseLevel float64
}

// Delta returns the sampling interval in seconds.
func (t StackedTrace) Delta() float64 {
	return 1.0 / t.SampleRate
}

// TimeAt returns the time of sample i.
func (t StackedTrace) TimeAt(i int) time.Time {
	return t.Start.Add(durationForSamples(i, t.SampleRate))
}

func durationForSamples(n int, rate float64) time.Duration {
	return time.Duration(math.Round(float64(n) / rate * float64(time.Second)))
}
