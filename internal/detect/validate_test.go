package detect

import (
	"math"
	"testing"
	"time"

	"github.com/seisscan/seisscan/internal/models"
)

func validateFixture(t *testing.T) ([]models.CorrelationTrace, models.StackedTrace, models.TriggerCandidate) {
	t.Helper()
	start := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	rate := 100.0

	mk := func(station string) models.CorrelationTrace {
		return models.CorrelationTrace{
			ID:         models.ChannelID{Network: "IV", Station: station, Channel: "HHZ"},
			SampleRate: rate,
			Start:      start,
			Samples:    make([]float64, 200),
		}
	}

	// Nominal trigger sample is 100. Channel peaks sit at slightly
	// different offsets, as real sub-sample misalignment produces.
	a := mk("AAAA")
	a.Samples[100] = 0.40
	a.Samples[103] = 0.80
	b := mk("BBBB")
	b.Samples[97] = 0.60
	b.Samples[100] = 0.30
	c := mk("CCCC")
	c.Samples[100] = 0.45

	stacked := models.StackedTrace{SampleRate: rate, Start: start}
	trigger := models.TriggerCandidate{Time: start.Add(time.Second)}
	return []models.CorrelationTrace{a, b, c}, stacked, trigger
}

func TestValidateTrigger_Accepted(t *testing.T) {
	aligned, stacked, trigger := validateFixture(t)
	opts := ValidateOptions{SampleTolerance: 6, ChannelThreshold: 0.35, MinChannelCount: 3}

	res := ValidateTrigger(aligned, stacked, trigger, 0.05, opts)
	if !res.Accepted {
		t.Fatal("trigger should be accepted")
	}
	if res.ChannelCount != 3 {
		t.Errorf("channel count = %d, want 3", res.ChannelCount)
	}

	wantMeanPeak := (0.80 + 0.60 + 0.45) / 3
	if math.Abs(res.MeanPeak-wantMeanPeak) > 1e-12 {
		t.Errorf("mean peak = %v, want %v", res.MeanPeak, wantMeanPeak)
	}
	wantMeanExact := (0.40 + 0.30 + 0.45) / 3
	if math.Abs(res.MeanPeakAtTrigger-wantMeanExact) > 1e-12 {
		t.Errorf("mean exact = %v, want %v", res.MeanPeakAtTrigger, wantMeanExact)
	}
	if math.Abs(res.PeakRatio-wantMeanPeak/0.05) > 1e-9 {
		t.Errorf("peak ratio = %v, want %v", res.PeakRatio, wantMeanPeak/0.05)
	}

	if res.Tier03 != 3 || res.Tier05 != 2 || res.Tier07 != 1 || res.Tier09 != 0 {
		t.Errorf("tiers = %d/%d/%d/%d, want 3/2/1/0",
			res.Tier03, res.Tier05, res.Tier07, res.Tier09)
	}

	if len(res.Channels) != 3 {
		t.Fatalf("got %d channel stats, want 3", len(res.Channels))
	}
	// Signed peak offset relative to the nominal trigger sample.
	if res.Channels[0].SampleOffset != -3 { // peak at 103
		t.Errorf("channel A offset = %d, want -3", res.Channels[0].SampleOffset)
	}
	if res.Channels[1].SampleOffset != 3 { // peak at 97
		t.Errorf("channel B offset = %d, want 3", res.Channels[1].SampleOffset)
	}
	if res.Channels[2].SampleOffset != 0 { // peak at the nominal sample
		t.Errorf("channel C offset = %d, want 0", res.Channels[2].SampleOffset)
	}
	if res.Channels[0].WindowPeak != 0.80 || res.Channels[0].Exact != 0.40 {
		t.Errorf("channel A stats = %+v", res.Channels[0])
	}
}

func TestValidateTrigger_Rejected(t *testing.T) {
	aligned, stacked, trigger := validateFixture(t)
	// Raising the per-channel threshold leaves only two supporting channels.
	opts := ValidateOptions{SampleTolerance: 6, ChannelThreshold: 0.55, MinChannelCount: 3}

	res := ValidateTrigger(aligned, stacked, trigger, 0.05, opts)
	if res.Accepted {
		t.Fatal("trigger should be rejected")
	}
	// Rejection sentinel: every aggregate field reads 1
	if res.ChannelCount != 1 || res.MeanPeak != 1 || res.PeakRatio != 1 ||
		res.MeanPeakAtTrigger != 1 || res.PeakRatioAtTrigger != 1 ||
		res.Tier03 != 1 || res.Tier05 != 1 || res.Tier07 != 1 || res.Tier09 != 1 {
		t.Errorf("rejection sentinel not all ones: %+v", res)
	}
	if len(res.Channels) != 0 {
		t.Errorf("rejected result should carry no channel stats")
	}
}

func TestValidateTrigger_WindowClampedAtEdges(t *testing.T) {
	aligned, stacked, _ := validateFixture(t)
	opts := ValidateOptions{SampleTolerance: 6, ChannelThreshold: 0.35, MinChannelCount: 1}

	// Trigger right at the trace start: the search window is clamped, not
	// an out-of-range access.
	early := models.TriggerCandidate{Time: stacked.Start}
	res := ValidateTrigger(aligned, stacked, early, 0.05, opts)
	if res.Accepted {
		t.Error("early trigger over zero samples should be rejected")
	}

	// Trigger past the trace end behaves the same.
	late := models.TriggerCandidate{Time: stacked.Start.Add(10 * time.Second)}
	res = ValidateTrigger(aligned, stacked, late, 0.05, opts)
	if res.Accepted {
		t.Error("late trigger over zero samples should be rejected")
	}
}

func TestValidateTrigger_ZeroNoiseLevel(t *testing.T) {
	aligned, stacked, trigger := validateFixture(t)
	opts := ValidateOptions{SampleTolerance: 6, ChannelThreshold: 0.35, MinChannelCount: 3}

	res := ValidateTrigger(aligned, stacked, trigger, 0, opts)
	if !res.Accepted {
		t.Fatal("trigger should be accepted")
	}
	if res.PeakRatio != 0 || res.PeakRatioAtTrigger != 0 {
		t.Errorf("zero noise should give zero ratios, got %v and %v",
			res.PeakRatio, res.PeakRatioAtTrigger)
	}
}
