package detect

import (
	"errors"
	"testing"
	"time"

	"github.com/seisscan/seisscan/internal/models"
)

// detectorFixture builds a unit whose three continuous channels carry an
// exact copy of their template at 1000 seconds into the day, on top of
// deterministic pseudo-random background.
func detectorFixture(t *testing.T) Unit {
	t.Helper()
	dayStart := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	const (
		rate        = 1.0
		contLen     = 2200
		tmplLen     = 64
		matchSample = 1000
	)

	stations := []string{"AAAA", "BBBB", "CCCC"}
	seeds := []uint32{101, 202, 303}

	var continuous []models.WaveformTrace
	var templates []models.WaveformTrace
	travelTimes := make(map[models.ChannelID]float64)

	for i, sta := range stations {
		id := models.ChannelID{Network: "IV", Station: sta, Channel: "HHZ"}
		samples := lcg(seeds[i], contLen)
		cont := models.WaveformTrace{ID: id, SampleRate: rate, Start: dayStart, Samples: samples}
		tmpl := models.WaveformTrace{
			ID:         id,
			SampleRate: rate,
			Start:      dayStart.Add(matchSample * time.Second),
			Samples:    append([]float64(nil), samples[matchSample:matchSample+tmplLen]...),
		}
		continuous = append(continuous, cont)
		templates = append(templates, tmpl)
		travelTimes[id] = 0
	}

	ts, err := models.NewTemplateSet(7, 2.4, templates)
	if err != nil {
		t.Fatalf("NewTemplateSet: %v", err)
	}

	return Unit{
		Day:         "240315",
		Template:    ts,
		TravelTimes: travelTimes,
		Continuous:  continuous,
		Params: Params{
			SampleTolerance:   6,
			CCThreshold:       0.35,
			MinChannelCount:   3,
			TemplateLength:    tmplLen - 1, // window of exactly tmplLen samples at 1 Hz
			TimePrecision:     2,
			ThresholdFactor:   8.0,
			StdUp:             9.0,
			StdDown:           0.2,
			OffExtension:      3.0,
			MinCoincidenceSum: 1.0,
		},
	}
}

func TestUnit_Run_DetectsEmbeddedTemplate(t *testing.T) {
	unit := detectorFixture(t)

	res, err := unit.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Detections) != 1 {
		t.Fatalf("got %d detections, want 1 (triggers=%d rejected=%d)",
			len(res.Detections), res.TriggerCount, res.RejectedCount)
	}

	d := res.Detections[0]
	if d.TemplateID != 7 || d.Day != "240315" || d.TriggerIndex != 0 {
		t.Errorf("unit coordinates wrong: %+v", d)
	}
	if d.ChannelCount != 3 {
		t.Errorf("channel count = %d, want 3", d.ChannelCount)
	}
	// Every channel correlates perfectly at the match.
	if d.Tier09 != 3 {
		t.Errorf("tier09 = %d, want 3", d.Tier09)
	}

	// All travel-time corrections are zero, so the origin time is the
	// trigger instant: 1000 s into the day.
	wantOrigin := time.Date(2024, 3, 15, 0, 16, 40, 0, time.UTC)
	if !d.OriginTime.Equal(wantOrigin) {
		t.Errorf("origin time = %v, want %v", d.OriginTime, wantOrigin)
	}

	// The detection is an exact template copy, so every channel reproduces
	// the template magnitude.
	if !d.MagnitudeOK {
		t.Fatal("magnitude should be available")
	}
	if d.Magnitude != 2.4 {
		t.Errorf("magnitude = %v, want 2.4", d.Magnitude)
	}
	if d.TemplateMagnitude != 2.4 {
		t.Errorf("template magnitude = %v, want 2.4", d.TemplateMagnitude)
	}

	if len(res.ChannelStats) != 3 {
		t.Errorf("got %d channel stats, want 3", len(res.ChannelStats))
	}
	if len(res.ChannelMagnitudes) != 3 {
		t.Errorf("got %d channel magnitudes, want 3", len(res.ChannelMagnitudes))
	}
	for _, cm := range res.ChannelMagnitudes {
		if cm.Magnitude != 2.4 {
			t.Errorf("channel magnitude = %v, want 2.4", cm.Magnitude)
		}
		if cm.TemplateID != 7 || cm.Day != "240315" {
			t.Errorf("channel magnitude coordinates wrong: %+v", cm)
		}
	}
}

func TestUnit_Run_Deterministic(t *testing.T) {
	unit := detectorFixture(t)

	first, err := unit.Run()
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := unit.Run()
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(first.Detections) != len(second.Detections) {
		t.Fatalf("reruns disagree: %d vs %d detections",
			len(first.Detections), len(second.Detections))
	}
	for i := range first.Detections {
		a, b := first.Detections[i], second.Detections[i]
		if a.ID != b.ID {
			t.Errorf("detection %d ID differs between reruns: %s vs %s", i, a.ID, b.ID)
		}
		if !a.OriginTime.Equal(b.OriginTime) || a.Magnitude != b.Magnitude {
			t.Errorf("detection %d payload differs between reruns", i)
		}
	}
}

func TestUnit_Run_TooFewChannels(t *testing.T) {
	unit := detectorFixture(t)
	unit.Continuous = unit.Continuous[:1]

	_, err := unit.Run()
	if !errors.Is(err, ErrNoUsableChannels) {
		t.Errorf("got %v, want ErrNoUsableChannels", err)
	}
}

func TestUnit_Run_MissingTravelTimeIsFatal(t *testing.T) {
	unit := detectorFixture(t)
	delete(unit.TravelTimes, unit.Continuous[0].ID)

	_, err := unit.Run()
	if !errors.Is(err, ErrMissingTravelTime) {
		t.Errorf("got %v, want ErrMissingTravelTime", err)
	}
}

func TestUnit_Run_ReportsSkippedChannels(t *testing.T) {
	unit := detectorFixture(t)
	unit.Params.MinChannelCount = 2

	// Corrupt data on one channel: it fails correlation and must show up in
	// the skip report rather than vanish silently.
	corrupt := unit.Continuous[2].ID
	unit.Continuous[2].Samples = nil

	res, err := unit.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.SkippedChannels) != 1 || res.SkippedChannels[0] != corrupt {
		t.Errorf("skipped channels = %v, want [%s]", res.SkippedChannels, corrupt)
	}
	if len(res.Detections) != 1 {
		t.Fatalf("got %d detections, want 1", len(res.Detections))
	}
	if res.Detections[0].ChannelCount != 2 {
		t.Errorf("channel count = %d, want 2", res.Detections[0].ChannelCount)
	}
}

func TestUnit_Run_SkipsChannelsWithoutTemplate(t *testing.T) {
	unit := detectorFixture(t)

	// An extra continuous channel with no template trace must not disturb
	// the result.
	extra := models.WaveformTrace{
		ID:         models.ChannelID{Network: "IV", Station: "XTRA", Channel: "HHZ"},
		SampleRate: 1.0,
		Start:      unit.Continuous[0].Start,
		Samples:    lcg(999, 2200),
	}
	unit.Continuous = append(unit.Continuous, extra)

	res, err := unit.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Detections) != 1 {
		t.Fatalf("got %d detections, want 1", len(res.Detections))
	}
	for _, st := range res.ChannelStats {
		if st.Channel.Station == "XTRA" {
			t.Error("template-less channel leaked into channel stats")
		}
	}
}
