package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seisscan/seisscan/internal/detect"
	"github.com/seisscan/seisscan/internal/logger"
	"github.com/seisscan/seisscan/internal/models"
	"github.com/seisscan/seisscan/internal/storage"
)

func init() {
	logger.Init("error", "text")
}

// fakeSource serves one in-memory unit: three channels carrying an exact
// template copy 1000 seconds into the day.
type fakeSource struct {
	continuous  map[string][]models.WaveformTrace
	template    models.TemplateSet
	travelTimes map[models.ChannelID]float64

	dayErr error
}

func pseudoRandom(seed uint32, n int) []float64 {
	out := make([]float64, n)
	x := seed
	for i := range out {
		x = x*1103515245 + 12345
		out[i] = float64(x%100000)/50000 - 1
	}
	return out
}

func newFakeSource(t *testing.T, day string) *fakeSource {
	t.Helper()
	dayStart := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	const matchSample = 1000

	stations := []string{"AAAA", "BBBB", "CCCC"}
	var continuous []models.WaveformTrace
	var templates []models.WaveformTrace
	travelTimes := make(map[models.ChannelID]float64)

	for i, sta := range stations {
		id := models.ChannelID{Network: "IV", Station: sta, Channel: "HHZ"}
		samples := pseudoRandom(uint32(100*i+11), 2200)
		continuous = append(continuous, models.WaveformTrace{
			ID: id, SampleRate: 1, Start: dayStart, Samples: samples,
		})
		templates = append(templates, models.WaveformTrace{
			ID:         id,
			SampleRate: 1,
			Start:      dayStart.Add(matchSample * time.Second),
			Samples:    append([]float64(nil), samples[matchSample:matchSample+64]...),
		})
		travelTimes[id] = 0
	}

	ts, err := models.NewTemplateSet(0, 2.1, templates)
	if err != nil {
		t.Fatalf("NewTemplateSet: %v", err)
	}
	return &fakeSource{
		continuous:  map[string][]models.WaveformTrace{day: continuous},
		template:    ts,
		travelTimes: travelTimes,
	}
}

func (f *fakeSource) Day(day string) ([]models.WaveformTrace, error) {
	if f.dayErr != nil {
		return nil, f.dayErr
	}
	traces, ok := f.continuous[day]
	if !ok {
		return nil, errors.New("no data for day " + day)
	}
	return traces, nil
}

func (f *fakeSource) Template(index int, magnitude float64) (models.TemplateSet, error) {
	return f.template, nil
}

func (f *fakeSource) TravelTimes(index int) (map[models.ChannelID]float64, error) {
	return f.travelTimes, nil
}

type fakeNotifier struct {
	errors      int
	recoveries  int
	digestTotal int
	digestTop   int
	digests     int
}

func (f *fakeNotifier) SendError(err error) error { f.errors++; return nil }
func (f *fakeNotifier) SendRecovery(n int) error  { f.recoveries++; return nil }
func (f *fakeNotifier) SendDigest(total int, top []models.DetectionRecord) error {
	f.digests++
	f.digestTotal = total
	f.digestTop = len(top)
	return nil
}

func testParams() detect.Params {
	return detect.Params{
		SampleTolerance:   6,
		CCThreshold:       0.35,
		MinChannelCount:   3,
		TemplateLength:    63,
		TimePrecision:     2,
		ThresholdFactor:   8.0,
		StdUp:             9.0,
		StdDown:           0.2,
		OffExtension:      3.0,
		MinCoincidenceSum: 1.0,
	}
}

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func catalogEvents() []models.CatalogEvent {
	return []models.CatalogEvent{{Index: 0, Magnitude: 2.1}}
}

func TestRunner_Run(t *testing.T) {
	src := newFakeSource(t, "240315")
	store := newTestStorage(t)
	notifier := &fakeNotifier{}

	r := New(src, store, notifier, testParams(), 10)
	summary, err := r.Run(context.Background(), []string{"240315"}, catalogEvents())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.UnitsRun != 1 || summary.UnitsSkipped != 0 {
		t.Errorf("summary = %+v, want 1 unit run", summary)
	}
	if summary.TotalDetections != 1 {
		t.Errorf("total detections = %d, want 1", summary.TotalDetections)
	}

	dets, err := store.GetDetections(0, "240315")
	if err != nil {
		t.Fatalf("GetDetections: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("got %d persisted detections, want 1", len(dets))
	}
	if dets[0].Magnitude != 2.1 || !dets[0].MagnitudeOK {
		t.Errorf("persisted magnitude = %v (ok=%v), want 2.1",
			dets[0].Magnitude, dets[0].MagnitudeOK)
	}

	if notifier.digests != 1 || notifier.digestTotal != 1 || notifier.digestTop != 1 {
		t.Errorf("digest = %+v, want one digest with one detection", notifier)
	}
	if notifier.errors != 0 {
		t.Errorf("unexpected error notifications: %d", notifier.errors)
	}
}

func TestRunner_RerunIsIdempotent(t *testing.T) {
	src := newFakeSource(t, "240315")
	store := newTestStorage(t)

	r := New(src, store, nil, testParams(), 10)
	for i := 0; i < 2; i++ {
		if _, err := r.Run(context.Background(), []string{"240315"}, catalogEvents()); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}

	n, err := store.CountDetections()
	if err != nil {
		t.Fatalf("CountDetections: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d detections after rerun, want 1", n)
	}
}

func TestRunner_SkipsFailedDayAndRecovers(t *testing.T) {
	src := newFakeSource(t, "240316")
	store := newTestStorage(t)
	notifier := &fakeNotifier{}

	// First day has no data, second succeeds.
	r := New(src, store, notifier, testParams(), 10)
	summary, err := r.Run(context.Background(), []string{"240315", "240316"}, catalogEvents())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.UnitsRun != 1 || summary.UnitsSkipped != 1 {
		t.Errorf("summary = %+v, want 1 run and 1 skipped", summary)
	}
	if notifier.errors != 1 {
		t.Errorf("error notifications = %d, want 1 (first failure only)", notifier.errors)
	}
	if notifier.recoveries != 1 {
		t.Errorf("recovery notifications = %d, want 1", notifier.recoveries)
	}
}

func TestRunner_CancelledContext(t *testing.T) {
	src := newFakeSource(t, "240315")
	store := newTestStorage(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(src, store, nil, testParams(), 10)
	_, err := r.Run(ctx, []string{"240315"}, catalogEvents())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
