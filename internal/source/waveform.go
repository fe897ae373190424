// Package source supplies the detection core with preprocessed waveforms,
// template sets, travel-time tables, and catalog records read from disk.
// Traces are expected to be already detrended and band-pass filtered by the
// preprocessing step that produced the dumps.
package source

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/seisscan/seisscan/internal/models"
)

// TraceExt is the file extension of preprocessed trace dumps.
const TraceExt = ".trc"

// templateZeroLimit excludes template channels dominated by zero samples.
const templateZeroLimit = 0.25

// traceHeader is the JSON first line of a trace dump; the remainder of the
// file is raw little-endian float64 samples.
type traceHeader struct {
	Network    string    `json:"network"`
	Station    string    `json:"station"`
	Channel    string    `json:"channel"`
	SampleRate float64   `json:"sample_rate"`
	StartTime  time.Time `json:"start_time"`
}

// Source reads waveform data for the batch runner. Selection filters with no
// entries accept everything.
type Source struct {
	ContinuousDir string
	TemplateDir   string
	TravelTimeDir string

	Networks []string
	Stations []string
	Channels []string

	MinChannelCount int
}

// ReadTraceFile reads one trace dump.
func ReadTraceFile(path string) (models.WaveformTrace, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.WaveformTrace{}, fmt.Errorf("failed to read trace file: %w", err)
	}
	nl := -1
	for i, b := range raw {
		if b == '\n' {
			nl = i
			break
		}
	}
	if nl < 0 {
		return models.WaveformTrace{}, fmt.Errorf("trace file %s: missing header line", path)
	}
	var hdr traceHeader
	if err := json.Unmarshal(raw[:nl], &hdr); err != nil {
		return models.WaveformTrace{}, fmt.Errorf("trace file %s: invalid header: %w", path, err)
	}
	body := raw[nl+1:]
	if len(body)%8 != 0 {
		return models.WaveformTrace{}, fmt.Errorf("trace file %s: truncated sample data", path)
	}
	samples := make([]float64, len(body)/8)
	for i := range samples {
		samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[i*8:]))
	}
	tr := models.WaveformTrace{
		ID: models.ChannelID{
			Network: hdr.Network,
			Station: hdr.Station,
			Channel: hdr.Channel,
		},
		SampleRate: hdr.SampleRate,
		Start:      hdr.StartTime.UTC(),
		Samples:    samples,
	}
	if err := tr.Validate(); err != nil {
		return models.WaveformTrace{}, fmt.Errorf("trace file %s: %w", path, err)
	}
	return tr, nil
}

// WriteTraceFile writes a trace dump in the format ReadTraceFile expects.
func WriteTraceFile(path string, tr models.WaveformTrace) error {
	hdr := traceHeader{
		Network:    tr.ID.Network,
		Station:    tr.ID.Station,
		Channel:    tr.ID.Channel,
		SampleRate: tr.SampleRate,
		StartTime:  tr.Start.UTC(),
	}
	head, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("failed to marshal trace header: %w", err)
	}
	buf := make([]byte, 0, len(head)+1+8*len(tr.Samples))
	buf = append(buf, head...)
	buf = append(buf, '\n')
	for _, v := range tr.Samples {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		buf = append(buf, b[:]...)
	}
	return os.WriteFile(path, buf, 0o644)
}

// DayStart parses a YYMMDD day key into the UTC midnight starting the day.
func DayStart(day string) (time.Time, error) {
	t, err := time.ParseInLocation("060102", day, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day key %q: %w", day, err)
	}
	return t, nil
}

// Day loads the continuous traces for one day key, applies the selection
// filters, and trims every trace to the exact 24 hour day window with zero
// fill, so a whole-day trace has round(86400*rate)+1 samples.
func (s *Source) Day(day string) ([]models.WaveformTrace, error) {
	start, err := DayStart(day)
	if err != nil {
		return nil, err
	}
	end := start.Add(24 * time.Hour)

	pattern := filepath.Join(s.ContinuousDir, day, "*"+TraceExt)
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list continuous traces: %w", err)
	}
	sort.Strings(files)

	var traces []models.WaveformTrace
	for _, f := range files {
		tr, err := ReadTraceFile(f)
		if err != nil {
			// Corrupt channel data: skip it, the unit continues with the rest.
			continue
		}
		if !tr.ID.Matches(s.Networks, s.Stations, s.Channels) {
			continue
		}
		traces = append(traces, tr.Trim(start, end))
	}
	if len(traces) == 0 {
		return nil, fmt.Errorf("no continuous traces for day %s under %s", day, s.ContinuousDir)
	}
	return traces, nil
}

// Template loads the template set for one catalog index. Template channels
// with 25% or more zero samples are excluded; a set with fewer channels than
// the configured minimum is unusable.
func (s *Source) Template(index int, magnitude float64) (models.TemplateSet, error) {
	pattern := filepath.Join(s.TemplateDir, fmt.Sprintf("%d", index), "*"+TraceExt)
	files, err := filepath.Glob(pattern)
	if err != nil {
		return models.TemplateSet{}, fmt.Errorf("failed to list template traces: %w", err)
	}
	sort.Strings(files)

	var traces []models.WaveformTrace
	for _, f := range files {
		tr, err := ReadTraceFile(f)
		if err != nil {
			continue
		}
		if !tr.ID.Matches(s.Networks, s.Stations, s.Channels) {
			continue
		}
		if tr.ZeroFraction() >= templateZeroLimit {
			continue
		}
		traces = append(traces, tr)
	}
	if len(traces) < s.MinChannelCount {
		return models.TemplateSet{}, fmt.Errorf("template %d: %d usable channels, need %d",
			index, len(traces), s.MinChannelCount)
	}
	return models.NewTemplateSet(index, magnitude, traces)
}
