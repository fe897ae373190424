// Package runner drives the batch scan: every catalog template against
// every requested day, each pairing run as an independent unit.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/seisscan/seisscan/internal/detect"
	"github.com/seisscan/seisscan/internal/logger"
	"github.com/seisscan/seisscan/internal/models"
	"github.com/seisscan/seisscan/internal/storage"
)

// DataSource loads the waveform inputs of one unit. *source.Source is the
// production implementation.
type DataSource interface {
	Day(day string) ([]models.WaveformTrace, error)
	Template(index int, magnitude float64) (models.TemplateSet, error)
	TravelTimes(index int) (map[models.ChannelID]float64, error)
}

// Notifier receives run-level notifications. *telegram.Client is the
// production implementation.
type Notifier interface {
	SendError(err error) error
	SendRecovery(failureCount int) error
	SendDigest(totalDetections int, top []models.DetectionRecord) error
}

// Summary aggregates what one batch run produced across all units.
type Summary struct {
	UnitsRun        int
	UnitsSkipped    int
	TotalTriggers   int
	TotalDetections int
	TotalRejected   int
}

// Runner wires the data source, the detection pipeline and the storage
// together for a batch run.
type Runner struct {
	src      DataSource
	store    *storage.Storage
	notifier Notifier // nil when notifications are disabled
	params   detect.Params
	topK     int

	consecutiveFailures int
}

// New creates a batch runner. notifier may be nil.
func New(src DataSource, store *storage.Storage, notifier Notifier, params detect.Params, topK int) *Runner {
	if topK < 1 {
		topK = 10
	}
	return &Runner{
		src:      src,
		store:    store,
		notifier: notifier,
		params:   params,
		topK:     topK,
	}
}

// Run scans every (template, day) pairing. A unit that cannot produce
// results is skipped with a warning; the scan only aborts on persistence
// failures or context cancellation.
func (r *Runner) Run(ctx context.Context, days []string, events []models.CatalogEvent) (Summary, error) {
	var summary Summary

	for _, ev := range events {
		template, err := r.src.Template(ev.Index, ev.Magnitude)
		if err != nil {
			logger.Warn("Skipping template %d: %v", ev.Index, err)
			summary.UnitsSkipped += len(days)
			continue
		}
		travelTimes, err := r.src.TravelTimes(ev.Index)
		if err != nil {
			logger.Warn("Skipping template %d: %v", ev.Index, err)
			summary.UnitsSkipped += len(days)
			continue
		}

		for _, day := range days {
			if err := ctx.Err(); err != nil {
				return summary, fmt.Errorf("scan cancelled: %w", err)
			}
			if err := r.runUnit(day, template, travelTimes, &summary); err != nil {
				return summary, err
			}
		}
	}

	if r.notifier != nil {
		top, err := r.store.TopDetections(r.topK)
		if err != nil {
			logger.Warn("Failed to load top detections for digest: %v", err)
		} else if err := r.notifier.SendDigest(summary.TotalDetections, top); err != nil {
			logger.Warn("Failed to send digest: %v", err)
		}
	}

	logger.Info("Scan complete: %d units run, %d skipped, %d triggers, %d detections, %d rejected",
		summary.UnitsRun, summary.UnitsSkipped, summary.TotalTriggers,
		summary.TotalDetections, summary.TotalRejected)
	return summary, nil
}

// runUnit executes one (template, day) unit and persists its output. Unit
// failures are absorbed here; only storage errors propagate.
func (r *Runner) runUnit(day string, template models.TemplateSet,
	travelTimes map[models.ChannelID]float64, summary *Summary) error {
	continuous, err := r.src.Day(day)
	if err != nil {
		r.recordFailure(template.Index, day, err)
		summary.UnitsSkipped++
		return nil
	}

	unit := detect.Unit{
		Day:         day,
		Template:    template,
		TravelTimes: travelTimes,
		Continuous:  continuous,
		Params:      r.params,
	}
	result, err := unit.Run()
	if err != nil {
		switch {
		case errors.Is(err, detect.ErrNoUsableChannels),
			errors.Is(err, detect.ErrAllChannelsOutlier):
			logger.Info("Unit template=%d day=%s produced no detections: %v",
				template.Index, day, err)
			summary.UnitsSkipped++
			r.recordSuccess()
		default:
			r.recordFailure(template.Index, day, err)
			summary.UnitsSkipped++
		}
		return nil
	}

	if err := r.store.SaveUnit(template.Index, day,
		result.Detections, result.ChannelStats, result.ChannelMagnitudes); err != nil {
		return fmt.Errorf("failed to persist unit template=%d day=%s: %w",
			template.Index, day, err)
	}

	if len(result.SkippedChannels) > 0 {
		logger.Warn("Unit template=%d day=%s skipped channels with unusable data: %v",
			template.Index, day, result.SkippedChannels)
	}
	if len(result.RemovedChannels) > 0 {
		logger.Debug("Unit template=%d day=%s removed outlier channels: %v",
			template.Index, day, result.RemovedChannels)
	}
	logger.Info("Unit template=%d day=%s: %d triggers, %d detections, %d rejected",
		template.Index, day, result.TriggerCount, len(result.Detections), result.RejectedCount)

	summary.UnitsRun++
	summary.TotalTriggers += result.TriggerCount
	summary.TotalDetections += len(result.Detections)
	summary.TotalRejected += result.RejectedCount
	r.recordSuccess()
	return nil
}

func (r *Runner) recordFailure(templateID int, day string, err error) {
	logger.Warn("Unit template=%d day=%s failed: %v", templateID, day, err)
	r.consecutiveFailures++
	if r.consecutiveFailures == 1 && r.notifier != nil {
		if nerr := r.notifier.SendError(err); nerr != nil {
			logger.Warn("Failed to send error notification: %v", nerr)
		}
	}
}

func (r *Runner) recordSuccess() {
	if r.consecutiveFailures > 0 && r.notifier != nil {
		if err := r.notifier.SendRecovery(r.consecutiveFailures); err != nil {
			logger.Warn("Failed to send recovery notification: %v", err)
		}
	}
	r.consecutiveFailures = 0
}
