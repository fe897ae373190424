// Package detect implements the template-matching detection pipeline: the
// normalized sliding cross-correlator, channel alignment and stacking, the
// trigger state machine, single-channel validation, and magnitude estimation.
package detect

import "errors"

var (
	// ErrEmptyTrace is returned when a correlation input has no samples.
	ErrEmptyTrace = errors.New("detect: empty trace")

	// ErrTemplateTooLong is returned when the template is longer than the
	// continuous trace.
	ErrTemplateTooLong = errors.New("detect: template longer than continuous trace")

	// ErrNoUsableChannels is returned when fewer channels than the configured
	// minimum produced a correlation trace. The (template, day) unit is
	// skipped.
	ErrNoUsableChannels = errors.New("detect: not enough usable channels")

	// ErrMissingTravelTime is returned when a channel has no travel-time
	// entry. Fatal for the whole unit.
	ErrMissingTravelTime = errors.New("detect: missing travel-time entry")

	// ErrAllChannelsOutlier is returned when the stacking quality filter
	// removes every channel. Fatal for the unit, reported and not retried.
	ErrAllChannelsOutlier = errors.New("detect: quality filter removed all channels")

	// ErrMagnitudeUnavailable is returned when no per-channel magnitude
	// estimate survives outlier rejection. The detection is kept without a
	// magnitude.
	ErrMagnitudeUnavailable = errors.New("detect: no magnitude estimate survived")
)
