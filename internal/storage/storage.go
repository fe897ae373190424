// Package storage provides SQLite-backed persistence for detection records
// and their per-channel diagnostics.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/seisscan/seisscan/internal/models"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/seisscan/detections.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "seisscan", "detections.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS detections (
			id                 TEXT PRIMARY KEY,
			template_id        INTEGER NOT NULL,
			day                TEXT NOT NULL,
			trigger_index      INTEGER NOT NULL,
			origin_time        INTEGER NOT NULL,
			magnitude          REAL,
			magnitude_ok       INTEGER NOT NULL DEFAULT 0,
			template_magnitude REAL NOT NULL,
			channel_count      INTEGER NOT NULL,
			tier03             INTEGER NOT NULL,
			tier05             INTEGER NOT NULL,
			tier07             INTEGER NOT NULL,
			tier09             INTEGER NOT NULL,
			noise_level        REAL NOT NULL,
			mean_peak          REAL NOT NULL,
			peak_ratio         REAL NOT NULL,
			mean_peak_trig     REAL NOT NULL,
			peak_ratio_trig    REAL NOT NULL,
			coincidence_sum    REAL NOT NULL,
			peak_value         REAL NOT NULL,
			created_at         INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS channel_stats (
			detection_id  TEXT NOT NULL REFERENCES detections(id) ON DELETE CASCADE,
			template_id   INTEGER NOT NULL,
			day           TEXT NOT NULL,
			trigger_index INTEGER NOT NULL,
			network       TEXT NOT NULL,
			station       TEXT NOT NULL,
			channel       TEXT NOT NULL,
			exact_value   REAL NOT NULL,
			window_peak   REAL NOT NULL,
			sample_offset INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS channel_magnitudes (
			detection_id  TEXT NOT NULL REFERENCES detections(id) ON DELETE CASCADE,
			template_id   INTEGER NOT NULL,
			day           TEXT NOT NULL,
			trigger_index INTEGER NOT NULL,
			network       TEXT NOT NULL,
			station       TEXT NOT NULL,
			channel       TEXT NOT NULL,
			magnitude     REAL NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_detections_unit
			ON detections(template_id, day, trigger_index)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_origin ON detections(origin_time)`,
		`CREATE INDEX IF NOT EXISTS idx_channel_stats_det ON channel_stats(detection_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveUnit replaces the persisted output of one (template, day) unit with
// the given run result. Reruns are idempotent: the unit's old records are
// dropped inside the same transaction.
func (s *Storage) SaveUnit(templateID int, day string, detections []models.DetectionRecord,
	stats []models.ChannelStat, mags []models.ChannelMagnitude) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"detections", "channel_stats", "channel_magnitudes"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE template_id = ? AND day = ?`,
			templateID, day); err != nil {
			return fmt.Errorf("failed to clear %s for unit: %w", table, err)
		}
	}

	now := time.Now().UnixNano()
	byTrigger := make(map[int]string, len(detections))
	for i := range detections {
		d := &detections[i]
		if err := d.Validate(); err != nil {
			return fmt.Errorf("invalid detection: %w", err)
		}
		byTrigger[d.TriggerIndex] = d.ID
		_, err := tx.Exec(`
			INSERT INTO detections
				(id, template_id, day, trigger_index, origin_time, magnitude,
				 magnitude_ok, template_magnitude, channel_count,
				 tier03, tier05, tier07, tier09,
				 noise_level, mean_peak, peak_ratio, mean_peak_trig, peak_ratio_trig,
				 coincidence_sum, peak_value, created_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			d.ID, d.TemplateID, d.Day, d.TriggerIndex, d.OriginTime.UnixNano(),
			d.Magnitude, boolToInt(d.MagnitudeOK), d.TemplateMagnitude, d.ChannelCount,
			d.Tier03, d.Tier05, d.Tier07, d.Tier09,
			d.NoiseLevel, d.MeanPeak, d.PeakRatio, d.MeanPeakAtTrigger, d.PeakRatioAtTrigger,
			d.CoincidenceSum, d.PeakValue, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert detection: %w", err)
		}
	}

	for _, st := range stats {
		_, err := tx.Exec(`
			INSERT INTO channel_stats
				(detection_id, template_id, day, trigger_index,
				 network, station, channel, exact_value, window_peak, sample_offset)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			byTrigger[st.TriggerIndex], st.TemplateID, st.Day, st.TriggerIndex,
			st.Channel.Network, st.Channel.Station, st.Channel.Channel,
			st.Exact, st.WindowPeak, st.SampleOffset,
		)
		if err != nil {
			return fmt.Errorf("failed to insert channel stat: %w", err)
		}
	}

	for _, cm := range mags {
		_, err := tx.Exec(`
			INSERT INTO channel_magnitudes
				(detection_id, template_id, day, trigger_index,
				 network, station, channel, magnitude)
			VALUES (?,?,?,?,?,?,?,?)`,
			byTrigger[cm.TriggerIndex], cm.TemplateID, cm.Day, cm.TriggerIndex,
			cm.Channel.Network, cm.Channel.Station, cm.Channel.Channel, cm.Magnitude,
		)
		if err != nil {
			return fmt.Errorf("failed to insert channel magnitude: %w", err)
		}
	}

	return tx.Commit()
}

// GetDetections returns the persisted detections for one unit, ordered by
// trigger index.
func (s *Storage) GetDetections(templateID int, day string) ([]models.DetectionRecord, error) {
	rows, err := s.db.Query(`SELECT `+detectionCols+`
		FROM detections WHERE template_id = ? AND day = ?
		ORDER BY trigger_index`, templateID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()
	return scanDetections(rows)
}

// TopDetections returns the k detections with the highest peak-to-noise
// ratio across the whole run.
func (s *Storage) TopDetections(k int) ([]models.DetectionRecord, error) {
	rows, err := s.db.Query(`SELECT `+detectionCols+`
		FROM detections ORDER BY peak_ratio DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query top detections: %w", err)
	}
	defer rows.Close()
	return scanDetections(rows)
}

// GetChannelStats returns the validator diagnostics of one detection.
func (s *Storage) GetChannelStats(detectionID string) ([]models.ChannelStat, error) {
	rows, err := s.db.Query(`
		SELECT template_id, day, trigger_index, network, station, channel,
		       exact_value, window_peak, sample_offset
		FROM channel_stats WHERE detection_id = ?`, detectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel stats: %w", err)
	}
	defer rows.Close()

	var stats []models.ChannelStat
	for rows.Next() {
		var st models.ChannelStat
		if err := rows.Scan(
			&st.TemplateID, &st.Day, &st.TriggerIndex,
			&st.Channel.Network, &st.Channel.Station, &st.Channel.Channel,
			&st.Exact, &st.WindowPeak, &st.SampleOffset,
		); err != nil {
			return nil, fmt.Errorf("failed to scan channel stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// GetChannelMagnitudes returns the per-channel magnitude contributions of
// one detection.
func (s *Storage) GetChannelMagnitudes(detectionID string) ([]models.ChannelMagnitude, error) {
	rows, err := s.db.Query(`
		SELECT template_id, day, trigger_index, network, station, channel, magnitude
		FROM channel_magnitudes WHERE detection_id = ?`, detectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel magnitudes: %w", err)
	}
	defer rows.Close()

	var mags []models.ChannelMagnitude
	for rows.Next() {
		var cm models.ChannelMagnitude
		if err := rows.Scan(
			&cm.TemplateID, &cm.Day, &cm.TriggerIndex,
			&cm.Channel.Network, &cm.Channel.Station, &cm.Channel.Channel, &cm.Magnitude,
		); err != nil {
			return nil, fmt.Errorf("failed to scan channel magnitude: %w", err)
		}
		mags = append(mags, cm)
	}
	return mags, rows.Err()
}

// CountDetections returns the total number of persisted detections.
func (s *Storage) CountDetections() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM detections`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count detections: %w", err)
	}
	return n, nil
}

const detectionCols = `id, template_id, day, trigger_index, origin_time, magnitude,
	magnitude_ok, template_magnitude, channel_count,
	tier03, tier05, tier07, tier09,
	noise_level, mean_peak, peak_ratio, mean_peak_trig, peak_ratio_trig,
	coincidence_sum, peak_value, created_at`

func scanDetections(rows *sql.Rows) ([]models.DetectionRecord, error) {
	var dets []models.DetectionRecord
	for rows.Next() {
		var d models.DetectionRecord
		var originNano, createdNano int64
		var magOK int
		if err := rows.Scan(
			&d.ID, &d.TemplateID, &d.Day, &d.TriggerIndex, &originNano, &d.Magnitude,
			&magOK, &d.TemplateMagnitude, &d.ChannelCount,
			&d.Tier03, &d.Tier05, &d.Tier07, &d.Tier09,
			&d.NoiseLevel, &d.MeanPeak, &d.PeakRatio, &d.MeanPeakAtTrigger, &d.PeakRatioAtTrigger,
			&d.CoincidenceSum, &d.PeakValue, &createdNano,
		); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		d.OriginTime = time.Unix(0, originNano).UTC()
		d.MagnitudeOK = magOK != 0
		d.CreatedAt = time.Unix(0, createdNano)
		dets = append(dets, d)
	}
	return dets, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
