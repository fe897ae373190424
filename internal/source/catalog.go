package source

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/seisscan/seisscan/internal/models"
)

// LoadCatalog reads a ZMAP-style whitespace catalog: one event per line with
// columns lon, lat, year, month, day, magnitude, depth, hour, minute, second.
// The returned slice is ordered as in the file; the template index is the
// position in that order.
func LoadCatalog(path string) ([]models.CatalogEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	var events []models.CatalogEvent
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ev, err := parseCatalogLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		ev.Index = len(events)
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("catalog %s is empty", path)
	}
	return events, nil
}

func parseCatalogLine(line string) (models.CatalogEvent, error) {
	fields := strings.Fields(line)
	if len(fields) < 10 {
		return models.CatalogEvent{}, fmt.Errorf("want 10 columns, got %d", len(fields))
	}
	vals := make([]float64, 10)
	for i := 0; i < 10; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return models.CatalogEvent{}, fmt.Errorf("column %d: %w", i+1, err)
		}
		vals[i] = v
	}

	sec, frac := math.Modf(vals[9])
	origin := time.Date(
		int(vals[2]), time.Month(vals[3]), int(vals[4]),
		int(vals[7]), int(vals[8]), int(sec),
		int(math.Round(frac*1e9)), time.UTC,
	)
	return models.CatalogEvent{
		OriginTime: origin,
		Magnitude:  vals[5],
		Longitude:  vals[0],
		Latitude:   vals[1],
		Depth:      vals[6],
	}, nil
}

// LoadDays reads a day-list file: one YYMMDD key per line.
func LoadDays(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open day list: %w", err)
	}
	defer f.Close()

	var days []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		day := strings.TrimSpace(sc.Text())
		if day == "" {
			continue
		}
		if _, err := DayStart(day); err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read day list: %w", err)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("day list %s is empty", path)
	}
	return days, nil
}
