package source

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/seisscan/seisscan/internal/models"
)

// TravelTimes reads the static time corrections for one template. The table
// file <dir>/<index>.ttimes holds one "NET.STA.CHAN seconds" pair per line.
func (s *Source) TravelTimes(index int) (map[models.ChannelID]float64, error) {
	path := filepath.Join(s.TravelTimeDir, fmt.Sprintf("%d.ttimes", index))
	return ParseTravelTimeFile(path)
}

// ParseTravelTimeFile parses a travel-time table file.
func ParseTravelTimeFile(path string) (map[models.ChannelID]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open travel-time file: %w", err)
	}
	defer f.Close()

	table := make(map[models.ChannelID]float64)
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: want \"NET.STA.CHAN seconds\", got %q", path, lineNo, line)
		}
		id, err := models.ParseChannelID(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		sec, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid travel time %q: %w", path, lineNo, fields[1], err)
		}
		table[id] = sec
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read travel-time file: %w", err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("travel-time file %s is empty", path)
	}
	return table, nil
}
