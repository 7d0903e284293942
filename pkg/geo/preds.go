package geo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	latColumns = []string{"lat", "latitude", "y"}
	lonColumns = []string{"lon", "lng", "longitude", "x"}
)

// LoadPredsCSV reads point targets from a prediction table. Rows are kept when
// column equals value, compared numerically when both parse as numbers. An
// empty value keeps every row.
func LoadPredsCSV(path, column, value string) ([]Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open preds csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s is empty", ErrNoTargets, path)
		}
		return nil, fmt.Errorf("read preds header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	latCol, ok := lookup(idx, latColumns)
	if !ok {
		return nil, fmt.Errorf("preds csv %s: no latitude column", path)
	}
	lonCol, ok := lookup(idx, lonColumns)
	if !ok {
		return nil, fmt.Errorf("preds csv %s: no longitude column", path)
	}
	idCol, hasID := idx["id"]
	filterCol := -1
	if value != "" {
		c, ok := idx[strings.ToLower(column)]
		if !ok {
			return nil, fmt.Errorf("preds csv %s: no column %q", path, column)
		}
		filterCol = c
	}

	var targets []Target
	for row := 1; ; row++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read preds row %d: %w", row, err)
		}
		if filterCol >= 0 && !valueMatches(rec[filterCol], value) {
			continue
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(rec[latCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("preds row %d: latitude: %w", row, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(rec[lonCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("preds row %d: longitude: %w", row, err)
		}
		id := fmt.Sprintf("pred_%d", row)
		if hasID && strings.TrimSpace(rec[idCol]) != "" {
			id = strings.TrimSpace(rec[idCol])
		}
		props := make(map[string]any, len(header))
		for i, h := range header {
			props[h] = rec[i]
		}
		targets = append(targets, PointTarget(id, lon, lat, props))
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no rows of %s match %s=%q", ErrNoTargets, path, column, value)
	}
	return targets, nil
}

func lookup(idx map[string]int, names []string) (int, bool) {
	for _, n := range names {
		if i, ok := idx[n]; ok {
			return i, true
		}
	}
	return 0, false
}

func valueMatches(cell, want string) bool {
	cell = strings.TrimSpace(cell)
	a, errA := strconv.ParseFloat(cell, 64)
	b, errB := strconv.ParseFloat(want, 64)
	if errA == nil && errB == nil {
		return a == b
	}
	return cell == want
}
