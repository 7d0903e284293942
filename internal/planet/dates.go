package planet

import (
	"fmt"
	"strings"
	"time"
)

var dateLayouts = []string{"2006-01", "2006-01-02", "2006_01"}

// ParseDate parses YYYY-MM, YYYY-MM-DD or YYYY_MM and returns the first day of
// that month in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return monthStart(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("planet: invalid date %q (want YYYY-MM, YYYY-MM-DD or YYYY_MM)", s)
}

// Months returns the first day of every month in [start, end].
func Months(start, end time.Time) ([]time.Time, error) {
	start, end = monthStart(start), monthStart(end)
	if start.After(end) {
		return nil, fmt.Errorf("planet: start %s is after end %s", MonthKey(start), MonthKey(end))
	}
	var out []time.Time
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		out = append(out, m)
	}
	return out, nil
}

// MonthKey formats a month as YYYY_MM.
func MonthKey(t time.Time) string { return t.Format("2006_01") }

const (
	monthlyPrefix = "global_monthly_"
	monthlySuffix = "_mosaic"
)

// MonthlyMosaicName is the global monthly basemap for the month of t.
func MonthlyMosaicName(t time.Time) string {
	return monthlyPrefix + MonthKey(t) + monthlySuffix
}

// MonthlyMosaicNames lists the global monthly basemaps covering [start, end].
func MonthlyMosaicNames(start, end time.Time) ([]string, error) {
	months, err := Months(start, end)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(months))
	for i, m := range months {
		names[i] = MonthlyMosaicName(m)
	}
	return names, nil
}

// DefaultRange is the twelve full months before now.
func DefaultRange(now time.Time) (time.Time, time.Time) {
	end := monthStart(now).AddDate(0, -1, 0)
	return end.AddDate(0, -11, 0), end
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
