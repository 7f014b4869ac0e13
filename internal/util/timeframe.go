package util

import (
	"time"

	"cryptobot/internal/domain"
)

// AlignToBar truncates t to the start of its tf bar in UTC.
func AlignToBar(t time.Time, tf domain.Timeframe) time.Time {
	d := tf.Duration()
	if d <= 0 {
		return t.UTC()
	}
	return t.UTC().Truncate(d)
}

// YearsBetween returns the UTC calendar years touched by [start, end).
func YearsBetween(start, end time.Time) []int {
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) {
		return nil
	}
	last := end.Add(-time.Nanosecond).Year()
	years := make([]int, 0, last-start.Year()+1)
	for y := start.Year(); y <= last; y++ {
		years = append(years, y)
	}
	return years
}
