// Package trend builds fixed-length recent activity series for sparklines.
package trend

import (
	"sort"
	"time"
)

// DefaultWindow is the number of most recent distinct dates kept.
const DefaultWindow = 14

// Point is one dated count. Points need not be unique or ordered.
type Point struct {
	Date  time.Time
	Count int
}

// Build collapses duplicate dates, sorts ascending and keeps the last window dates.
// With fewer than two points and total > 0 the result is [0, total] so a line is always drawable.
func Build(points []Point, total int, window int) []int {
	if window <= 0 {
		window = DefaultWindow
	}

	byDay := make(map[time.Time]int, len(points))
	for _, p := range points {
		day := truncateDay(p.Date)
		byDay[day] += p.Count
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	if len(days) > window {
		days = days[len(days)-window:]
	}

	if len(days) < 2 {
		if total > 0 {
			return []int{0, total}
		}
		return []int{}
	}

	out := make([]int, len(days))
	for i, d := range days {
		out[i] = byDay[d]
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
