package automation

import (
	"fmt"
	"time"
)

// Schedule determines when a job runs next.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time { return from.Add(s.every) }

func (s intervalSchedule) String() string { return fmt.Sprintf("every %v", s.every) }

type dailySchedule struct {
	hour   int
	minute int
}

func (s dailySchedule) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string { return fmt.Sprintf("daily at %02d:%02d", s.hour, s.minute) }

// Every runs a job at a fixed interval. Non-positive intervals become one
// hour.
func Every(d time.Duration) Schedule {
	if d <= 0 {
		d = time.Hour
	}
	return intervalSchedule{every: d}
}

// Daily runs a job once a day at hour:minute in the clock's location.
// Out-of-range values are clamped.
func Daily(hour, minute int) Schedule {
	return dailySchedule{hour: min(max(hour, 0), 23), minute: min(max(minute, 0), 59)}
}
