// Package window classifies timestamps into quiet, business and peak
// notification windows. Resolution is a pure function of the timestamp and
// schedule.
package window

import (
	"fmt"
	"time"

	"github.com/roimaishar/newser/internal/domain"
)

// ClockTime is a wall-clock time of day, independent of date.
type ClockTime struct {
	Hour   int
	Minute int
}

func (t ClockTime) minutes() int {
	return t.Hour*60 + t.Minute
}

func (t ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Schedule is the static window schedule for one recipient's locale.
type Schedule struct {
	Location      *time.Location
	QuietStart    ClockTime   // inclusive
	QuietEnd      ClockTime   // exclusive; quiet spans midnight when start > end
	PeakAnchors   []ClockTime // each anchor widens to anchor ± PeakHalfWidth
	PeakHalfWidth time.Duration
	PeakStoryCap  int
	StoryCap      int // quiet and business windows
}

// Default returns the stock schedule: quiet 23:00-07:00, peaks at 08:00,
// 12:00 and 18:00 (each ±30 minutes), Israel time.
func Default() Schedule {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		loc = time.UTC
	}
	return Schedule{
		Location:      loc,
		QuietStart:    ClockTime{Hour: 23},
		QuietEnd:      ClockTime{Hour: 7},
		PeakAnchors:   []ClockTime{{Hour: 8}, {Hour: 12}, {Hour: 18}},
		PeakHalfWidth: 30 * time.Minute,
		PeakStoryCap:  7,
		StoryCap:      5,
	}
}

// Validate rejects schedules that cannot partition the day cleanly.
func (s Schedule) Validate() error {
	if s.Location == nil {
		return fmt.Errorf("schedule: missing location")
	}
	if len(s.PeakAnchors) == 0 {
		return fmt.Errorf("schedule: no peak anchors")
	}
	if s.PeakHalfWidth <= 0 {
		return fmt.Errorf("schedule: peak half-width must be positive")
	}
	if s.PeakStoryCap <= 0 || s.StoryCap <= 0 {
		return fmt.Errorf("schedule: story caps must be positive")
	}

	// Every peak window must fall strictly inside the business range so that
	// quiet and peak never overlap.
	half := int(s.PeakHalfWidth.Minutes())
	for _, anchor := range s.PeakAnchors {
		if s.inQuietMinutes(anchor.minutes()-half) || s.inQuietMinutes(anchor.minutes()+half-1) {
			return fmt.Errorf("schedule: peak anchor %s overlaps quiet hours", anchor)
		}
	}
	return nil
}

// Resolve classifies a timestamp and returns the story cap for its window.
// Exactly one class applies to any timestamp.
func (s Schedule) Resolve(at time.Time) (domain.WindowClass, int) {
	local := at.In(s.Location)
	minutes := local.Hour()*60 + local.Minute()

	if s.inQuietMinutes(minutes) {
		return domain.WindowQuiet, s.StoryCap
	}
	if s.inPeakMinutes(minutes) {
		return domain.WindowPeak, s.PeakStoryCap
	}
	return domain.WindowBusiness, s.StoryCap
}

func (s Schedule) inQuietMinutes(minutes int) bool {
	minutes = ((minutes % 1440) + 1440) % 1440
	start, end := s.QuietStart.minutes(), s.QuietEnd.minutes()
	if start <= end {
		return minutes >= start && minutes < end
	}
	// Overnight range.
	return minutes >= start || minutes < end
}

func (s Schedule) inPeakMinutes(minutes int) bool {
	half := int(s.PeakHalfWidth.Minutes())
	for _, anchor := range s.PeakAnchors {
		delta := minutes - anchor.minutes()
		if delta >= -half && delta < half {
			return true
		}
	}
	return false
}

// NextPeakStart returns the opening edge of the first peak window after the
// given time. Rolls over to the next day's first anchor when no peak remains
// today.
func (s Schedule) NextPeakStart(after time.Time) time.Time {
	local := after.In(s.Location)
	minutes := local.Hour()*60 + local.Minute()
	half := int(s.PeakHalfWidth.Minutes())

	best := -1
	for _, anchor := range s.PeakAnchors {
		start := anchor.minutes() - half
		if start > minutes && (best == -1 || start < best) {
			best = start
		}
	}

	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.Location)
	if best >= 0 {
		return midnight.Add(time.Duration(best) * time.Minute)
	}

	// First anchor tomorrow.
	first := s.PeakAnchors[0].minutes() - half
	for _, anchor := range s.PeakAnchors[1:] {
		if start := anchor.minutes() - half; start < first {
			first = start
		}
	}
	return midnight.AddDate(0, 0, 1).Add(time.Duration(first) * time.Minute)
}

// NextBusinessStart returns the next moment business hours open (the quiet
// window's end). If the timestamp is already outside quiet hours it is
// returned unchanged.
func (s Schedule) NextBusinessStart(after time.Time) time.Time {
	local := after.In(s.Location)
	minutes := local.Hour()*60 + local.Minute()
	if !s.inQuietMinutes(minutes) {
		return after
	}

	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.Location)
	end := s.QuietEnd.minutes()
	if minutes < end {
		// Early morning, quiet ends later today.
		return midnight.Add(time.Duration(end) * time.Minute)
	}
	return midnight.AddDate(0, 0, 1).Add(time.Duration(end) * time.Minute)
}
