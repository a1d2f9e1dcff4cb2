// Package timeofday parses the "HH:MM" entries a schedule carries and
// combines them with calendar days in a governing time zone.
package timeofday

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTimeOfDay indicates the input is not a valid 24-hour "HH:MM".
var ErrInvalidTimeOfDay = errors.New("timeofday: invalid time of day")

// TimeOfDay is an offset into a calendar day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Parse converts a strict 24-hour "HH:MM" string into a TimeOfDay.
func Parse(value string) (TimeOfDay, error) {
	if len(value) != 5 || value[2] != ':' {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	hour, ok := twoDigits(value[0], value[1])
	if !ok || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	minute, ok := twoDigits(value[3], value[4])
	if !ok || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// At anchors the offset to the calendar day containing t, interpreted in loc.
func (tod TimeOfDay) At(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, tod.Hour, tod.Minute, 0, 0, loc)
}

// String renders the canonical zero-padded "HH:MM" form.
func (tod TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", tod.Hour, tod.Minute)
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}
