package logic

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// TimeOfDay is a clock time with no date, stored as the offset from midnight.
// Valid values are in [0, 24h).
type TimeOfDay time.Duration

// NewTimeOfDay builds a TimeOfDay from its components. Out-of-range components
// wrap around the day.
func NewTimeOfDay(hour, min, sec int) TimeOfDay {
	d := time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute + time.Duration(sec)*time.Second
	return TimeOfDay(mod(d))
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return NewTimeOfDay(t.Hour(), t.Minute(), t.Second()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q (want HH:MM or HH:MM:SS)", s)
}

// ClockOf returns the time of day of t in loc. A nil loc uses t's own location.
func ClockOf(t time.Time, loc *time.Location) TimeOfDay {
	if loc != nil {
		t = t.In(loc)
	}
	h, m, s := t.Clock()
	return NewTimeOfDay(h, m, s) + TimeOfDay(t.Nanosecond())
}

// Before reports whether c is earlier in the day than o.
func (c TimeOfDay) Before(o TimeOfDay) bool { return c < o }

// After reports whether c is later in the day than o.
func (c TimeOfDay) After(o TimeOfDay) bool { return c > o }

// Until returns how far forward o is from c, wrapping past midnight.
// The result is in [0, 24h).
func (c TimeOfDay) Until(o TimeOfDay) time.Duration {
	return mod(time.Duration(o) - time.Duration(c))
}

func (c TimeOfDay) String() string {
	d := time.Duration(c)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if s == 0 {
		return fmt.Sprintf("%02d:%02d", h, m)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func mod(d time.Duration) time.Duration {
	d %= day
	if d < 0 {
		d += day
	}
	return d
}

// Window is the daily span during which samples are considered for rest
// detection. When To is earlier than From the window wraps past midnight.
type Window struct {
	Enabled  bool
	From     TimeOfDay
	To       TimeOfDay
	Location *time.Location // nil means each timestamp's own location
}

// Wraps reports whether the window crosses midnight.
func (w Window) Wraps() bool {
	return w.To.Before(w.From)
}

// OutOfRange reports whether ts falls outside the window. A disabled window
// never excludes anything. Both endpoints are inside the window.
func (w Window) OutOfRange(ts time.Time) bool {
	if !w.Enabled {
		return false
	}
	c := ClockOf(ts, w.Location)
	return w.From.Until(c) > w.From.Until(w.To)
}

func (w Window) String() string {
	if !w.Enabled {
		return "disabled"
	}
	return w.From.String() + "-" + w.To.String()
}
