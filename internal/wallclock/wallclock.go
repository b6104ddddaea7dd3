// Package wallclock models naive wall-clock timestamps.
//
// A Time is the six fields a user typed (year, month, day, hour, minute,
// second) with no zone attached. Recurrence arithmetic never sees a real
// zone: Synthetic encodes the fields as a UTC instant with identical numeric
// values, the rule library does its math in that space, and FromSynthetic
// reads the fields back out. The two functions are the only boundary between
// wall-clock space and instant space used by expansion, so DST transitions
// and zone offsets cannot move an occurrence.
//
// In is the single exit into real time, used where an occurrence has to be
// compared against "now" (reminders) or viewed in a zone (date grouping).
package wallclock

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	isoLayout   = "2006-01-02T15:04:05"
	dateLayout  = "2006-01-02"
	untilLayout = "20060102T150405Z"
)

var (
	ErrEmpty   = errors.New("wallclock: empty timestamp")
	ErrInvalid = errors.New("wallclock: invalid timestamp")
)

// Accepted input layouts, tried in order after any zone suffix is removed.
// Fractional seconds are accepted by time.Parse after a seconds field and
// are dropped.
var parseLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"20060102T150405",
	"20060102T1504",
	"20060102",
}

// Time is a naive wall-clock timestamp.
type Time struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

// Date builds a Time from its fields. Out-of-range fields are normalized the
// same way time.Date normalizes them.
func Date(year int, month time.Month, day, hour, minute, second int) Time {
	return FromSynthetic(time.Date(year, month, day, hour, minute, second, 0, time.UTC))
}

// Parse extracts the wall-clock fields of an ISO-8601 string as written.
// A trailing "Z" or numeric offset is discarded without converting, so
// "2025-11-01T17:45:00+08:00" and "2025-11-01T17:45:00Z" both yield 17:45.
// The compact iCalendar forms (20251101T174500Z, 20251101) are accepted too.
func Parse(s string) (Time, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return Time{}, ErrEmpty
	}
	v = stripZone(v)

	for _, layout := range parseLayouts {
		t, err := time.ParseInLocation(layout, v, time.UTC)
		if err == nil {
			return FromSynthetic(t), nil
		}
	}
	return Time{}, fmt.Errorf("%w: %q", ErrInvalid, s)
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(s string) Time {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Normalize returns the canonical no-offset form of s. Exception dates are
// compared in this form.
func Normalize(s string) (string, error) {
	t, err := Parse(s)
	if err != nil {
		return "", err
	}
	return t.String(), nil
}

// stripZone removes a zone designator following the time-of-day part:
// "Z", "+08:00", "-0500", "+09". Date-only strings are returned unchanged so
// the dashes of the date are never mistaken for an offset.
func stripZone(v string) string {
	tIdx := strings.IndexAny(v, "Tt")
	if tIdx < 0 && len(v) > len(dateLayout) && v[len(dateLayout)] == ' ' {
		tIdx = len(dateLayout)
	}
	if tIdx < 0 {
		return v
	}

	if last := v[len(v)-1]; last == 'Z' || last == 'z' {
		v = v[:len(v)-1]
	}
	if i := strings.LastIndexAny(v[tIdx:], "+-"); i >= 0 {
		v = v[:tIdx+i]
	}
	return v
}

// FromSynthetic decodes an instant produced by Synthetic (or by the rule
// engine working in synthetic space) back into wall-clock fields. The
// numeric UTC fields are read as-is; they are never treated as a real UTC
// moment to be converted.
func FromSynthetic(t time.Time) Time {
	u := t.UTC()
	return Time{
		Year:   u.Year(),
		Month:  u.Month(),
		Day:    u.Day(),
		Hour:   u.Hour(),
		Minute: u.Minute(),
		Second: u.Second(),
	}
}

// Of captures the wall-clock fields of t as seen in t's own location.
func Of(t time.Time) Time {
	return Time{
		Year:   t.Year(),
		Month:  t.Month(),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

// Synthetic encodes t as a UTC instant whose numeric fields equal the
// wall-clock fields.
func (t Time) Synthetic() time.Time {
	return time.Date(t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second, 0, time.UTC)
}

// In interprets the wall clock in loc. Only the view and reminder
// boundaries call this; expansion never does.
func (t Time) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second, 0, loc)
}

func (t Time) IsZero() bool {
	return t == Time{}
}

// Valid reports whether every field is within its calendar range.
func (t Time) Valid() bool {
	if t.IsZero() {
		return false
	}
	return FromSynthetic(t.Synthetic()) == t
}

// String formats t as YYYY-MM-DDTHH:MM:SS with no offset.
func (t Time) String() string {
	return t.Synthetic().Format(isoLayout)
}

// DateString formats the calendar date of t as YYYY-MM-DD.
func (t Time) DateString() string {
	return t.Synthetic().Format(dateLayout)
}

// UntilString formats t as an RRULE UNTIL value (YYYYMMDDTHHMMSSZ) built
// from the synthetic fields, not from a real UTC conversion.
func (t Time) UntilString() string {
	return t.Synthetic().Format(untilLayout)
}

func (t Time) Add(d time.Duration) Time {
	return FromSynthetic(t.Synthetic().Add(d))
}

func (t Time) AddDate(years, months, days int) Time {
	return FromSynthetic(t.Synthetic().AddDate(years, months, days))
}

func (t Time) Sub(u Time) time.Duration {
	return t.Synthetic().Sub(u.Synthetic())
}

func (t Time) Compare(u Time) int {
	return t.Synthetic().Compare(u.Synthetic())
}

func (t Time) Before(u Time) bool { return t.Compare(u) < 0 }
func (t Time) After(u Time) bool  { return t.Compare(u) > 0 }
func (t Time) Equal(u Time) bool  { return t.Compare(u) == 0 }

// Date returns midnight of t's calendar date.
func (t Time) Date() Time {
	return Time{Year: t.Year, Month: t.Month, Day: t.Day}
}

// ClockOffset is the time-of-day of t as a duration since midnight.
func (t Time) ClockOffset() time.Duration {
	return time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second
}

// WithClock keeps t's date and replaces the time-of-day.
func (t Time) WithClock(hour, minute, second int) Time {
	return Date(t.Year, t.Month, t.Day, hour, minute, second)
}

// WithClockOf keeps t's date and takes the time-of-day from u.
func (t Time) WithClockOf(u Time) Time {
	return t.WithClock(u.Hour, u.Minute, u.Second)
}

func (t Time) MarshalText() ([]byte, error) {
	if t.IsZero() {
		return []byte{}, nil
	}
	return []byte(t.String()), nil
}

func (t *Time) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = Time{}
		return nil
	}
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
