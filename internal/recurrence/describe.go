package recurrence

import (
	"fmt"
	"strings"

	"github.com/teambition/rrule-go"
)

var weekdayNames = [...]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

var freqUnits = map[rrule.Frequency][2]string{
	rrule.YEARLY:   {"yearly", "years"},
	rrule.MONTHLY:  {"monthly", "months"},
	rrule.WEEKLY:   {"weekly", "weeks"},
	rrule.DAILY:    {"daily", "days"},
	rrule.HOURLY:   {"hourly", "hours"},
	rrule.MINUTELY: {"every minute", "minutes"},
	rrule.SECONDLY: {"every second", "seconds"},
}

// Describe returns a short English summary of rule for list views, e.g.
// "Repeats every 2 weeks on Mon, Wed, 10 times". An empty rule describes
// as "", an unparseable one as "Custom repeat".
func Describe(rule string) string {
	if clean(rule) == "" {
		return ""
	}
	opt, err := Parse(rule)
	if err != nil {
		return "Custom repeat"
	}

	units, ok := freqUnits[opt.Freq]
	if !ok {
		return "Custom repeat"
	}

	var b strings.Builder
	if opt.Interval > 1 {
		fmt.Fprintf(&b, "Repeats every %d %s", opt.Interval, units[1])
	} else {
		b.WriteString("Repeats " + units[0])
	}

	if len(opt.Byweekday) > 0 {
		names := make([]string, 0, len(opt.Byweekday))
		for _, wd := range opt.Byweekday {
			names = append(names, weekdayLabel(wd))
		}
		b.WriteString(" on " + strings.Join(names, ", "))
	}
	if len(opt.Bymonthday) > 0 {
		days := make([]string, 0, len(opt.Bymonthday))
		for _, d := range opt.Bymonthday {
			days = append(days, ordinal(d))
		}
		b.WriteString(" on the " + strings.Join(days, ", "))
	}

	if opt.Count > 0 {
		fmt.Fprintf(&b, ", %d times", opt.Count)
	}
	if !opt.Until.IsZero() {
		b.WriteString(", until " + opt.Until.UTC().Format("2006-01-02"))
	}
	return b.String()
}

func weekdayLabel(wd rrule.Weekday) string {
	name := weekdayNames[wd.Day()%7]
	if n := wd.N(); n != 0 {
		return ordinal(n) + " " + name
	}
	return name
}

func ordinal(n int) string {
	switch {
	case n == -1:
		return "last"
	case n < -1:
		return ordinal(-n) + " last"
	}
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
