package ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"wallcal/internal/model"
	"wallcal/internal/wallclock"
)

const basicLayout = "20060102T150405"

// Export writes defs as a VCALENDAR. Times are floating (no TZID, no Z). An
// override is written under its series' UID with a RECURRENCE-ID.
func Export(defs []model.Definition, w io.Writer) error {
	cal := ical.NewCalendarFor("wallcal")
	cal.SetMethod(ical.MethodPublish)
	stamp := time.Now().UTC()

	for _, def := range defs {
		uid := def.ID
		if def.IsOverride() {
			uid = def.ParentID
		}
		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(stamp)

		ev.SetProperty(ical.ComponentPropertyDtStart, basic(def.Start))
		if def.End != nil && def.End.After(def.Start) {
			ev.SetProperty(ical.ComponentPropertyDtEnd, basic(*def.End))
		}
		if def.Title != "" {
			ev.SetSummary(def.Title)
		}
		if def.Location != "" {
			ev.SetLocation(def.Location)
		}
		if def.Notes != "" {
			ev.SetDescription(def.Notes)
		}

		if def.IsOverride() {
			orig, err := wallclock.Parse(def.OverrideOf)
			if err != nil {
				return fmt.Errorf("ics: export %s: RECURRENCE-ID: %w", def.ID, err)
			}
			ev.SetProperty(ical.ComponentPropertyRecurrenceId, basic(orig))
		}
		if rule := strings.TrimPrefix(strings.TrimSpace(def.RepeatRule), "RRULE:"); rule != "" {
			ev.AddRrule(rule)
		}
		if ex := basicList(def.ExceptionDates); ex != "" {
			ev.AddExdate(ex)
		}
		if rd := basicList(def.ExtraDates); rd != "" {
			ev.AddRdate(rd)
		}

		if def.AlertOffsetMinutes != nil && *def.AlertOffsetMinutes >= 0 {
			alarm := ev.AddAlarm()
			alarm.SetAction(ical.ActionDisplay)
			alarm.SetTrigger(formatTrigger(*def.AlertOffsetMinutes))
			alarm.SetProperty(ical.ComponentPropertyDescription, def.Title)
		}
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("ics: export: %w", err)
	}
	return nil
}

func basic(t wallclock.Time) string {
	return t.Synthetic().Format(basicLayout)
}

// basicList joins the readable entries of dates as one comma separated
// value.
func basicList(dates []string) string {
	parts := make([]string, 0, len(dates))
	for _, raw := range dates {
		t, err := wallclock.Parse(raw)
		if err != nil {
			continue
		}
		parts = append(parts, basic(t))
	}
	return strings.Join(parts, ",")
}
