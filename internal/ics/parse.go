// Package ics reads and writes iCalendar data. Times are taken as wall-clock
// values exactly as written: TZID parameters and UTC designators never shift
// an event.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "wallcal/internal/log"
	"wallcal/internal/model"
	"wallcal/internal/wallclock"
)

var (
	ErrEmptyBody    = errors.New("empty ICS body")
	ErrMissingStart = errors.New("missing DTSTART")
)

// Parse turns every VEVENT in body into a Definition.
//
// A master event carries its UID as ID. An event with a RECURRENCE-ID becomes
// an override: its ID is empty, ParentID holds the master's UID and
// OverrideOf the replaced start. Import resolves those links against the
// ids a store assigns. Events that cannot be read are logged and skipped.
func Parse(body []byte) ([]model.Definition, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics: parse failed", err)
		return nil, fmt.Errorf("ics: %w", err)
	}

	defs := make([]model.Definition, 0)
	for _, ve := range cal.Events() {
		def, err := parseVEvent(ve)
		if err != nil {
			appLog.Error("ics: vevent skipped", err, "uid", ve.Id())
			continue
		}
		defs = append(defs, def)
	}

	appLog.Info("ics: parse completed", "event_count", len(defs))
	return defs, nil
}

func parseVEvent(ve *ical.VEvent) (model.Definition, error) {
	var def model.Definition

	uid := strings.TrimSpace(ve.Id())
	if uid == "" {
		uid = uuid.NewString()
	}
	def.ID = uid

	def.Title = text(ve, ical.ComponentPropertySummary)
	def.Location = text(ve, ical.ComponentPropertyLocation)
	def.Notes = text(ve, ical.ComponentPropertyDescription)

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return def, ErrMissingStart
	}
	start, err := wallclock.Parse(dtstart.Value)
	if err != nil {
		return def, fmt.Errorf("DTSTART: %w", err)
	}
	def.Start = start
	if tz := param(dtstart, ical.ParameterTzid); tz != "" {
		def.Timezone = tz
	}

	if dtend := ve.GetProperty(ical.ComponentPropertyDtEnd); dtend != nil {
		end, err := wallclock.Parse(dtend.Value)
		if err != nil {
			return def, fmt.Errorf("DTEND: %w", err)
		}
		if end.After(start) {
			def.End = model.Time(end)
		}
	} else if isDate(dtstart) {
		// an all-day event without DTEND lasts the day
		def.End = model.Time(start.AddDate(0, 0, 1))
	}

	if rr := ve.GetProperty(ical.ComponentPropertyRrule); rr != nil {
		def.RepeatRule = strings.TrimSpace(rr.Value)
	}
	def.ExceptionDates = dateList(ve.GetProperties(ical.ComponentPropertyExdate))
	def.ExtraDates = dateList(ve.GetProperties(ical.ComponentPropertyRdate))

	if rid := ve.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
		orig, err := wallclock.Parse(rid.Value)
		if err != nil {
			return def, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		def.ID = ""
		def.ParentID = uid
		def.OverrideOf = orig.String()
		def.RepeatRule = ""
		def.ExceptionDates = nil
		def.ExtraDates = nil
		def.OwnDuration = def.End != nil
	}

	for _, alarm := range ve.Alarms() {
		trig := alarm.GetProperty(ical.ComponentPropertyTrigger)
		if trig == nil || strings.EqualFold(param(trig, ical.ParameterRelated), "END") {
			continue
		}
		if mins, ok := triggerMinutes(trig.Value); ok {
			def.AlertOffsetMinutes = model.Int(mins)
			break
		}
	}

	return def, nil
}

func text(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}

func param(p *ical.IANAProperty, name ical.Parameter) string {
	if vs := p.ICalParameters[string(name)]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func isDate(p *ical.IANAProperty) bool {
	if strings.EqualFold(param(p, ical.ParameterValue), "DATE") {
		return true
	}
	return !strings.ContainsAny(p.Value, "Tt")
}

// dateList flattens EXDATE/RDATE properties, each possibly a comma list,
// into normalized wall-clock strings. PERIOD values and unreadable entries
// are dropped.
func dateList(props []*ical.IANAProperty) []string {
	var out []string
	for _, p := range props {
		if strings.EqualFold(param(p, ical.ParameterValue), "PERIOD") {
			continue
		}
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" || strings.Contains(part, "/") {
				continue
			}
			norm, err := wallclock.Normalize(part)
			if err != nil {
				appLog.Warn("ics: date entry skipped", "value", part, "err", err)
				continue
			}
			out = append(out, norm)
		}
	}
	return out
}

// triggerMinutes reads a VALARM TRIGGER duration that fires at or before
// the start ("-PT15M", "-P1D", "PT0S") as minutes before the start.
func triggerMinutes(v string) (int, bool) {
	v = strings.ToUpper(strings.TrimSpace(v))
	neg := strings.HasPrefix(v, "-")
	v = strings.TrimLeft(v, "+-")
	if !strings.HasPrefix(v, "P") {
		return 0, false
	}
	v = v[1:]

	var total, n int
	inTime := false
	digits := false
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			n = n*10 + int(r-'0')
			digits = true
			continue
		case r == 'T':
			inTime = true
			continue
		}
		if !digits {
			return 0, false
		}
		switch {
		case r == 'W' && !inTime:
			total += n * 7 * 24 * 60 * 60
		case r == 'D' && !inTime:
			total += n * 24 * 60 * 60
		case r == 'H' && inTime:
			total += n * 60 * 60
		case r == 'M' && inTime:
			total += n * 60
		case r == 'S' && inTime:
			total += n
		default:
			return 0, false
		}
		n, digits = 0, false
	}
	if digits {
		return 0, false
	}
	if total != 0 && !neg {
		return 0, false
	}
	return total / 60, true
}

// formatTrigger is the inverse of triggerMinutes.
func formatTrigger(minutes int) string {
	if minutes == 0 {
		return "PT0S"
	}
	return "-PT" + strconv.Itoa(minutes) + "M"
}
