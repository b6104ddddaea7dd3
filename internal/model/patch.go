package model

import (
	"slices"

	"wallcal/internal/wallclock"
)

// Patch is a partial update of a Definition. Nil fields are left alone.
type Patch struct {
	Title    *string `json:"title,omitempty"`
	Location *string `json:"location,omitempty"`
	Notes    *string `json:"notes,omitempty"`

	Start *wallclock.Time `json:"dtstart,omitempty"`
	End   *wallclock.Time `json:"dtend,omitempty"`

	RepeatRule     *string   `json:"rrule,omitempty"`
	ExceptionDates *[]string `json:"exdate,omitempty"`
	ExtraDates     *[]string `json:"rdate,omitempty"`

	// AlertOffsetMinutes < 0 clears the reminder.
	AlertOffsetMinutes *int `json:"alertOffsetMinutes,omitempty"`

	Timezone    *string `json:"timezone,omitempty"`
	ParentID    *string `json:"parentId,omitempty"`
	OverrideOf  *string `json:"overrideOf,omitempty"`
	OwnDuration *bool   `json:"ownDuration,omitempty"`

	// Attributes are merged key by key; an empty value deletes the key.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Location == nil && p.Notes == nil &&
		p.Start == nil && p.End == nil && p.RepeatRule == nil &&
		p.ExceptionDates == nil && p.ExtraDates == nil &&
		p.AlertOffsetMinutes == nil && p.Timezone == nil &&
		p.ParentID == nil && p.OverrideOf == nil && p.OwnDuration == nil &&
		len(p.Attributes) == 0
}

// ChangesTime reports whether the patch moves start or end.
func (p Patch) ChangesTime() bool {
	return p.Start != nil || p.End != nil
}

// Apply returns a patched copy of d. d itself is not modified.
func (p Patch) Apply(d Definition) Definition {
	out := d.Clone()

	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Location != nil {
		out.Location = *p.Location
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.Start != nil {
		out.Start = *p.Start
	}
	if p.End != nil {
		if p.End.IsZero() {
			out.End = nil
		} else {
			end := *p.End
			out.End = &end
		}
	}
	if p.RepeatRule != nil {
		out.RepeatRule = *p.RepeatRule
	}
	if p.ExceptionDates != nil {
		out.ExceptionDates = slices.Clone(*p.ExceptionDates)
	}
	if p.ExtraDates != nil {
		out.ExtraDates = slices.Clone(*p.ExtraDates)
	}
	if p.AlertOffsetMinutes != nil {
		if *p.AlertOffsetMinutes < 0 {
			out.AlertOffsetMinutes = nil
		} else {
			v := *p.AlertOffsetMinutes
			out.AlertOffsetMinutes = &v
		}
	}
	if p.Timezone != nil {
		out.Timezone = *p.Timezone
	}
	if p.ParentID != nil {
		out.ParentID = *p.ParentID
	}
	if p.OverrideOf != nil {
		out.OverrideOf = *p.OverrideOf
	}
	if p.OwnDuration != nil {
		out.OwnDuration = *p.OwnDuration
	}
	if len(p.Attributes) > 0 {
		if out.Attributes == nil {
			out.Attributes = make(map[string]string, len(p.Attributes))
		}
		for k, v := range p.Attributes {
			if v == "" {
				delete(out.Attributes, k)
				continue
			}
			out.Attributes[k] = v
		}
		if len(out.Attributes) == 0 {
			out.Attributes = nil
		}
	}
	return out
}

// Helpers for building patches from literals.

func String(s string) *string { return &s }
func Int(n int) *int          { return &n }
func Bool(b bool) *bool       { return &b }
func Strings(s []string) *[]string {
	c := slices.Clone(s)
	return &c
}
func Time(t wallclock.Time) *wallclock.Time { return &t }
