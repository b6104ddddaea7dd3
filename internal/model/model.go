package model

import (
	"errors"
	"maps"
	"slices"
	"time"

	"wallcal/internal/wallclock"
)

// DefaultDuration is used when a definition has no end.
const DefaultDuration = time.Hour

var (
	ErrMissingStart     = errors.New("event start is required")
	ErrInvalidTimeRange = errors.New("event end must be after its start")
	ErrMissingTitle     = errors.New("event title is required")
)

// Definition is a stored event: either a single event, a recurring series,
// or an override record replacing one occurrence of a series.
//
// Start/End are naive wall-clock values. ExceptionDates and ExtraDates hold
// wall-clock ISO strings as written; they are normalized when expanded.
type Definition struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	Start wallclock.Time  `json:"dtstart"`
	End   *wallclock.Time `json:"dtend,omitempty"`

	RepeatRule     string   `json:"rrule,omitempty"`
	ExceptionDates []string `json:"exdate,omitempty"`
	ExtraDates     []string `json:"rdate,omitempty"`

	Location string `json:"location,omitempty"`
	Notes    string `json:"notes,omitempty"`

	// AlertOffsetMinutes is the reminder lead time. nil means no reminder.
	AlertOffsetMinutes *int `json:"alertOffsetMinutes,omitempty"`

	// Timezone is informational only; expansion never converts zones.
	Timezone string `json:"timezone,omitempty"`

	// ParentID links an override record back to its series.
	ParentID string `json:"parentId,omitempty"`
	// OverrideOf is the normalized original start of the occurrence this
	// override replaces.
	OverrideOf string `json:"overrideOf,omitempty"`
	// OwnDuration marks an override whose duration was set explicitly; series
	// duration changes do not touch it.
	OwnDuration bool `json:"ownDuration,omitempty"`

	Attributes map[string]string `json:"attributes,omitempty"`
}

// EffectiveEnd returns End, or Start plus DefaultDuration when End is unset.
func (d Definition) EffectiveEnd() wallclock.Time {
	if d.End == nil || d.End.IsZero() {
		return d.Start.Add(DefaultDuration)
	}
	return *d.End
}

// Duration is EffectiveEnd minus Start. It may be zero or negative for
// malformed input.
func (d Definition) Duration() time.Duration {
	return d.EffectiveEnd().Sub(d.Start)
}

// IsRecurring reports whether the definition yields more than its own
// start/end: a repeat rule or extra dates.
func (d Definition) IsRecurring() bool {
	return d.RepeatRule != "" || len(d.ExtraDates) > 0
}

func (d Definition) IsOverride() bool {
	return d.ParentID != ""
}

// Validate checks what the edit path must guarantee before persisting.
// Expansion does not call it.
func (d Definition) Validate() error {
	if !d.Start.Valid() {
		return ErrMissingStart
	}
	if d.End != nil && !d.End.IsZero() && !d.End.After(d.Start) {
		return ErrInvalidTimeRange
	}
	return nil
}

// Clone returns a deep copy, so callers can modify slices and maps without
// touching the original.
func (d Definition) Clone() Definition {
	out := d
	if d.End != nil {
		end := *d.End
		out.End = &end
	}
	if d.AlertOffsetMinutes != nil {
		v := *d.AlertOffsetMinutes
		out.AlertOffsetMinutes = &v
	}
	out.ExceptionDates = slices.Clone(d.ExceptionDates)
	out.ExtraDates = slices.Clone(d.ExtraDates)
	out.Attributes = maps.Clone(d.Attributes)
	return out
}

// Occurrence is one concrete instance produced by expansion. It carries a
// copy of every field of its definition.
type Occurrence struct {
	Definition

	// InstanceID is "<definitionID>::<start>" for rule and extra-date
	// occurrences, or the definition ID for a plain single event.
	InstanceID string `json:"instanceId"`
	// OriginalID is the ID of the owning definition.
	OriginalID string `json:"originalId"`

	Start wallclock.Time `json:"start"`
	End   wallclock.Time `json:"end"`

	// DisplayStart and DisplayEnd are set by day-view clipping. Start and
	// End always keep the real occurrence bounds.
	DisplayStart *wallclock.Time `json:"displayStart,omitempty"`
	DisplayEnd   *wallclock.Time `json:"displayEnd,omitempty"`
}

// Duration of this occurrence.
func (o Occurrence) Duration() time.Duration {
	return o.End.Sub(o.Start)
}
