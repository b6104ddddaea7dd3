// Package edit applies user edits and deletes that target one occurrence of
// a possibly recurring event, deciding whether to patch a definition in
// place, split off an override record, or cut the series short.
package edit

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	appLog "wallcal/internal/log"
	"wallcal/internal/model"
	"wallcal/internal/occurrence"
	"wallcal/internal/recurrence"
	"wallcal/internal/store"
	"wallcal/internal/wallclock"
)

var (
	ErrNoSeries     = errors.New("occurrence has no series")
	ErrUnknownScope = errors.New("unknown delete scope")
)

// State is how an edited occurrence relates to its series.
type State int

const (
	NonRecurring State = iota
	EditingSeriesItself
	EditingOneOccurrence
	EditingExistingOverride
)

func (s State) String() string {
	switch s {
	case NonRecurring:
		return "non_recurring"
	case EditingSeriesItself:
		return "editing_series_itself"
	case EditingOneOccurrence:
		return "editing_one_occurrence"
	case EditingExistingOverride:
		return "editing_existing_override"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Scope selects what a delete removes.
type Scope string

const (
	ScopeThis          Scope = "this"
	ScopeThisAndFuture Scope = "thisAndFuture"
)

// ParseScope accepts "this" (also the empty string) and "thisAndFuture".
func ParseScope(s string) (Scope, error) {
	switch strings.TrimSpace(s) {
	case "", string(ScopeThis):
		return ScopeThis, nil
	case string(ScopeThisAndFuture):
		return ScopeThisAndFuture, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScope, s)
	}
}

// Ref identifies the occurrence an edit targets, as the view layer holds it.
type Ref struct {
	InstanceID string
	OriginalID string
	ParentID   string

	// Start is the occurrence's start as the client holds it. A composite
	// InstanceID's encoded start takes precedence.
	Start wallclock.Time
	End   wallclock.Time
}

// RefOf builds a Ref from an expanded occurrence.
func RefOf(occ model.Occurrence) Ref {
	return Ref{
		InstanceID: occ.InstanceID,
		OriginalID: occ.OriginalID,
		ParentID:   occ.ParentID,
		Start:      occ.Start,
		End:        occ.End,
	}
}

// ResolveParentID returns the id of the definition that owns ref, taking
// the first of: OriginalID, ParentID, the part of a composite InstanceID
// before "::", InstanceID itself.
func ResolveParentID(ref Ref) string {
	if ref.OriginalID != "" {
		return ref.OriginalID
	}
	if ref.ParentID != "" {
		return ref.ParentID
	}
	id, _, _ := occurrence.SplitInstanceID(ref.InstanceID)
	return id
}

// Target is the outcome of Classify.
type Target struct {
	State State
	// Definition is the record a save patches: the single event, the series,
	// or the existing override.
	Definition model.Definition
	// Series is the recurring definition, when there is one.
	Series *model.Definition
	// OccurrenceStart is the original start of the targeted occurrence.
	OccurrenceStart wallclock.Time
}

// Resolver routes edits and deletes to store writes.
type Resolver struct {
	store store.Store
}

func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Classify looks up the definitions behind ref and decides its State.
func (r *Resolver) Classify(ctx context.Context, ref Ref) (Target, error) {
	id := ResolveParentID(ref)
	if id == "" {
		return Target{}, ErrNoSeries
	}
	def, err := r.store.Get(ctx, id)
	if err != nil {
		return Target{}, fmt.Errorf("edit: %w", err)
	}

	_, encoded, composite := occurrence.SplitInstanceID(ref.InstanceID)
	if !composite && ref.InstanceID != "" && ref.InstanceID != def.ID {
		// a plain instance id naming an override of def
		ov, err := r.store.Get(ctx, ref.InstanceID)
		switch {
		case err == nil && ov.ParentID == def.ID:
			def = ov
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return Target{}, fmt.Errorf("edit: %w", err)
		}
	}

	// a composite id carries the original start; ref.Start may be a
	// display value such as a clipped day-view start
	start := def.Start
	switch {
	case composite:
		start = encoded
	case !ref.Start.IsZero():
		start = ref.Start
	}
	t := Target{Definition: def, OccurrenceStart: start}

	switch {
	case def.IsOverride():
		t.State = EditingExistingOverride
		if orig, err := wallclock.Parse(def.OverrideOf); err == nil {
			t.OccurrenceStart = orig
		}
		series, err := r.store.Get(ctx, def.ParentID)
		if err == nil {
			t.Series = &series
		} else if !errors.Is(err, store.ErrNotFound) {
			return Target{}, fmt.Errorf("edit: series of %s: %w", def.ID, err)
		}
		return t, nil

	case !def.IsRecurring():
		t.State = NonRecurring
		return t, nil
	}

	series := def
	t.Series = &series

	if ref.InstanceID == "" || ref.InstanceID == def.ID {
		t.State = EditingSeriesItself
		return t, nil
	}

	all, err := r.store.All(ctx)
	if err != nil {
		return Target{}, fmt.Errorf("edit: list definitions: %w", err)
	}
	if ov, ok := findOverride(all, def.ID, start); ok {
		t.State = EditingExistingOverride
		t.Definition = ov
		return t, nil
	}

	t.State = EditingOneOccurrence
	return t, nil
}

// Save applies patch to the occurrence ref points at and returns the
// definition the edit ended up in.
func (r *Resolver) Save(ctx context.Context, ref Ref, patch model.Patch) (model.Definition, error) {
	t, err := r.Classify(ctx, ref)
	if err != nil {
		return model.Definition{}, err
	}
	appLog.Debug("edit: save", "state", t.State, "id", t.Definition.ID, "occurrence", t.OccurrenceStart)

	switch t.State {
	case NonRecurring:
		return r.patchInPlace(ctx, t.Definition, patch)
	case EditingExistingOverride:
		return r.saveOverride(ctx, t, patch)
	case EditingSeriesItself:
		return r.saveSeries(ctx, t.Definition, patch)
	default:
		return r.splitOccurrence(ctx, t, ref, patch)
	}
}

func (r *Resolver) patchInPlace(ctx context.Context, def model.Definition, patch model.Patch) (model.Definition, error) {
	if err := validate(patch.Apply(def), patch); err != nil {
		return model.Definition{}, err
	}
	updated, err := r.store.Update(ctx, def.ID, patch)
	if err != nil {
		return model.Definition{}, fmt.Errorf("edit: update %s: %w", def.ID, err)
	}
	return updated, nil
}

func (r *Resolver) saveOverride(ctx context.Context, t Target, patch model.Patch) (model.Definition, error) {
	// an override never repeats
	patch.RepeatRule = nil
	patch.ExceptionDates = nil
	patch.ExtraDates = nil
	if patch.End != nil && !patch.End.IsZero() {
		patch.OwnDuration = model.Bool(true)
	}
	if err := validate(patch.Apply(t.Definition), patch); err != nil {
		return model.Definition{}, err
	}

	// heal a split whose exclusion write failed earlier
	var written []string
	if t.Series != nil {
		added, err := r.exclude(ctx, *t.Series, t.OccurrenceStart)
		if err != nil {
			return model.Definition{}, err
		}
		if added {
			written = append(written, t.Series.ID)
		}
	}

	updated, err := r.store.Update(ctx, t.Definition.ID, patch)
	if err != nil {
		return model.Definition{}, partial(written, fmt.Errorf("edit: update override %s: %w", t.Definition.ID, err))
	}
	return updated, nil
}

// saveSeries moves the whole series to a new time-of-day, keeping its date,
// and carries the change to exclusions, extra dates and override children.
func (r *Resolver) saveSeries(ctx context.Context, series model.Definition, patch model.Patch) (model.Definition, error) {
	newStart := series.Start
	if patch.Start != nil {
		newStart = series.Start.WithClockOf(*patch.Start)
	}
	delta := newStart.ClockOffset() - series.Start.ClockOffset()
	clockChanged := delta != 0

	durChanged := patch.End != nil && !patch.End.IsZero()
	newDur := series.Duration()
	if durChanged {
		from := series.Start
		if patch.Start != nil {
			from = *patch.Start
		}
		newDur = patch.End.Sub(from)
		if newDur <= 0 {
			return model.Definition{}, model.ErrInvalidTimeRange
		}
	}

	sp := patch
	sp.Start = model.Time(newStart)
	if durChanged || (series.End != nil && patch.End == nil) {
		sp.End = model.Time(newStart.Add(newDur))
	}

	updated := sp.Apply(series)
	if clockChanged {
		sp.ExceptionDates = model.Strings(withClock(updated.ExceptionDates, newStart))
		sp.ExtraDates = model.Strings(withClock(updated.ExtraDates, newStart))
		updated = sp.Apply(series)
	}
	if err := validate(updated, sp); err != nil {
		return model.Definition{}, err
	}

	var children []model.Definition
	if clockChanged || durChanged {
		all, err := r.store.All(ctx)
		if err != nil {
			return model.Definition{}, fmt.Errorf("edit: list definitions: %w", err)
		}
		children = childrenOf(all, series.ID)
	}

	saved, err := r.store.Update(ctx, series.ID, sp)
	if err != nil {
		return model.Definition{}, fmt.Errorf("edit: update series %s: %w", series.ID, err)
	}
	written := []string{series.ID}

	for _, child := range children {
		cp := shiftChild(child, delta, durChanged, newDur, newStart)
		if _, err := r.store.Update(ctx, child.ID, cp); err != nil {
			return saved, partial(written, fmt.Errorf("edit: shift override %s: %w", child.ID, err))
		}
		written = append(written, child.ID)
	}
	return saved, nil
}

// shiftChild moves an override by the series' time-of-day delta within the
// override's own date.
func shiftChild(child model.Definition, delta time.Duration, durChanged bool, newDur time.Duration, seriesStart wallclock.Time) model.Patch {
	const day = 24 * time.Hour
	clock := (child.Start.ClockOffset() + delta) % day
	if clock < 0 {
		clock += day
	}
	start := child.Start.Date().Add(clock)

	p := model.Patch{Start: model.Time(start)}
	switch {
	case durChanged && !child.OwnDuration:
		p.End = model.Time(start.Add(newDur))
	case child.End != nil:
		p.End = model.Time(start.Add(child.Duration()))
	}
	if orig, err := wallclock.Parse(child.OverrideOf); err == nil {
		p.OverrideOf = model.String(orig.WithClockOf(seriesStart).String())
	}
	return p
}

// splitOccurrence creates an override for one occurrence, then excludes the
// occurrence from its series.
func (r *Resolver) splitOccurrence(ctx context.Context, t Target, ref Ref, patch model.Patch) (model.Definition, error) {
	series := *t.Series
	occStart := t.OccurrenceStart
	occDur := series.Duration()
	if ref.Start.Equal(occStart) && ref.End.After(ref.Start) {
		occDur = ref.End.Sub(ref.Start)
	}

	ov := patch.Apply(series)
	ov.ID = ""
	ov.RepeatRule = ""
	ov.ExceptionDates = nil
	ov.ExtraDates = nil
	ov.ParentID = series.ID
	ov.OverrideOf = occStart.String()

	start := occStart
	if patch.Start != nil {
		start = *patch.Start
	}
	end := start.Add(occDur)
	ov.OwnDuration = patch.End != nil && !patch.End.IsZero()
	if ov.OwnDuration {
		end = *patch.End
	}
	ov.Start = start
	ov.End = model.Time(end)

	if err := ov.Validate(); err != nil {
		return model.Definition{}, err
	}

	created, err := r.store.Create(ctx, ov)
	if err != nil {
		return model.Definition{}, fmt.Errorf("edit: create override: %w", err)
	}
	if _, err := r.exclude(ctx, series, occStart); err != nil {
		return created, partial([]string{created.ID}, err)
	}
	return created, nil
}

// Delete removes the occurrence ref points at, or it and every later one.
func (r *Resolver) Delete(ctx context.Context, ref Ref, scope Scope) error {
	if scope != ScopeThis && scope != ScopeThisAndFuture {
		return fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	t, err := r.Classify(ctx, ref)
	if err != nil {
		return err
	}
	appLog.Debug("edit: delete", "state", t.State, "scope", scope, "id", t.Definition.ID, "occurrence", t.OccurrenceStart)

	switch {
	case t.State == NonRecurring:
		if err := r.store.Delete(ctx, t.Definition.ID); err != nil {
			return fmt.Errorf("edit: delete %s: %w", t.Definition.ID, err)
		}
		return nil

	case t.State == EditingExistingOverride && scope == ScopeThis:
		var written []string
		if t.Series != nil {
			added, err := r.exclude(ctx, *t.Series, t.OccurrenceStart)
			if err != nil {
				return err
			}
			if added {
				written = append(written, t.Series.ID)
			}
		}
		if err := r.store.Delete(ctx, t.Definition.ID); err != nil {
			return partial(written, fmt.Errorf("edit: delete override %s: %w", t.Definition.ID, err))
		}
		return nil

	case scope == ScopeThis:
		_, err := r.exclude(ctx, *t.Series, t.OccurrenceStart)
		return err
	}

	if t.Series == nil {
		return fmt.Errorf("edit: %s: %w", t.Definition.ID, ErrNoSeries)
	}
	return r.truncate(ctx, *t.Series, t.OccurrenceStart)
}

// truncate ends series just before cut and removes what lies at or after
// it. A cut at or before the first occurrence deletes the series.
func (r *Resolver) truncate(ctx context.Context, series model.Definition, cut wallclock.Time) error {
	all, err := r.store.All(ctx)
	if err != nil {
		return fmt.Errorf("edit: list definitions: %w", err)
	}
	children := childrenOf(all, series.ID)

	var written []string
	if !cut.After(series.Start) {
		if err := r.store.Delete(ctx, series.ID); err != nil {
			return fmt.Errorf("edit: delete series %s: %w", series.ID, err)
		}
		written = append(written, series.ID)
	} else {
		p := model.Patch{ExtraDates: model.Strings(before(series.ExtraDates, cut))}
		if series.RepeatRule != "" {
			rule, err := recurrence.WithUntil(series.RepeatRule, cut.Add(-time.Second))
			if err != nil {
				return fmt.Errorf("edit: cut series %s: %w", series.ID, err)
			}
			p.RepeatRule = model.String(rule)
		}
		if _, err := r.store.Update(ctx, series.ID, p); err != nil {
			return fmt.Errorf("edit: cut series %s: %w", series.ID, err)
		}
		written = append(written, series.ID)

		children = slices.DeleteFunc(children, func(c model.Definition) bool {
			return overriddenStart(c).Before(cut)
		})
	}

	for _, c := range children {
		if err := r.store.Delete(ctx, c.ID); err != nil {
			return partial(written, fmt.Errorf("edit: delete override %s: %w", c.ID, err))
		}
		written = append(written, c.ID)
	}
	return nil
}

// exclude adds start to the series' exception dates unless it is already
// there. It reports whether a write happened.
func (r *Resolver) exclude(ctx context.Context, series model.Definition, start wallclock.Time) (bool, error) {
	key := start.String()
	for _, raw := range series.ExceptionDates {
		if norm, err := wallclock.Normalize(raw); err == nil && norm == key {
			return false, nil
		}
	}
	ex := append(slices.Clone(series.ExceptionDates), key)
	if _, err := r.store.Update(ctx, series.ID, model.Patch{ExceptionDates: &ex}); err != nil {
		return false, fmt.Errorf("edit: exclude %s from %s: %w", key, series.ID, err)
	}
	return true, nil
}

func validate(d model.Definition, patch model.Patch) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if patch.RepeatRule != nil && *patch.RepeatRule != "" {
		if err := recurrence.Validate(*patch.RepeatRule); err != nil {
			return err
		}
	}
	return nil
}

func findOverride(all []model.Definition, seriesID string, start wallclock.Time) (model.Definition, bool) {
	for _, d := range all {
		if d.ParentID != seriesID || d.OverrideOf == "" {
			continue
		}
		if orig, err := wallclock.Parse(d.OverrideOf); err == nil && orig == start {
			return d, true
		}
	}
	return model.Definition{}, false
}

func childrenOf(all []model.Definition, seriesID string) []model.Definition {
	var out []model.Definition
	for _, d := range all {
		if d.ParentID == seriesID && d.ID != seriesID {
			out = append(out, d)
		}
	}
	return out
}

// overriddenStart is the original occurrence start an override replaces,
// falling back to its own start.
func overriddenStart(d model.Definition) wallclock.Time {
	if orig, err := wallclock.Parse(d.OverrideOf); err == nil {
		return orig
	}
	return d.Start
}

// withClock replaces the time-of-day of every parseable entry.
func withClock(dates []string, clock wallclock.Time) []string {
	if dates == nil {
		return nil
	}
	out := make([]string, len(dates))
	for i, raw := range dates {
		t, err := wallclock.Parse(raw)
		if err != nil {
			out[i] = raw
			continue
		}
		out[i] = t.WithClockOf(clock).String()
	}
	return out
}

// before keeps the entries strictly before cut. Unparseable entries are
// kept as written.
func before(dates []string, cut wallclock.Time) []string {
	out := make([]string, 0, len(dates))
	for _, raw := range dates {
		t, err := wallclock.Parse(raw)
		if err == nil && !t.Before(cut) {
			continue
		}
		out = append(out, raw)
	}
	return out
}
