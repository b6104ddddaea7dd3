// Package occurrence turns stored definitions into the concrete occurrences
// of a query window, and indexes them by date for calendar views.
package occurrence

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	appLog "wallcal/internal/log"
	"wallcal/internal/model"
	"wallcal/internal/recurrence"
	"wallcal/internal/wallclock"
)

const (
	defaultMaxOccurrencesPerDefinition = 5000

	instanceSep = "::"
)

var errCapReached = errors.New("max occurrences reached")

// Config controls expansion.
type Config struct {
	// MaxOccurrencesPerDefinition caps what one repeat rule may yield for a
	// single window. If zero, defaultMaxOccurrencesPerDefinition is used.
	MaxOccurrencesPerDefinition int
}

// Skip records a definition, or part of one, that expansion had to drop.
type Skip struct {
	DefinitionID string
	Err          error
}

func (s Skip) Error() string {
	return fmt.Sprintf("definition %s: %v", s.DefinitionID, s.Err)
}

// Result wraps the expanded occurrences and what expansion had to leave out.
type Result struct {
	Occurrences []model.Occurrence
	// Truncated records definition IDs whose rule hit the cap.
	Truncated []string
	// Skipped lists per-definition failures: bad rules, bad timestamps,
	// unparseable extra or exception dates.
	Skipped []Skip
}

// Expand materializes every occurrence of defs overlapping the half-open
// window [windowStart, windowEnd), sorted by start. defs is not modified.
func Expand(defs []model.Definition, windowStart, windowEnd wallclock.Time) []model.Occurrence {
	return ExpandWithConfig(defs, windowStart, windowEnd, Config{}).Occurrences
}

// ExpandWithConfig is Expand with an explicit Config and a full Result.
//
// Failures are contained per definition: a malformed rule only drops the
// rule's occurrences, a bad start drops the whole definition, and neither
// affects other definitions.
func ExpandWithConfig(defs []model.Definition, windowStart, windowEnd wallclock.Time, cfg Config) Result {
	var result Result
	if cfg.MaxOccurrencesPerDefinition <= 0 {
		cfg.MaxOccurrencesPerDefinition = defaultMaxOccurrencesPerDefinition
	}

	all := make([]model.Occurrence, 0, len(defs))
	for _, def := range defs {
		occs, truncated, skips := expandDefinition(def, windowStart, windowEnd, cfg)
		all = append(all, occs...)
		result.Skipped = append(result.Skipped, skips...)

		if truncated {
			result.Truncated = append(result.Truncated, def.ID)
			appLog.Error("expand: truncated occurrences for definition due to cap",
				errCapReached,
				"id", def.ID,
				"cap", cfg.MaxOccurrencesPerDefinition,
			)
		}
	}

	slices.SortStableFunc(all, func(a, b model.Occurrence) int {
		return a.Start.Compare(b.Start)
	})
	result.Occurrences = all
	return result
}

// expander holds the per-definition state of one expansion.
type expander struct {
	def         model.Definition
	duration    time.Duration
	windowStart wallclock.Time
	windowEnd   wallclock.Time

	seen map[wallclock.Time]struct{}
	out  []model.Occurrence
}

func expandDefinition(def model.Definition, ws, we wallclock.Time, cfg Config) ([]model.Occurrence, bool, []Skip) {
	var skips []Skip
	skip := func(err error, kv ...any) {
		skips = append(skips, Skip{DefinitionID: def.ID, Err: err})
		appLog.Error("expand: skipping", err, append([]any{"id", def.ID}, kv...)...)
	}

	if !def.Start.Valid() {
		skip(model.ErrMissingStart)
		return nil, false, skips
	}
	if def.End != nil && !def.End.IsZero() && !def.End.Valid() {
		skip(fmt.Errorf("%w: end %v", wallclock.ErrInvalid, *def.End))
		return nil, false, skips
	}

	e := &expander{
		def:         def,
		duration:    def.Duration(),
		windowStart: ws,
		windowEnd:   we,
		seen:        make(map[wallclock.Time]struct{}),
	}

	truncated := false
	if def.RepeatRule != "" {
		starts, hitCap, err := e.ruleStarts(cfg.MaxOccurrencesPerDefinition)
		if err != nil {
			skip(err, "rrule", def.RepeatRule)
		}
		truncated = hitCap
		for _, s := range starts {
			e.push(s, true)
		}
	} else {
		e.push(def.Start, false)
	}

	for _, raw := range def.ExtraDates {
		t, err := wallclock.Parse(raw)
		if err != nil {
			skip(err, "rdate", raw)
			continue
		}
		e.push(t, true)
	}

	if len(def.ExceptionDates) > 0 {
		excluded := make(map[string]struct{}, len(def.ExceptionDates))
		for _, raw := range def.ExceptionDates {
			norm, err := wallclock.Normalize(raw)
			if err != nil {
				skip(err, "exdate", raw)
				continue
			}
			excluded[norm] = struct{}{}
		}
		e.out = slices.DeleteFunc(e.out, func(o model.Occurrence) bool {
			_, ok := excluded[o.Start.String()]
			return ok
		})
	}

	return e.out, truncated, skips
}

// ruleStarts runs the repeat rule over the window widened by a day on both
// sides and, at the front, by the event duration, so occurrences that
// started earlier but still overlap the window are found.
func (e *expander) ruleStarts(limit int) ([]wallclock.Time, bool, error) {
	from := e.windowStart.Date().AddDate(0, 0, -1).Add(-max(e.duration, 0))
	to := e.windowEnd.Date().AddDate(0, 0, 1)

	instants, err := recurrence.Between(e.def.RepeatRule, e.def.Start.Synthetic(), from.Synthetic(), to.Synthetic())
	if err != nil {
		return nil, false, err
	}

	hitCap := false
	if len(instants) > limit {
		instants = instants[:limit]
		hitCap = true
	}

	starts := make([]wallclock.Time, len(instants))
	for i, inst := range instants {
		starts[i] = wallclock.FromSynthetic(inst)
	}
	return starts, hitCap, nil
}

// push window-tests an occurrence starting at start and records it. A start
// already produced for this definition is dropped.
func (e *expander) push(start wallclock.Time, composite bool) {
	end := start.Add(e.duration)
	if !end.After(e.windowStart) || !start.Before(e.windowEnd) {
		return
	}
	if _, dup := e.seen[start]; dup {
		return
	}
	e.seen[start] = struct{}{}

	id := e.def.ID
	if composite {
		id = InstanceID(e.def.ID, start)
	}
	e.out = append(e.out, model.Occurrence{
		Definition: e.def.Clone(),
		InstanceID: id,
		OriginalID: e.def.ID,
		Start:      start,
		End:        end,
	})
}

// InstanceID builds the composite id of a rule or extra-date occurrence.
func InstanceID(definitionID string, start wallclock.Time) string {
	return definitionID + instanceSep + start.String()
}

// SplitInstanceID splits a composite id into definition id and start. ok is
// false when id is not composite or its start does not parse.
func SplitInstanceID(id string) (definitionID string, start wallclock.Time, ok bool) {
	defID, rest, found := strings.Cut(id, instanceSep)
	if !found {
		return id, wallclock.Time{}, false
	}
	start, err := wallclock.Parse(rest)
	if err != nil {
		return defID, wallclock.Time{}, false
	}
	return defID, start, true
}
