package occurrence

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"wallcal/internal/model"
	"wallcal/internal/wallclock"
)

const dateKeyLayout = "2006-01-02"

// Grouper buckets occurrences by calendar date.
//
// Occurrence times are wall clock; Home is the zone that wall clock is read
// in before it is viewed in another zone. Nil means time.Local.
type Grouper struct {
	Home *time.Location
}

// GroupByDate groups with a Grouper anchored at time.Local.
func GroupByDate(occs []model.Occurrence, zone string) (map[string][]model.Occurrence, error) {
	return Grouper{}.GroupByDate(occs, zone)
}

// GroupByDate buckets each occurrence under the YYYY-MM-DD its start falls
// on in zone, using DisplayStart when the occurrence was clipped. zone is
// "local" (or empty) for Home, otherwise an IANA name.
// Occurrences whose start is not a valid date are skipped. Within a bucket,
// input order is kept.
func (g Grouper) GroupByDate(occs []model.Occurrence, zone string) (map[string][]model.Occurrence, error) {
	home := g.home()
	view, err := g.location(zone)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]model.Occurrence)
	for _, occ := range occs {
		start := occ.Start
		if occ.DisplayStart != nil {
			start = *occ.DisplayStart
		}
		if !start.Valid() {
			continue
		}
		key := start.DateString()
		if view != home {
			key = start.In(home).In(view).Format(dateKeyLayout)
		}
		out[key] = append(out[key], occ)
	}
	return out, nil
}

func (g Grouper) home() *time.Location {
	if g.Home == nil {
		return time.Local
	}
	return g.Home
}

func (g Grouper) location(zone string) (*time.Location, error) {
	zone = strings.TrimSpace(zone)
	if zone == "" || strings.EqualFold(zone, "local") {
		return g.home(), nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("group: unknown zone %q: %w", zone, err)
	}
	return loc, nil
}

// SortedDates returns the keys of a GroupByDate result in ascending order.
func SortedDates(groups map[string][]model.Occurrence) []string {
	return slices.Sorted(maps.Keys(groups))
}

// ClipToWindow returns occ with DisplayStart and DisplayEnd set to its
// bounds clamped to [windowStart, windowEnd). The day view uses it to show
// the tail of an overnight event; Start and End are left alone so the
// occurrence can still be addressed for edits.
func ClipToWindow(occ model.Occurrence, windowStart, windowEnd wallclock.Time) model.Occurrence {
	start, end := occ.Start, occ.End
	if start.Before(windowStart) {
		start = windowStart
	}
	if end.After(windowEnd) {
		end = windowEnd
	}
	if end.Before(start) {
		end = start
	}
	occ.DisplayStart, occ.DisplayEnd = &start, &end
	return occ
}
