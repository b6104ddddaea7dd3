package edit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallcal/internal/model"
	"wallcal/internal/occurrence"
	"wallcal/internal/recurrence"
	"wallcal/internal/store"
	"wallcal/internal/wallclock"
)

func wc(s string) wallclock.Time { return wallclock.MustParse(s) }

var errBoom = errors.New("boom")

// flakyStore fails the named operations.
type flakyStore struct {
	*store.Memory
	fail map[string]error
}

func (f *flakyStore) Create(ctx context.Context, d model.Definition) (model.Definition, error) {
	if err := f.fail["create"]; err != nil {
		return model.Definition{}, err
	}
	return f.Memory.Create(ctx, d)
}

func (f *flakyStore) Update(ctx context.Context, id string, p model.Patch) (model.Definition, error) {
	if err := f.fail["update"]; err != nil {
		return model.Definition{}, err
	}
	if err := f.fail["update:"+id]; err != nil {
		return model.Definition{}, err
	}
	return f.Memory.Update(ctx, id, p)
}

func (f *flakyStore) Delete(ctx context.Context, id string) error {
	if err := f.fail["delete:"+id]; err != nil {
		return err
	}
	return f.Memory.Delete(ctx, id)
}

func weekly() model.Definition {
	return model.Definition{
		ID:         "s",
		Title:      "Team sync",
		Start:      wc("2025-01-06T09:00:00"),
		End:        model.Time(wc("2025-01-06T09:30:00")),
		RepeatRule: "FREQ=WEEKLY",
		Location:   "Room 1",
	}
}

func get(t *testing.T, s store.Store, id string) model.Definition {
	t.Helper()
	d, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	return d
}

func expandAll(t *testing.T, s store.Store) []model.Occurrence {
	t.Helper()
	defs, err := s.All(context.Background())
	require.NoError(t, err)
	return occurrence.Expand(defs, wc("2025-01-01"), wc("2025-02-01"))
}

func occStarts(occs []model.Occurrence) []string {
	out := make([]string, len(occs))
	for i, o := range occs {
		out[i] = o.Start.String()
	}
	return out
}

func TestResolveParentID(t *testing.T) {
	tests := []struct {
		name string
		ref  Ref
		want string
	}{
		{"original id wins", Ref{InstanceID: "a::2025-01-06T09:00:00", OriginalID: "o", ParentID: "p"}, "o"},
		{"parent id next", Ref{InstanceID: "a::2025-01-06T09:00:00", ParentID: "p"}, "p"},
		{"composite instance id", Ref{InstanceID: "a::2025-01-06T09:00:00"}, "a"},
		{"plain instance id", Ref{InstanceID: "single"}, "single"},
		{"nothing", Ref{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveParentID(tt.ref))
		})
	}
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(
		weekly(),
		model.Definition{ID: "single", Start: wc("2025-01-07T12:00:00")},
		model.Definition{ID: "ov", ParentID: "s", OverrideOf: "2025-01-13T09:00:00", Start: wc("2025-01-13T11:00:00")},
	)
	r := NewResolver(s)

	tests := []struct {
		name      string
		ref       Ref
		want      State
		wantDef   string
		wantStart string
	}{
		{"single", Ref{InstanceID: "single", OriginalID: "single"}, NonRecurring, "single", "2025-01-07T12:00:00"},
		{"series itself", Ref{InstanceID: "s"}, EditingSeriesItself, "s", "2025-01-06T09:00:00"},
		{"one occurrence", Ref{InstanceID: "s::2025-01-20T09:00:00", OriginalID: "s"}, EditingOneOccurrence, "s", "2025-01-20T09:00:00"},
		{"start from instance id", Ref{InstanceID: "s::2025-01-27T09:00:00"}, EditingOneOccurrence, "s", "2025-01-27T09:00:00"},
		{"override occurrence", Ref{InstanceID: "ov", OriginalID: "ov", ParentID: "s"}, EditingExistingOverride, "ov", "2025-01-13T09:00:00"},
		{"original occurrence of override", Ref{InstanceID: "s::2025-01-13T09:00:00", OriginalID: "s"}, EditingExistingOverride, "ov", "2025-01-13T09:00:00"},
		{"override id with parent only", Ref{InstanceID: "ov", ParentID: "s", Start: wc("2025-01-13T11:00:00")}, EditingExistingOverride, "ov", "2025-01-13T09:00:00"},
		{"instance id beats display start", Ref{InstanceID: "s::2025-01-20T09:00:00", ParentID: "s", Start: wc("2025-01-20T00:00:00")}, EditingOneOccurrence, "s", "2025-01-20T09:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Classify(ctx, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.State, got.State.String())
			assert.Equal(t, tt.wantDef, got.Definition.ID)
			assert.Equal(t, tt.wantStart, got.OccurrenceStart.String())
		})
	}

	_, err := r.Classify(ctx, Ref{InstanceID: "gone"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = r.Classify(ctx, Ref{})
	assert.ErrorIs(t, err, ErrNoSeries)
}

func TestSaveNonRecurringPatchesInPlace(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(model.Definition{ID: "a", Title: "Lunch", Start: wc("2025-01-07T12:00:00")})
	r := NewResolver(s)

	got, err := r.Save(ctx, Ref{InstanceID: "a", OriginalID: "a"}, model.Patch{
		Title: model.String("Long lunch"),
		Start: model.Time(wc("2025-01-07T12:30:00")),
		End:   model.Time(wc("2025-01-07T14:00:00")),
	})
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, "Long lunch", get(t, s, "a").Title)
	assert.Equal(t, "2025-01-07T12:30:00", get(t, s, "a").Start.String())

	all, _ := s.All(ctx)
	assert.Len(t, all, 1)
}

func TestSaveValidatesBeforeWriting(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(weekly(), model.Definition{ID: "a", Start: wc("2025-01-07T12:00:00")})
	r := NewResolver(s)
	rev := s.Revision()

	_, err := r.Save(ctx, Ref{InstanceID: "a"}, model.Patch{End: model.Time(wc("2025-01-07T11:00:00"))})
	assert.ErrorIs(t, err, model.ErrInvalidTimeRange)

	_, err = r.Save(ctx, Ref{InstanceID: "a"}, model.Patch{RepeatRule: model.String("FREQ=HOURLYISH")})
	assert.ErrorIs(t, err, recurrence.ErrInvalidRule)

	_, err = r.Save(ctx, Ref{InstanceID: "s::2025-01-13T09:00:00", OriginalID: "s"}, model.Patch{
		Start: model.Time(wc("2025-01-13T10:00:00")),
		End:   model.Time(wc("2025-01-13T09:00:00")),
	})
	assert.ErrorIs(t, err, model.ErrInvalidTimeRange)

	_, err = r.Save(ctx, Ref{InstanceID: "s"}, model.Patch{
		Start: model.Time(wc("2025-01-06T10:00:00")),
		End:   model.Time(wc("2025-01-06T10:00:00")),
	})
	assert.ErrorIs(t, err, model.ErrInvalidTimeRange)

	assert.Equal(t, rev, s.Revision(), "nothing written")
}

func TestSaveOneOccurrenceCreatesOverride(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(weekly())
	r := NewResolver(s)

	ref := Ref{
		InstanceID: "s::2025-01-13T09:00:00",
		OriginalID: "s",
		Start:      wc("2025-01-13T09:00:00"),
		End:        wc("2025-01-13T09:30:00"),
	}
	ov, err := r.Save(ctx, ref, model.Patch{
		Title: model.String("Team sync (moved)"),
		Start: model.Time(wc("2025-01-14T15:00:00")),
	})
	require.NoError(t, err)

	assert.NotEqual(t, "s", ov.ID)
	assert.Equal(t, "s", ov.ParentID)
	assert.Equal(t, "2025-01-13T09:00:00", ov.OverrideOf)
	assert.Empty(t, ov.RepeatRule)
	assert.Equal(t, "Room 1", ov.Location, "inherits series fields")
	assert.Equal(t, "2025-01-14T15:30:00", ov.End.String(), "keeps occurrence duration")
	assert.False(t, ov.OwnDuration)

	series := get(t, s, "s")
	assert.Equal(t, []string{"2025-01-13T09:00:00"}, series.ExceptionDates)
	assert.Equal(t, "Team sync", series.Title)

	occs := expandAll(t, s)
	assert.Equal(t, []string{
		"2025-01-06T09:00:00",
		"2025-01-14T15:00:00",
		"2025-01-20T09:00:00",
		"2025-01-27T09:00:00",
	}, occStarts(occs))
	assert.Equal(t, "Team sync (moved)", occs[1].Title)

	// editing the override again patches it in place
	again, err := r.Save(ctx, RefOf(occs[1]), model.Patch{
		End: model.Time(wc("2025-01-14T16:30:00")),
	})
	require.NoError(t, err)
	assert.Equal(t, ov.ID, again.ID)
	assert.True(t, again.OwnDuration)

	all, _ := s.All(ctx)
	assert.Len(t, all, 2)
	assert.Equal(t, []string{"2025-01-13T09:00:00"}, get(t, s, "s").ExceptionDates)
}

func TestSaveOverrideAddressedByParent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(weekly())
	r := NewResolver(s)

	ov, err := r.Save(ctx, Ref{InstanceID: "s::2025-01-13T09:00:00", OriginalID: "s"}, model.Patch{
		Start: model.Time(wc("2025-01-13T11:00:00")),
	})
	require.NoError(t, err)

	// the shape a client sends back for an override: its own id and the series
	again, err := r.Save(ctx, Ref{
		InstanceID: ov.ID,
		ParentID:   "s",
		Start:      wc("2025-01-13T11:00:00"),
		End:        wc("2025-01-13T11:30:00"),
	}, model.Patch{Title: model.String("Team sync (late)")})
	require.NoError(t, err)
	assert.Equal(t, ov.ID, again.ID)
	assert.Equal(t, "Team sync (late)", get(t, s, ov.ID).Title)

	all, _ := s.All(ctx)
	assert.Len(t, all, 2, "no second override")
	assert.Equal(t, []string{"2025-01-13T09:00:00"}, get(t, s, "s").ExceptionDates)
}

func overnight() model.Definition {
	return model.Definition{
		ID:         "n",
		Title:      "Night shift",
		Start:      wc("2025-01-06T23:00:00"),
		End:        model.Time(wc("2025-01-07T01:00:00")),
		RepeatRule: "FREQ=WEEKLY",
	}
}

// clippedTail expands the day after the 2025-01-13 night and clips the
// overnight occurrence to it, the way the day view shows it.
func clippedTail(t *testing.T, s store.Store) model.Occurrence {
	t.Helper()
	defs, err := s.All(context.Background())
	require.NoError(t, err)
	day := occurrence.Expand(defs, wc("2025-01-14"), wc("2025-01-15"))
	require.Len(t, day, 1)
	return occurrence.ClipToWindow(day[0], wc("2025-01-14"), wc("2025-01-15"))
}

func TestDeleteClippedOccurrence(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(overnight())
	r := NewResolver(s)

	tail := clippedTail(t, s)
	assert.Equal(t, "2025-01-14T00:00:00", tail.DisplayStart.String())

	// a client echoing the displayed bounds still names the real occurrence
	ref := RefOf(tail)
	ref.Start, ref.End = *tail.DisplayStart, *tail.DisplayEnd
	require.NoError(t, r.Delete(ctx, ref, ScopeThis))

	assert.Equal(t, []string{"2025-01-13T23:00:00"}, get(t, s, "n").ExceptionDates)
	defs, _ := s.All(ctx)
	assert.Empty(t, occurrence.Expand(defs, wc("2025-01-14"), wc("2025-01-15")))
}

func TestSaveClippedOccurrenceKeepsDuration(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(overnight())
	r := NewResolver(s)

	tail := clippedTail(t, s)
	ref := RefOf(tail)
	ref.Start, ref.End = *tail.DisplayStart, *tail.DisplayEnd

	ov, err := r.Save(ctx, ref, model.Patch{Title: model.String("Night shift (cover)")})
	require.NoError(t, err)
	assert.Equal(t, "2025-01-13T23:00:00", ov.OverrideOf)
	assert.Equal(t, "2025-01-13T23:00:00", ov.Start.String())
	assert.Equal(t, "2025-01-14T01:00:00", ov.End.String())
	assert.Equal(t, []string{"2025-01-13T23:00:00"}, get(t, s, "n").ExceptionDates)
}

func TestSaveSeriesShiftsChildren(t *testing.T) {
	ctx := context.Background()
	series := weekly()
	series.ExceptionDates = []string{"2025-01-13T09:00:00"}
	series.ExtraDates = []string{"2025-01-09T09:00:00"}
	s := store.NewMemory(
		series,
		model.Definition{
			ID:         "c",
			Title:      "moved",
			ParentID:   "s",
			OverrideOf: "2025-01-13T09:00:00",
			Start:      wc("2025-01-14T10:00:00"),
			End:        model.Time(wc("2025-01-14T10:45:00")),
		},
	)
	r := NewResolver(s)

	saved, err := r.Save(ctx, Ref{InstanceID: "s", OriginalID: "s"}, model.Patch{
		Start: model.Time(wc("2025-03-03T14:00:00")),
	})
	require.NoError(t, err)

	assert.Equal(t, "2025-01-06T14:00:00", saved.Start.String(), "date kept, time-of-day replaced")
	assert.Equal(t, "2025-01-06T14:30:00", saved.End.String())
	assert.Equal(t, []string{"2025-01-13T14:00:00"}, saved.ExceptionDates)
	assert.Equal(t, []string{"2025-01-09T14:00:00"}, saved.ExtraDates)

	child := get(t, s, "c")
	assert.Equal(t, "2025-01-14T15:00:00", child.Start.String(), "shifted by +5h on its own date")
	assert.Equal(t, "2025-01-14T15:45:00", child.End.String(), "own duration kept")
	assert.Equal(t, "2025-01-13T14:00:00", child.OverrideOf)

	assert.Equal(t, []string{
		"2025-01-06T14:00:00",
		"2025-01-09T14:00:00",
		"2025-01-14T15:00:00",
		"2025-01-20T14:00:00",
		"2025-01-27T14:00:00",
	}, occStarts(expandAll(t, s)))
}

func TestSaveSeriesDurationChange(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(
		weekly(),
		model.Definition{ID: "inherits", ParentID: "s", OverrideOf: "2025-01-13T09:00:00",
			Start: wc("2025-01-13T09:00:00"), End: model.Time(wc("2025-01-13T09:30:00"))},
		model.Definition{ID: "own", ParentID: "s", OverrideOf: "2025-01-20T09:00:00", OwnDuration: true,
			Start: wc("2025-01-20T09:00:00"), End: model.Time(wc("2025-01-20T09:20:00"))},
	)
	r := NewResolver(s)

	_, err := r.Save(ctx, Ref{InstanceID: "s"}, model.Patch{
		Start: model.Time(wc("2025-01-06T09:00:00")),
		End:   model.Time(wc("2025-01-06T10:00:00")),
	})
	require.NoError(t, err)

	assert.Equal(t, "2025-01-06T10:00:00", get(t, s, "s").End.String())
	assert.Equal(t, "2025-01-13T10:00:00", get(t, s, "inherits").End.String())
	assert.Equal(t, "2025-01-20T09:20:00", get(t, s, "own").End.String())
}

func TestSaveSeriesWrapsChildWithinItsDate(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(
		weekly(),
		model.Definition{ID: "late", ParentID: "s", OverrideOf: "2025-01-13T09:00:00",
			Start: wc("2025-01-13T22:00:00")},
	)
	r := NewResolver(s)

	_, err := r.Save(ctx, Ref{InstanceID: "s"}, model.Patch{Start: model.Time(wc("2025-01-06T13:00:00"))})
	require.NoError(t, err)

	child := get(t, s, "late")
	assert.Equal(t, "2025-01-13T02:00:00", child.Start.String())
	assert.Nil(t, child.End)
}

func TestDeleteThisOccurrence(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(weekly())
	r := NewResolver(s)

	ref := Ref{InstanceID: "s::2025-01-13T09:00:00", OriginalID: "s"}
	require.NoError(t, r.Delete(ctx, ref, ScopeThis))
	require.NoError(t, r.Delete(ctx, ref, ScopeThis))

	assert.Equal(t, []string{"2025-01-13T09:00:00"}, get(t, s, "s").ExceptionDates, "set semantics")
	assert.Equal(t, []string{
		"2025-01-06T09:00:00",
		"2025-01-20T09:00:00",
		"2025-01-27T09:00:00",
	}, occStarts(expandAll(t, s)))
}

func TestDeleteNonRecurring(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(model.Definition{ID: "a", Start: wc("2025-01-07T12:00:00")})
	r := NewResolver(s)

	require.NoError(t, r.Delete(ctx, Ref{InstanceID: "a"}, ScopeThisAndFuture))
	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = r.Delete(ctx, Ref{InstanceID: "a"}, ScopeThis)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteThisAndFutureTruncates(t *testing.T) {
	ctx := context.Background()
	series := weekly()
	series.ExtraDates = []string{"2025-01-09T12:00:00", "2025-01-30T12:00:00"}
	s := store.NewMemory(
		series,
		model.Definition{ID: "early", ParentID: "s", OverrideOf: "2025-01-13T09:00:00", Start: wc("2025-01-13T11:00:00")},
		model.Definition{ID: "later", ParentID: "s", OverrideOf: "2025-01-27T09:00:00", Start: wc("2025-01-27T11:00:00")},
	)
	r := NewResolver(s)

	// third weekly occurrence
	ref := Ref{InstanceID: "s::2025-01-20T09:00:00", OriginalID: "s"}
	require.NoError(t, r.Delete(ctx, ref, ScopeThisAndFuture))

	got := get(t, s, "s")
	assert.Equal(t, "FREQ=WEEKLY;UNTIL=20250120T085959Z", got.RepeatRule)
	assert.Equal(t, []string{"2025-01-09T12:00:00"}, got.ExtraDates)

	_, err := s.Get(ctx, "later")
	assert.ErrorIs(t, err, store.ErrNotFound)
	get(t, s, "early")

	defs, _ := s.All(ctx)
	seriesOnly := occurrence.Expand(defs[:1], wc("2025-01-01"), wc("2026-01-01"))
	assert.Equal(t, []string{
		"2025-01-06T09:00:00",
		"2025-01-09T12:00:00",
		"2025-01-13T09:00:00",
	}, occStarts(seriesOnly))
}

func TestDeleteThisAndFutureUntilTruncation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(weekly())
	r := NewResolver(s)

	before := expandAll(t, s)
	require.GreaterOrEqual(t, len(before), 3)
	require.NoError(t, r.Delete(ctx, RefOf(before[2]), ScopeThisAndFuture))

	after := expandAll(t, s)
	assert.Equal(t, occStarts(before[:2]), occStarts(after))
}

func TestDeleteThisAndFutureFromFirstDeletesSeries(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(
		weekly(),
		model.Definition{ID: "c", ParentID: "s", OverrideOf: "2025-01-13T09:00:00", Start: wc("2025-01-13T11:00:00")},
		model.Definition{ID: "other", Start: wc("2025-01-08T08:00:00")},
	)
	r := NewResolver(s)

	require.NoError(t, r.Delete(ctx, Ref{InstanceID: "s::2025-01-06T09:00:00", OriginalID: "s"}, ScopeThisAndFuture))

	all, _ := s.All(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, "other", all[0].ID)
}

func TestDeleteOverride(t *testing.T) {
	ctx := context.Background()
	series := weekly()
	series.ExceptionDates = []string{"2025-01-13T09:00:00"}
	s := store.NewMemory(
		series,
		model.Definition{ID: "ov", ParentID: "s", OverrideOf: "2025-01-13T09:00:00", Start: wc("2025-01-14T11:00:00")},
		model.Definition{ID: "ov2", ParentID: "s", OverrideOf: "2025-01-27T09:00:00", Start: wc("2025-01-27T11:00:00")},
	)
	r := NewResolver(s)

	require.NoError(t, r.Delete(ctx, Ref{InstanceID: "ov", OriginalID: "ov", ParentID: "s"}, ScopeThis))
	_, err := s.Get(ctx, "ov")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, []string{"2025-01-13T09:00:00"}, get(t, s, "s").ExceptionDates, "exception stays")

	// this-and-future on an override cuts the series at the replaced occurrence
	require.NoError(t, r.Delete(ctx, Ref{InstanceID: "ov2", OriginalID: "ov2", ParentID: "s"}, ScopeThisAndFuture))
	_, err = s.Get(ctx, "ov2")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, "FREQ=WEEKLY;UNTIL=20250127T085959Z", get(t, s, "s").RepeatRule)
}

func TestDeleteUnknownScope(t *testing.T) {
	r := NewResolver(store.NewMemory(weekly()))
	err := r.Delete(context.Background(), Ref{InstanceID: "s"}, Scope("everything"))
	assert.ErrorIs(t, err, ErrUnknownScope)

	_, err = ParseScope("later")
	assert.ErrorIs(t, err, ErrUnknownScope)
	sc, err := ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeThis, sc)
	sc, err = ParseScope("thisAndFuture")
	require.NoError(t, err)
	assert.Equal(t, ScopeThisAndFuture, sc)
}

func TestSplitPartialFailureAndRetry(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(weekly())
	flaky := &flakyStore{Memory: mem, fail: map[string]error{"update:s": errBoom}}
	r := NewResolver(flaky)

	ref := Ref{InstanceID: "s::2025-01-13T09:00:00", OriginalID: "s"}
	patch := model.Patch{Title: model.String("moved"), Start: model.Time(wc("2025-01-13T15:00:00"))}

	_, err := r.Save(ctx, ref, patch)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialWrite)
	assert.ErrorIs(t, err, errBoom)

	var pe *PartialError
	require.ErrorAs(t, err, &pe)
	require.Len(t, pe.Written, 1)
	assert.Equal(t, "s", get(t, mem, pe.Written[0]).ParentID)
	assert.Empty(t, get(t, mem, "s").ExceptionDates)

	// a retry finds the override and completes the exclusion
	flaky.fail = nil
	_, err = r.Save(ctx, ref, patch)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-13T09:00:00"}, get(t, mem, "s").ExceptionDates)

	all, _ := mem.All(ctx)
	assert.Len(t, all, 2)
}

func TestTotalFailureIsNotPartial(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{Memory: store.NewMemory(weekly()), fail: map[string]error{"create": errBoom}}
	r := NewResolver(flaky)

	_, err := r.Save(ctx, Ref{InstanceID: "s::2025-01-13T09:00:00", OriginalID: "s"}, model.Patch{Title: model.String("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrPartialWrite)
}

func TestTruncatePartialFailure(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(
		weekly(),
		model.Definition{ID: "c", ParentID: "s", OverrideOf: "2025-01-27T09:00:00", Start: wc("2025-01-27T11:00:00")},
	)
	r := NewResolver(&flakyStore{Memory: mem, fail: map[string]error{"delete:c": errBoom}})

	err := r.Delete(ctx, Ref{InstanceID: "s::2025-01-20T09:00:00", OriginalID: "s"}, ScopeThisAndFuture)
	var pe *PartialError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []string{"s"}, pe.Written)
	assert.Contains(t, get(t, mem, "s").RepeatRule, "UNTIL=")
}
