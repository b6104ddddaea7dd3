package occurrence

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallcal/internal/model"
	"wallcal/internal/wallclock"
)

func TestGroupByDateRoundTrip(t *testing.T) {
	defs := []model.Definition{
		{ID: "a", Start: wc("2025-01-06T09:00:00"), RepeatRule: "FREQ=DAILY;COUNT=5"},
		{ID: "b", Start: wc("2025-01-07T07:30:00"), ExtraDates: []string{"2025-01-09T20:00:00"}},
		{ID: "c", Start: wc("2025-01-07T23:00:00"), End: model.Time(wc("2025-01-08T01:00:00"))},
	}
	occs := Expand(defs, wc("2025-01-01"), wc("2025-02-01"))

	g := Grouper{Home: time.UTC}
	groups, err := g.GroupByDate(occs, "local")
	require.NoError(t, err)

	total := 0
	for date, bucket := range groups {
		total += len(bucket)
		for _, occ := range bucket {
			assert.Equal(t, occ.Start.DateString(), date, occ.InstanceID)
		}
	}
	assert.Equal(t, len(occs), total)

	jan7 := groups["2025-01-07"]
	require.Len(t, jan7, 3)
	assert.Equal(t, []string{"2025-01-07T07:30:00", "2025-01-07T09:00:00", "2025-01-07T23:00:00"}, starts(jan7))

	assert.Equal(t, []string{"2025-01-06", "2025-01-07", "2025-01-08", "2025-01-09", "2025-01-10"}, SortedDates(groups))
}

func TestGroupByDateInOtherZone(t *testing.T) {
	occs := []model.Occurrence{
		{InstanceID: "late", Start: wc("2025-01-06T23:30:00"), End: wc("2025-01-07T00:30:00")},
		{InstanceID: "noon", Start: wc("2025-01-06T12:00:00"), End: wc("2025-01-06T13:00:00")},
	}
	g := Grouper{Home: time.UTC}

	groups, err := g.GroupByDate(occs, "Asia/Tokyo")
	require.NoError(t, err)
	assert.Len(t, groups["2025-01-07"], 1)
	assert.Equal(t, "late", groups["2025-01-07"][0].InstanceID)
	assert.Len(t, groups["2025-01-06"], 1)

	groups, err = g.GroupByDate(occs, "America/Los_Angeles")
	require.NoError(t, err)
	require.Len(t, groups["2025-01-06"], 2)
	assert.Equal(t, []string{"late", "noon"}, []string{groups["2025-01-06"][0].InstanceID, groups["2025-01-06"][1].InstanceID}, "input order kept")

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	groups, err = Grouper{Home: ny}.GroupByDate(occs, "")
	require.NoError(t, err)
	assert.Len(t, groups["2025-01-06"], 2, "home zone keeps the wall-clock date")
}

func TestGroupByDateSkipsInvalidStart(t *testing.T) {
	occs := []model.Occurrence{
		{InstanceID: "zero"},
		{InstanceID: "bad", Start: wallclock.Time{Year: 2025, Month: 2, Day: 30, Hour: 9}},
		{InstanceID: "ok", Start: wc("2025-02-28T09:00:00")},
	}
	groups, err := GroupByDate(occs, "local")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "ok", groups["2025-02-28"][0].InstanceID)
}

func TestGroupByDateUnknownZone(t *testing.T) {
	_, err := GroupByDate(nil, "Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestClipToWindow(t *testing.T) {
	occ := model.Occurrence{Start: wc("2025-01-06T10:00:00"), End: wc("2025-01-06T11:00:00")}

	same := ClipToWindow(occ, wc("2025-01-06"), wc("2025-01-07"))
	require.NotNil(t, same.DisplayStart)
	assert.Equal(t, occ.Start, *same.DisplayStart)
	assert.Equal(t, occ.End, *same.DisplayEnd)

	tail := ClipToWindow(occ, wc("2025-01-06T10:30:00"), wc("2025-01-07"))
	assert.Equal(t, "2025-01-06T10:30:00", tail.DisplayStart.String())
	assert.Equal(t, "2025-01-06T11:00:00", tail.DisplayEnd.String())
	assert.Equal(t, "2025-01-06T10:00:00", tail.Start.String(), "real start kept")
	assert.Nil(t, occ.DisplayStart, "clip works on a copy")

	outside := ClipToWindow(occ, wc("2025-01-06T12:00:00"), wc("2025-01-07"))
	assert.Equal(t, *outside.DisplayStart, *outside.DisplayEnd)
	assert.Equal(t, occ.End, outside.End)

	night := model.Occurrence{Start: wc("2025-01-06T23:00:00"), End: wc("2025-01-07T01:00:00")}
	groups, err := GroupByDate([]model.Occurrence{ClipToWindow(night, wc("2025-01-07"), wc("2025-01-08"))}, "local")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-07"}, SortedDates(groups), "clipped occurrences group by displayed start")
}
