package wallclock

import (
	"encoding/json"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIgnoresZoneSuffix(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2025-11-01T17:45:00", "2025-11-01T17:45:00"},
		{"2025-11-01T17:45:00Z", "2025-11-01T17:45:00"},
		{"2025-11-01T17:45:00+08:00", "2025-11-01T17:45:00"},
		{"2025-11-01T17:45:00.000-05:00", "2025-11-01T17:45:00"},
		{"2025-11-01T17:45:00-0500", "2025-11-01T17:45:00"},
		{"2025-11-01T17:45+09", "2025-11-01T17:45:00"},
		{"2025-11-01T17:45", "2025-11-01T17:45:00"},
		{"2025-11-01 17:45:30", "2025-11-01T17:45:30"},
		{"2025-11-01", "2025-11-01T00:00:00"},
		{"20251101T174500Z", "2025-11-01T17:45:00"},
		{"20251101T174500", "2025-11-01T17:45:00"},
		{"20251101", "2025-11-01T00:00:00"},
		{"  2025-11-01T17:45:00  ", "2025-11-01T17:45:00"},
	}

	for _, tt := range tests {
		got, err := Parse(tt.input)
		if !assert.NoError(t, err, "Parse(%q)", tt.input) {
			continue
		}
		assert.Equal(t, tt.want, got.String(), "Parse(%q)", tt.input)
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrEmpty)

	for _, input := range []string{"tomorrow", "2025-13-01T00:00:00", "2025-02-30", "2025-01-01T25:00:00"} {
		_, err := Parse(input)
		assert.ErrorIs(t, err, ErrInvalid, "Parse(%q)", input)
	}
}

func TestSyntheticRoundTrip(t *testing.T) {
	wc := MustParse("2025-03-09T02:30:00")
	syn := wc.Synthetic()

	assert.Equal(t, time.UTC, syn.Location())
	assert.Equal(t, 2, syn.Hour())
	assert.Equal(t, 30, syn.Minute())
	assert.Equal(t, wc, FromSynthetic(syn))
}

func TestFromSyntheticReadsUTCFields(t *testing.T) {
	// An instant carrying a non-UTC location still decodes through its UTC fields.
	loc := time.FixedZone("X", 8*3600)
	in := time.Date(2025, 1, 1, 8, 0, 0, 0, loc)
	assert.Equal(t, "2025-01-01T00:00:00", FromSynthetic(in).String())
}

func TestArithmetic(t *testing.T) {
	start := MustParse("2025-01-31T23:30:00")

	assert.Equal(t, "2025-02-01T00:30:00", start.Add(time.Hour).String())
	assert.Equal(t, "2025-02-28T23:30:00", start.AddDate(0, 0, 28).String())
	assert.Equal(t, 90*time.Minute, MustParse("2025-02-01T01:00:00").Sub(start))
	assert.True(t, start.Before(start.Add(time.Second)))
	assert.True(t, start.Add(time.Second).After(start))
	assert.True(t, start.Equal(MustParse("2025-01-31T23:30:00")))
}

func TestClockHelpers(t *testing.T) {
	wc := MustParse("2025-06-15T09:15:30")

	assert.Equal(t, "2025-06-15T00:00:00", wc.Date().String())
	assert.Equal(t, 9*time.Hour+15*time.Minute+30*time.Second, wc.ClockOffset())
	assert.Equal(t, "2025-06-15T14:00:00", wc.WithClock(14, 0, 0).String())
	assert.Equal(t, "2025-06-15T18:45:00", wc.WithClockOf(MustParse("2001-01-01T18:45:00")).String())
	assert.Equal(t, "2025-06-15", wc.DateString())
}

func TestUntilStringUsesSyntheticFields(t *testing.T) {
	wc := MustParse("2025-01-19T08:59:59+08:00")
	assert.Equal(t, "20250119T085959Z", wc.UntilString())
}

func TestValid(t *testing.T) {
	assert.False(t, Time{}.Valid())
	assert.True(t, MustParse("2024-02-29T12:00:00").Valid())
	assert.False(t, Time{Year: 2025, Month: 2, Day: 30}.Valid())
	assert.False(t, Time{Year: 2025, Month: 0, Day: 1}.Valid())
}

func TestInInterpretsInLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	wc := MustParse("2025-03-09T09:00:00")
	inNY := wc.In(loc)
	assert.Equal(t, 9, inNY.Hour())
	assert.Equal(t, loc, inNY.Location())
	assert.Equal(t, wc, Of(inNY))
}

func TestJSON(t *testing.T) {
	type wrapper struct {
		At  Time  `json:"at"`
		Opt *Time `json:"opt,omitempty"`
	}

	in := wrapper{At: MustParse("2025-01-06T09:00:00")}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"2025-01-06T09:00:00"}`, string(data))

	var out wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"at":"2025-01-06T09:00:00+01:00","opt":"2025-01-06T10:00"}`), &out))
	assert.Equal(t, "2025-01-06T09:00:00", out.At.String())
	require.NotNil(t, out.Opt)
	assert.Equal(t, "2025-01-06T10:00:00", out.Opt.String())

	require.Error(t, json.Unmarshal([]byte(`{"at":"nope"}`), &out))
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("2025-01-13T09:00:00.000+08:00")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-13T09:00:00", got)

	_, err = Normalize("garbage")
	assert.Error(t, err)
}
