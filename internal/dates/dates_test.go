package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ISO(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	p := NewParser(seoul)
	got, err := p.Parse(" 2024-01-01 ", time.Now())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, seoul), got)
	assert.Equal(t, seoul, p.Location())
}

func TestParse_NaturalLanguage(t *testing.T) {
	p := NewParser(time.UTC)
	ref := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)

	got, err := p.Parse("tomorrow", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), got)
}

func TestParse_Errors(t *testing.T) {
	p := NewParser(time.UTC)

	_, err := p.Parse("", time.Now())
	assert.ErrorIs(t, err, ErrUnparsableDate)

	_, err = p.Parse("qwerty zzz", time.Now())
	assert.ErrorIs(t, err, ErrUnparsableDate)

	ref := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-02-30", "2024-13-01", "2024/01/05", "24-1-5", "2024.01.05"} {
		t.Run(in, func(t *testing.T) {
			got, err := p.Parse(in, ref)
			assert.ErrorIs(t, err, ErrUnparsableDate)
			assert.True(t, got.IsZero())
		})
	}
}

func TestParseOptional(t *testing.T) {
	p := NewParser(time.UTC)

	_, ok, err := p.ParseOptional("  ", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, ok, err := p.ParseOptional("2024-03-29", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 29, got.Day())
}

func TestStartAndEndOfDay(t *testing.T) {
	ts := time.Date(2024, 5, 10, 15, 4, 5, 6, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), StartOfDay(ts, nil))
	assert.Equal(t, time.Date(2024, 5, 10, 23, 59, 59, 0, time.UTC), EndOfDay(ts, time.UTC))
}

func TestFormat(t *testing.T) {
	ts := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		pattern string
		want    string
	}{
		{ISODate, "2024-03-09"},
		{"EEE d MMM yyyy", "Sat 9 Mar 2024"},
		{"EEEE, MMMM d", "Saturday, March 9"},
		{"dd/MM/yy", "09/03/24"},
		{"'week of' yyyy-MM-dd", "week of 2024-03-09"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(ts, tt.pattern))
		})
	}

	assert.Equal(t, []string{"2024-03-09"}, FormatAll([]time.Time{ts}, ISODate))
}
