package configurator

import (
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recurcal/internal/dates"
	"recurcal/internal/model"
	"recurcal/internal/recurrence"
)

var clock = func() time.Time { return time.Date(2024, 1, 1, 14, 30, 0, 0, time.UTC) }

type recorder struct {
	got []Diagnostic
}

func (r *recorder) Report(d Diagnostic) { r.got = append(r.got, d) }

func newTestConfigurator(t *testing.T) (*Configurator, *recorder) {
	t.Helper()
	rec := &recorder{}
	return New(time.UTC, WithClock(clock), WithReporter(rec)), rec
}

func previewDates(c *Configurator) []string {
	return dates.FormatAll(c.Preview().Occurrences, dates.ISODate)
}

func TestNew_Defaults(t *testing.T) {
	c, rec := newTestConfigurator(t)

	s := c.State()
	assert.Equal(t, model.Weekly, s.Frequency)
	assert.Equal(t, "1", s.IntervalText())
	assert.True(t, s.Weekdays.Empty())
	assert.Equal(t, model.NthWeekday{Ordinal: model.First, Weekday: model.Monday}, s.Nth)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), s.Start)
	assert.True(t, s.End.IsAbsent())

	// 2024-01-01 is a Monday: weekly with no weekdays repeats on Mondays
	assert.Equal(t, []string{
		"2024-01-01", "2024-01-08", "2024-01-15",
		"2024-01-22", "2024-01-29", "2024-02-05",
	}, previewDates(c))
	assert.True(t, c.Diagnostic().IsAbsent())
	assert.Empty(t, rec.got)
}

func TestWeeklyMonWedFri(t *testing.T) {
	c, _ := newTestConfigurator(t)
	c.SetStartDate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	for _, w := range []model.Weekday{model.Monday, model.Wednesday, model.Friday} {
		require.NoError(t, c.ToggleWeekday(w))
	}

	assert.Equal(t, []string{
		"2024-01-01", "2024-01-03", "2024-01-05",
		"2024-01-08", "2024-01-10", "2024-01-12",
	}, previewDates(c))
	assert.Equal(t, "DTSTART:20240101T000000Z\nRRULE:FREQ=WEEKLY;INTERVAL=1;BYDAY=MO,WE,FR", c.Preview().RuleText)
	assert.Equal(t, "every week on Mon, Wed, Fri", c.Describe())
}

func TestMonthlyLastFriday(t *testing.T) {
	c, _ := newTestConfigurator(t)
	require.NoError(t, c.SetFrequency(model.Monthly))
	require.NoError(t, c.SetNthOrdinal(model.Last))
	require.NoError(t, c.SetNthWeekday(model.Friday))

	got := c.Preview().Occurrences
	require.Len(t, got, 6)
	assert.Equal(t, []string{"2024-01-26", "2024-02-23", "2024-03-29"}, previewDates(c)[:3])
	for _, ts := range got {
		assert.True(t, c.State().Nth.Matches(ts))
	}
	assert.Equal(t, "every month on the last Fri", c.Describe())
}

func TestWeekdaysOnlyApplyToWeekly(t *testing.T) {
	c, _ := newTestConfigurator(t)
	require.NoError(t, c.ToggleWeekday(model.Friday))
	require.NoError(t, c.SetFrequency(model.Daily))

	assert.NotContains(t, c.Preview().RuleText, "BYDAY")
	assert.Equal(t, []string{
		"2024-01-01", "2024-01-02", "2024-01-03",
		"2024-01-04", "2024-01-05", "2024-01-06",
	}, previewDates(c))

	// selection is remembered for when the form switches back
	require.NoError(t, c.SetFrequency(model.Weekly))
	assert.Contains(t, c.Preview().RuleText, "BYDAY=FR")
}

func TestYearlyInterval(t *testing.T) {
	c, _ := newTestConfigurator(t)
	require.NoError(t, c.SetFrequency(model.Yearly))
	c.SetInterval(2)

	assert.Equal(t, []string{
		"2024-01-01", "2026-01-01", "2028-01-01",
		"2030-01-01", "2032-01-01", "2034-01-01",
	}, previewDates(c))
	assert.Equal(t, "every 2 years", c.Describe())
}

func TestToggleTwiceRestoresPreview(t *testing.T) {
	c, _ := newTestConfigurator(t)
	require.NoError(t, c.ToggleWeekday(model.Tuesday))
	before := c.State().Weekdays
	beforePreview := c.Preview()

	require.NoError(t, c.ToggleWeekday(model.Saturday))
	require.NoError(t, c.ToggleWeekday(model.Saturday))

	assert.Equal(t, before, c.State().Weekdays)
	assert.Equal(t, beforePreview, c.Preview())
}

func TestEndDateTruncatesPreview(t *testing.T) {
	c, _ := newTestConfigurator(t)
	require.NoError(t, c.SetFrequency(model.Daily))
	c.SetInterval(3)

	// natural occurrences: Jan 1, 4, 7, 10, 13, 16; Jan 10 is inclusive
	c.SetEndDate(mo.Some(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, []string{"2024-01-01", "2024-01-04", "2024-01-07", "2024-01-10"}, previewDates(c))

	c.SetEndDate(mo.None[time.Time]())
	assert.Len(t, c.Preview().Occurrences, 6)
}

func TestInvalidIntervalKeepsPreview(t *testing.T) {
	c, rec := newTestConfigurator(t)
	before := c.Preview()

	c.SetInterval(0)

	assert.Equal(t, before, c.Preview())
	d, ok := c.Diagnostic().Get()
	require.True(t, ok)
	assert.Equal(t, KindInvalidInterval, d.Kind)
	assert.ErrorIs(t, d, ErrInvalidInterval)
	require.Len(t, rec.got, 1)
	assert.Equal(t, clock(), rec.got[0].At)

	// the next valid edit clears the diagnostic
	c.SetInterval(2)
	assert.True(t, c.Diagnostic().IsAbsent())
	assert.NotEqual(t, before, c.Preview())
}

func TestNonNumericInterval(t *testing.T) {
	c, rec := newTestConfigurator(t)
	before := c.Preview()

	c.SetIntervalText("abc")

	assert.Equal(t, before, c.Preview())
	assert.Equal(t, "", c.State().IntervalText())
	require.Len(t, rec.got, 1)
	assert.Equal(t, KindInvalidInterval, rec.got[0].Kind)

	c.SetIntervalText(" 4 ")
	assert.Equal(t, "4", c.State().IntervalText())
	assert.True(t, c.Diagnostic().IsAbsent())
}

func TestEndBeforeStartIsEngineRejection(t *testing.T) {
	c, rec := newTestConfigurator(t)
	before := c.Preview()

	c.SetEndDate(mo.Some(time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, before, c.Preview())
	require.Len(t, rec.got, 1)
	assert.Equal(t, KindEngineRejected, rec.got[0].Kind)
}

func TestMutationsRejectInvalidEnumValues(t *testing.T) {
	c, rec := newTestConfigurator(t)
	before := c.State()

	assert.ErrorIs(t, c.SetFrequency("HOURLY"), model.ErrUnknownFrequency)
	assert.ErrorIs(t, c.SetFrequencyText("sometimes"), model.ErrUnknownFrequency)
	assert.ErrorIs(t, c.ToggleWeekday(model.Weekday(7)), model.ErrUnknownWeekday)
	assert.ErrorIs(t, c.SetNthOrdinal(model.Ordinal(0)), model.ErrInvalidOrdinal)
	assert.ErrorIs(t, c.SetNthWeekday(model.Weekday(-1)), model.ErrUnknownWeekday)

	assert.Equal(t, before, c.State())
	assert.Empty(t, rec.got)
}

func TestStartDateIsNormalizedToDay(t *testing.T) {
	c, _ := newTestConfigurator(t)
	c.SetStartDate(time.Date(2024, 2, 10, 18, 45, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), c.State().Start)
}

func TestRestoreText(t *testing.T) {
	c, _ := newTestConfigurator(t)
	require.NoError(t, c.RestoreText("DTSTART:20240301T000000Z\nRRULE:FREQ=MONTHLY;INTERVAL=2;BYDAY=+2TU"))

	s := c.State()
	assert.Equal(t, model.Monthly, s.Frequency)
	assert.Equal(t, "2", s.IntervalText())
	assert.Equal(t, model.NthWeekday{Ordinal: model.Second, Weekday: model.Tuesday}, s.Nth)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), s.Start)
	assert.Equal(t, []string{"2024-03-12", "2024-05-14", "2024-07-09"}, previewDates(c)[:3])

	assert.Error(t, c.RestoreText("FREQ=MONTHLY;BYMONTHDAY=1"))
	assert.ErrorIs(t, c.RestoreText("DTSTART:20240115T000000Z\nRRULE:FREQ=MONTHLY;INTERVAL=1"), recurrence.ErrUnparsableRule)
	assert.Equal(t, s, c.State())
}

func TestRestoreRoundTripsRuleText(t *testing.T) {
	c, _ := newTestConfigurator(t)
	require.NoError(t, c.ToggleWeekday(model.Thursday))
	c.SetInterval(3)
	c.SetEndDate(mo.Some(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)))
	text := c.Preview().RuleText

	other, _ := newTestConfigurator(t)
	require.NoError(t, other.RestoreText(text))

	assert.Equal(t, c.State(), other.State())
	assert.Equal(t, c.Preview(), other.Preview())
}

func TestDerive_PureFunction(t *testing.T) {
	s := DefaultState(clock(), time.UTC)
	s.Frequency = model.Daily

	first := Derive(s, time.UTC, 3)
	second := Derive(s, time.UTC, 3)
	require.True(t, first.IsOk())
	assert.Equal(t, first.MustGet(), second.MustGet())
	assert.Len(t, first.MustGet().Occurrences, 3)

	s.Interval = mo.Ok(-1)
	res := Derive(s, time.UTC, 3)
	require.True(t, res.IsError())
	assert.ErrorIs(t, res.Error(), ErrInvalidInterval)

	d := Diagnose(res.Error(), clock())
	assert.Equal(t, KindInvalidInterval, d.Kind)
	assert.Equal(t, clock(), d.At)
	assert.ErrorIs(t, d, ErrInvalidInterval)
}

func TestPreviewCountOption(t *testing.T) {
	c := New(time.UTC, WithClock(clock), WithReporter(&recorder{}), WithPreviewCount(10))
	assert.Len(t, c.Preview().Occurrences, 10)
}
