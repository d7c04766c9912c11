package configurator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"

	"recurcal/internal/dates"
	"recurcal/internal/model"
	"recurcal/internal/recurrence"
)

var ErrInvalidInterval = recurrence.ErrInvalidInterval

// State is the form state of one configurator. All fields are plain values,
// so copying a State snapshots it.
type State struct {
	Frequency model.Frequency

	// Interval holds the parse result of the user's input; text that is not
	// a number is kept as an error until derivation reports it.
	Interval mo.Result[int]

	Weekdays model.WeekdaySet
	Nth      model.NthWeekday

	// Start and End are calendar days at 00:00 in the display location.
	// End, when present, is inclusive.
	Start time.Time
	End   mo.Option[time.Time]
}

// DefaultState is the state of a freshly mounted form.
func DefaultState(now time.Time, loc *time.Location) State {
	return State{
		Frequency: model.Weekly,
		Interval:  mo.Ok(1),
		Nth:       model.NthWeekday{Ordinal: model.First, Weekday: model.Monday},
		Start:     dates.StartOfDay(now, loc),
		End:       mo.None[time.Time](),
	}
}

// ParseInterval parses interval input the way a number field reports it.
func ParseInterval(s string) mo.Result[int] {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return mo.Err[int](fmt.Errorf("configurator: %w: %q is not a number", ErrInvalidInterval, s))
	}
	return mo.Ok(n)
}

// IntervalText renders the interval for display, empty when invalid.
func (s State) IntervalText() string {
	n, err := s.Interval.Get()
	if err != nil {
		return ""
	}
	return strconv.Itoa(n)
}

// Options assembles the engine configuration for s. Weekdays apply only to
// WEEKLY, the nth-weekday rule only to MONTHLY.
func (s State) Options(loc *time.Location) (recurrence.Options, error) {
	if !s.Frequency.Valid() {
		return recurrence.Options{}, fmt.Errorf("configurator: %w: %q", model.ErrUnknownFrequency, s.Frequency)
	}
	interval, err := s.Interval.Get()
	if err != nil {
		if !errors.Is(err, ErrInvalidInterval) {
			err = fmt.Errorf("configurator: %w: %v", ErrInvalidInterval, err)
		}
		return recurrence.Options{}, err
	}
	if interval < 1 {
		return recurrence.Options{}, fmt.Errorf("configurator: %w (got %d)", ErrInvalidInterval, interval)
	}

	opts := recurrence.Options{
		Frequency: s.Frequency,
		Interval:  interval,
		Start:     s.Start,
	}
	if end, ok := s.End.Get(); ok {
		opts.Until = dates.EndOfDay(end, loc)
	}

	switch s.Frequency {
	case model.Weekly:
		opts.Weekdays = s.Weekdays.Days()
	case model.Monthly:
		nth := s.Nth
		opts.Nth = &nth
	}
	return opts, nil
}

// FromOptions is the inverse of Options for the rule shapes the form can
// express. Fields the options do not mention keep their value from base.
func FromOptions(base State, opts recurrence.Options, loc *time.Location) State {
	s := base
	s.Frequency = opts.Frequency
	s.Interval = mo.Ok(opts.Interval)
	if !opts.Start.IsZero() {
		s.Start = dates.StartOfDay(opts.Start, loc)
	}
	if opts.Until.IsZero() {
		s.End = mo.None[time.Time]()
	} else {
		s.End = mo.Some(dates.StartOfDay(opts.Until, loc))
	}
	if opts.Frequency == model.Weekly {
		s.Weekdays = model.NewWeekdaySet(opts.Weekdays...)
	}
	if opts.Nth != nil {
		s.Nth = *opts.Nth
	}
	return s
}

// Describe summarizes s in words, e.g. "every 2 weeks on Mon, Wed, Fri".
func (s State) Describe() string {
	interval, err := s.Interval.Get()
	if err != nil || interval < 1 || !s.Frequency.Valid() {
		return ""
	}

	var b strings.Builder
	if interval == 1 {
		b.WriteString("every ")
		b.WriteString(s.Frequency.Unit())
	} else {
		fmt.Fprintf(&b, "every %d %ss", interval, s.Frequency.Unit())
	}

	switch s.Frequency {
	case model.Weekly:
		if !s.Weekdays.Empty() {
			b.WriteString(" on ")
			b.WriteString(s.Weekdays.String())
		}
	case model.Monthly:
		b.WriteString(" on the ")
		b.WriteString(s.Nth.String())
	}

	if end, ok := s.End.Get(); ok {
		b.WriteString(" until ")
		b.WriteString(dates.Format(end, dates.ISODate))
	}
	return b.String()
}
