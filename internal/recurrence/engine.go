package recurrence

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"recurcal/internal/model"
)

var (
	// ErrInvalidInterval is returned for intervals below 1. rrule-go quietly
	// turns 0 into 1, so the check has to happen here.
	ErrInvalidInterval = errors.New("interval must be at least 1")
	ErrEndBeforeStart  = errors.New("end date is before start date")
	ErrEngineRejected  = errors.New("rule rejected by engine")
	ErrUnparsableRule  = errors.New("rule text could not be parsed")
)

// Options is the engine-independent rule configuration built from form state.
type Options struct {
	Frequency model.Frequency
	Interval  int
	Start     time.Time

	// Until is the inclusive recurrence horizon; zero means unbounded.
	Until time.Time

	// Weekdays constrains WEEKLY rules; empty leaves the engine default.
	Weekdays []model.Weekday

	// Nth constrains MONTHLY rules to one nth-weekday-of-month.
	Nth *model.NthWeekday
}

// Rule is a built recurrence rule.
type Rule struct {
	opts Options
	r    *rrule.RRule
}

var freqToRRule = map[model.Frequency]rrule.Frequency{
	model.Daily:   rrule.DAILY,
	model.Weekly:  rrule.WEEKLY,
	model.Monthly: rrule.MONTHLY,
	model.Yearly:  rrule.YEARLY,
}

var weekdayToRRule = [...]rrule.Weekday{
	model.Sunday:    rrule.SU,
	model.Monday:    rrule.MO,
	model.Tuesday:   rrule.TU,
	model.Wednesday: rrule.WE,
	model.Thursday:  rrule.TH,
	model.Friday:    rrule.FR,
	model.Saturday:  rrule.SA,
}

// Build validates opts and hands them to rrule-go.
func Build(opts Options) (*Rule, error) {
	freq, ok := freqToRRule[opts.Frequency]
	if !ok {
		return nil, fmt.Errorf("recurrence: %w: %q", model.ErrUnknownFrequency, opts.Frequency)
	}
	if opts.Interval < 1 {
		return nil, fmt.Errorf("recurrence: %w (got %d)", ErrInvalidInterval, opts.Interval)
	}
	if opts.Start.IsZero() {
		return nil, fmt.Errorf("recurrence: %w: start date is required", ErrEngineRejected)
	}
	if !opts.Until.IsZero() && opts.Until.Before(opts.Start) {
		return nil, fmt.Errorf("recurrence: %w", ErrEndBeforeStart)
	}

	ro := rrule.ROption{
		Freq:     freq,
		Interval: opts.Interval,
		Dtstart:  opts.Start,
		Until:    opts.Until,
		Wkst:     rrule.MO,
	}

	for _, w := range opts.Weekdays {
		if !w.Valid() {
			return nil, fmt.Errorf("recurrence: %w: %d", model.ErrUnknownWeekday, int(w))
		}
		ro.Byweekday = append(ro.Byweekday, weekdayToRRule[w])
	}

	if opts.Nth != nil {
		if !opts.Nth.Ordinal.Valid() {
			return nil, fmt.Errorf("recurrence: %w: %d", model.ErrInvalidOrdinal, int(opts.Nth.Ordinal))
		}
		if !opts.Nth.Weekday.Valid() {
			return nil, fmt.Errorf("recurrence: %w: %d", model.ErrUnknownWeekday, int(opts.Nth.Weekday))
		}
		wd := weekdayToRRule[opts.Nth.Weekday]
		ro.Byweekday = []rrule.Weekday{wd.Nth(int(opts.Nth.Ordinal))}
	}

	r, err := rrule.NewRRule(ro)
	if err != nil {
		return nil, fmt.Errorf("recurrence: %w: %v", ErrEngineRejected, err)
	}
	return &Rule{opts: opts, r: r}, nil
}

// Options returns the configuration the rule was built from.
func (r *Rule) Options() Options {
	return r.opts
}

// Text returns the engine's canonical encoding, e.g.
//
//	DTSTART:20240101T000000Z
//	RRULE:FREQ=WEEKLY;INTERVAL=1;BYDAY=MO,WE,FR
func (r *Rule) Text() string {
	return r.r.String()
}

// RRule returns only the RRULE value (no DTSTART line), as embedded in ICS.
func (r *Rule) RRule() string {
	return r.r.OrigOptions.RRuleString()
}

// DateRRule is RRule for an all-day DTSTART: UNTIL is written as a DATE so
// it matches the VALUE=DATE start, as RFC 5545 requires.
func (r *Rule) DateRRule() string {
	o := r.r.OrigOptions
	o.Until = time.Time{}
	s := o.RRuleString()
	if r.opts.Until.IsZero() {
		return s
	}
	return s + ";UNTIL=" + r.opts.Until.Format(rrule.DateFormat)
}

// Occurrences lazily yields occurrence times in ascending order, starting at
// or after the start date and stopping at Until when set.
func (r *Rule) Occurrences() iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		next := r.r.Iterator()
		for {
			t, ok := next()
			if !ok || !yield(t) {
				return
			}
		}
	}
}

// Take collects at most n values from seq.
func Take(seq iter.Seq[time.Time], n int) []time.Time {
	out := make([]time.Time, 0, max(n, 0))
	if n <= 0 {
		return out
	}
	for t := range seq {
		out = append(out, t)
		if len(out) == n {
			break
		}
	}
	return out
}

// Parse reads rule text in the format produced by Rule.Text (a bare RRULE
// value is accepted too) back into Options. Times without a zone are read in
// loc. Constraints this configurator cannot express are rejected.
func Parse(text string, loc *time.Location) (Options, error) {
	if loc == nil {
		loc = time.Local
	}
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return Options{}, fmt.Errorf("recurrence: %w: empty text", ErrUnparsableRule)
	}

	ro, err := rrule.StrToROptionInLocation(text, loc)
	if err != nil {
		return Options{}, fmt.Errorf("recurrence: %w: %v", ErrUnparsableRule, err)
	}

	var opts Options
	switch ro.Freq {
	case rrule.DAILY:
		opts.Frequency = model.Daily
	case rrule.WEEKLY:
		opts.Frequency = model.Weekly
	case rrule.MONTHLY:
		opts.Frequency = model.Monthly
	case rrule.YEARLY:
		opts.Frequency = model.Yearly
	default:
		return Options{}, fmt.Errorf("recurrence: %w: frequency %v", ErrUnparsableRule, ro.Freq)
	}

	opts.Interval = ro.Interval
	if opts.Interval == 0 {
		opts.Interval = 1
	}
	opts.Start = ro.Dtstart
	if !opts.Start.IsZero() {
		opts.Start = opts.Start.In(loc)
	}
	if !ro.Until.IsZero() {
		opts.Until = ro.Until.In(loc)
	}

	if ro.Count != 0 || len(ro.Bysetpos) > 0 || len(ro.Bymonth) > 0 || len(ro.Bymonthday) > 0 ||
		len(ro.Byyearday) > 0 || len(ro.Byweekno) > 0 || len(ro.Byhour) > 0 ||
		len(ro.Byminute) > 0 || len(ro.Bysecond) > 0 || len(ro.Byeaster) > 0 {
		return Options{}, fmt.Errorf("recurrence: %w: unsupported rule parts in %q", ErrUnparsableRule, ro.RRuleString())
	}

	for _, wd := range ro.Byweekday {
		day := fromRRuleWeekday(wd)
		switch {
		case wd.N() == 0 && opts.Frequency == model.Weekly:
			opts.Weekdays = append(opts.Weekdays, day)
		case wd.N() != 0 && opts.Frequency == model.Monthly && len(ro.Byweekday) == 1:
			nth := model.NthWeekday{Ordinal: model.Ordinal(wd.N()), Weekday: day}
			if !nth.Ordinal.Valid() {
				return Options{}, fmt.Errorf("recurrence: %w: %v", model.ErrInvalidOrdinal, wd)
			}
			opts.Nth = &nth
		default:
			return Options{}, fmt.Errorf("recurrence: %w: BYDAY=%v with %s", ErrUnparsableRule, wd, opts.Frequency)
		}
	}
	// Monthly rules are always "nth weekday of the month" here.
	if opts.Frequency == model.Monthly && opts.Nth == nil {
		return Options{}, fmt.Errorf("recurrence: %w: MONTHLY needs one nth BYDAY", ErrUnparsableRule)
	}

	return opts, nil
}

// fromRRuleWeekday converts rrule-go's Monday-first index to model.Weekday.
func fromRRuleWeekday(wd rrule.Weekday) model.Weekday {
	return model.Weekday((wd.Day() + 1) % 7)
}
