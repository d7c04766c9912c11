package configurator

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"

	"recurcal/internal/dates"
	appLog "recurcal/internal/log"
	"recurcal/internal/model"
	"recurcal/internal/recurrence"
)

// DefaultPreviewCount is how many upcoming dates the preview lists.
const DefaultPreviewCount = 6

// DiagnosticKind classifies a failed derivation.
type DiagnosticKind string

const (
	KindInvalidInterval DiagnosticKind = "invalid_interval"
	KindEngineRejected  DiagnosticKind = "engine_rejected"
	KindInvalidInput    DiagnosticKind = "invalid_input"
)

// Diagnostic describes why the preview was not updated.
type Diagnostic struct {
	Kind    DiagnosticKind
	Message string
	At      time.Time
	Err     error
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

// Diagnose wraps a derivation error as a Diagnostic stamped at.
func Diagnose(err error, at time.Time) Diagnostic {
	return Diagnostic{Kind: classify(err), Message: err.Error(), At: at, Err: err}
}

func classify(err error) DiagnosticKind {
	switch {
	case errors.Is(err, ErrInvalidInterval):
		return KindInvalidInterval
	case errors.Is(err, model.ErrUnknownFrequency),
		errors.Is(err, model.ErrUnknownWeekday),
		errors.Is(err, model.ErrInvalidOrdinal):
		return KindInvalidInput
	default:
		return KindEngineRejected
	}
}

// Reporter receives derivation failures.
type Reporter interface {
	Report(d Diagnostic)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(d Diagnostic)

func (f ReporterFunc) Report(d Diagnostic) { f(d) }

// LogReporter writes diagnostics to the error log.
var LogReporter Reporter = ReporterFunc(func(d Diagnostic) {
	appLog.Error("recurrence derivation failed", d.Err, "kind", string(d.Kind))
})

// Derive turns s into a preview of at most count occurrences. It never
// panics on bad state; failures carry the wrapped sentinel error, which
// Diagnose turns into a Diagnostic.
func Derive(s State, loc *time.Location, count int) mo.Result[model.Preview] {
	opts, err := s.Options(loc)
	if err != nil {
		return mo.Err[model.Preview](err)
	}
	rule, err := recurrence.Build(opts)
	if err != nil {
		return mo.Err[model.Preview](err)
	}
	return mo.Ok(model.Preview{
		RuleText:    rule.Text(),
		Occurrences: recurrence.Take(rule.Occurrences(), count),
	})
}

// Option customizes a Configurator.
type Option func(*Configurator)

// WithReporter replaces LogReporter.
func WithReporter(r Reporter) Option {
	return func(c *Configurator) { c.reporter = r }
}

// WithPreviewCount overrides DefaultPreviewCount.
func WithPreviewCount(n int) Option {
	return func(c *Configurator) {
		if n > 0 {
			c.count = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Configurator) { c.now = now }
}

// Configurator owns one form's state and keeps its preview in sync. It is
// not safe for concurrent use; callers serialize access.
//
// When a derivation fails the last successful preview stays published and
// the failure is kept in Diagnostic until the next successful derivation.
type Configurator struct {
	loc      *time.Location
	count    int
	now      func() time.Time
	reporter Reporter

	state   State
	preview model.Preview
	diag    mo.Option[Diagnostic]
}

// New mounts a configurator with default state and derives the first preview.
func New(loc *time.Location, opts ...Option) *Configurator {
	if loc == nil {
		loc = time.Local
	}
	c := &Configurator{
		loc:      loc,
		count:    DefaultPreviewCount,
		now:      time.Now,
		reporter: LogReporter,
		diag:     mo.None[Diagnostic](),
	}
	for _, o := range opts {
		o(c)
	}
	c.state = DefaultState(c.now(), loc)
	c.derive()
	return c
}

func (c *Configurator) Location() *time.Location { return c.loc }

// State returns a snapshot of the form state.
func (c *Configurator) State() State { return c.state }

// Preview returns the currently published preview.
func (c *Configurator) Preview() model.Preview { return c.preview }

// Diagnostic returns the failure of the latest derivation, if it failed.
func (c *Configurator) Diagnostic() mo.Option[Diagnostic] { return c.diag }

// Describe summarizes the current state in words.
func (c *Configurator) Describe() string { return c.state.Describe() }

func (c *Configurator) SetFrequency(f model.Frequency) error {
	if !f.Valid() {
		return fmt.Errorf("configurator: %w: %q", model.ErrUnknownFrequency, f)
	}
	c.state.Frequency = f
	c.derive()
	return nil
}

// SetFrequencyText parses a frequency name; unknown names leave state as is.
func (c *Configurator) SetFrequencyText(s string) error {
	f, err := model.ParseFrequency(s)
	if err != nil {
		return fmt.Errorf("configurator: %w", err)
	}
	return c.SetFrequency(f)
}

func (c *Configurator) SetInterval(n int) {
	c.state.Interval = mo.Ok(n)
	c.derive()
}

// SetIntervalText stores the parsed input. Non-numeric text is accepted and
// reported by derivation, like a number field holding NaN.
func (c *Configurator) SetIntervalText(s string) {
	c.state.Interval = ParseInterval(s)
	c.derive()
}

func (c *Configurator) ToggleWeekday(w model.Weekday) error {
	if !w.Valid() {
		return fmt.Errorf("configurator: %w: %d", model.ErrUnknownWeekday, int(w))
	}
	c.state.Weekdays = c.state.Weekdays.Toggle(w)
	c.derive()
	return nil
}

func (c *Configurator) SetNthOrdinal(o model.Ordinal) error {
	if !o.Valid() {
		return fmt.Errorf("configurator: %w: %d", model.ErrInvalidOrdinal, int(o))
	}
	c.state.Nth.Ordinal = o
	c.derive()
	return nil
}

func (c *Configurator) SetNthWeekday(w model.Weekday) error {
	if !w.Valid() {
		return fmt.Errorf("configurator: %w: %d", model.ErrUnknownWeekday, int(w))
	}
	c.state.Nth.Weekday = w
	c.derive()
	return nil
}

// SetStartDate sets the first day of the recurrence. Start is not checked
// against End here; the engine rejects inverted ranges.
func (c *Configurator) SetStartDate(d time.Time) {
	c.state.Start = dates.StartOfDay(d, c.loc)
	c.derive()
}

// SetEndDate sets or clears the inclusive end day.
func (c *Configurator) SetEndDate(d mo.Option[time.Time]) {
	if end, ok := d.Get(); ok {
		c.state.End = mo.Some(dates.StartOfDay(end, c.loc))
	} else {
		c.state.End = mo.None[time.Time]()
	}
	c.derive()
}

// Restore replaces the whole state with one built from rule options, e.g.
// parsed rule text or an imported calendar event.
func (c *Configurator) Restore(opts recurrence.Options) {
	c.state = FromOptions(c.state, opts, c.loc)
	c.derive()
}

// RestoreText parses canonical rule text and restores it.
func (c *Configurator) RestoreText(text string) error {
	opts, err := recurrence.Parse(text, c.loc)
	if err != nil {
		return fmt.Errorf("configurator: %w", err)
	}
	c.Restore(opts)
	return nil
}

// Rule builds the engine rule for the current state.
func (c *Configurator) Rule() (*recurrence.Rule, error) {
	opts, err := c.state.Options(c.loc)
	if err != nil {
		return nil, err
	}
	return recurrence.Build(opts)
}

func (c *Configurator) derive() {
	res := Derive(c.state, c.loc, c.count)
	p, err := res.Get()
	if err != nil {
		d := Diagnose(err, c.now())
		c.diag = mo.Some(d)
		if c.reporter != nil {
			c.reporter.Report(d)
		}
		return
	}
	c.preview = p
	c.diag = mo.None[Diagnostic]()
	appLog.Debug("recurrence derived", "rule", p.RuleText, "occurrences", len(p.Occurrences))
}
