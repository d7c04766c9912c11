package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "recurcal/internal/log"
	"recurcal/internal/recurrence"
)

const productID = "-//recurcal//Recurrence Configurator//EN"

var ErrNoRecurringEvent = errors.New("no recurring event found")

// ExportOptions controls the VEVENT written by Export.
type ExportOptions struct {
	// Summary is the event title. Empty uses "Recurring event".
	Summary string
	// UID defaults to a random UUID.
	UID string
	// Now stamps DTSTAMP. Zero uses time.Now.
	Now time.Time
}

// Export writes rule as a one-event calendar: an all-day VEVENT on the start
// day carrying the RRULE.
func Export(rule *recurrence.Rule, eo ExportOptions) string {
	if eo.Summary == "" {
		eo.Summary = "Recurring event"
	}
	if eo.UID == "" {
		eo.UID = uuid.NewString() + "@recurcal"
	}
	if eo.Now.IsZero() {
		eo.Now = time.Now()
	}

	opts := rule.Options()

	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)

	ev := cal.AddEvent(eo.UID)
	ev.SetDtStampTime(eo.Now)
	ev.SetSummary(eo.Summary)
	ev.SetAllDayStartAt(opts.Start)
	ev.SetAllDayEndAt(opts.Start.AddDate(0, 0, 1))
	ev.AddRrule(rule.DateRRule())

	return cal.Serialize()
}

// Imported is the recurrence found in an ICS payload.
type Imported struct {
	UID     string
	Summary string
	Options recurrence.Options
}

// Import finds the first VEVENT with an RRULE in body and converts it into
// rule options. DTSTART is read as a calendar day in loc.
func Import(body []byte, loc *time.Location) (Imported, error) {
	if len(body) == 0 {
		return Imported{}, errors.New("ics: empty body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return Imported{}, fmt.Errorf("ics: parse calendar: %w", err)
	}

	for _, ve := range cal.Events() {
		rp := ve.GetProperty(ical.ComponentPropertyRrule)
		if rp == nil || strings.TrimSpace(rp.Value) == "" {
			continue
		}
		if ridProp := ve.GetProperty(ical.ComponentPropertyRecurrenceId); ridProp != nil {
			// overrides of single instances carry no rule of their own
			continue
		}

		var out Imported
		if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
			out.UID = p.Value
		}
		if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
			out.Summary = p.Value
		}

		start, err := ve.GetStartAt()
		if err != nil {
			appLog.Error("ics import: bad DTSTART, skipping event", err, "uid", out.UID)
			continue
		}

		opts, err := recurrence.Parse(rp.Value, loc)
		if err != nil {
			return Imported{}, fmt.Errorf("ics: event %q: %w", out.UID, err)
		}
		opts.Start = dayIn(start, loc)
		if !opts.Until.IsZero() {
			opts.Until = dayIn(opts.Until, loc)
		}
		out.Options = opts

		appLog.Info("ics import completed", "uid", out.UID, "rrule", rp.Value)
		return out, nil
	}

	return Imported{}, fmt.Errorf("ics: %w", ErrNoRecurringEvent)
}

// dayIn keeps t's calendar date and re-anchors it at 00:00 in loc.
func dayIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
