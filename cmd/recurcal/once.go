package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/mo"

	"recurcal/internal/config"
	"recurcal/internal/configurator"
	"recurcal/internal/dates"
	"recurcal/internal/model"
)

// stateFlags are the raw form values given on the command line. Empty
// fields keep the form default.
type stateFlags struct {
	freq     string
	interval string
	days     string
	nth      string
	nthDay   string
	start    string
	end      string
}

// applyState feeds the flags into c in form order.
func applyState(c *configurator.Configurator, sf stateFlags, now time.Time) error {
	p := dates.NewParser(c.Location())

	if sf.freq != "" {
		if err := c.SetFrequencyText(sf.freq); err != nil {
			return err
		}
	}
	if sf.interval != "" {
		c.SetIntervalText(sf.interval)
	}
	if sf.days != "" {
		seen := model.NewWeekdaySet()
		for _, part := range strings.Split(sf.days, ",") {
			w, err := model.ParseWeekday(part)
			if err != nil {
				return err
			}
			if seen.Has(w) {
				continue
			}
			seen = seen.Add(w)
			if err := c.ToggleWeekday(w); err != nil {
				return err
			}
		}
	}
	if sf.nth != "" {
		o, err := model.ParseOrdinal(sf.nth)
		if err != nil {
			return err
		}
		if err := c.SetNthOrdinal(o); err != nil {
			return err
		}
	}
	if sf.nthDay != "" {
		w, err := model.ParseWeekday(sf.nthDay)
		if err != nil {
			return err
		}
		if err := c.SetNthWeekday(w); err != nil {
			return err
		}
	}
	if sf.start != "" {
		d, err := p.Parse(sf.start, now)
		if err != nil {
			return err
		}
		c.SetStartDate(d)
	}
	if sf.end != "" {
		d, err := p.Parse(sf.end, now)
		if err != nil {
			return err
		}
		c.SetEndDate(mo.Some(d))
	}
	return nil
}

// runOnce derives a single preview from sf and prints the summary, rule text
// and dates to w.
func runOnce(w io.Writer, sf stateFlags, loc *time.Location, conf *config.Config, now time.Time) error {
	c := configurator.New(loc,
		configurator.WithPreviewCount(conf.PreviewCount),
		configurator.WithClock(func() time.Time { return now }),
	)
	if err := applyState(c, sf, now); err != nil {
		return err
	}
	if d, ok := c.Diagnostic().Get(); ok {
		return d
	}

	p := c.Preview()
	fmt.Fprintln(w, c.Describe())
	fmt.Fprintln(w, p.RuleText)
	for _, s := range dates.FormatAll(p.Occurrences, conf.DateFormat) {
		fmt.Fprintln(w, s)
	}
	return nil
}
