package web

import (
	"time"

	"recurcal/internal/configurator"
	"recurcal/internal/dates"
	"recurcal/internal/model"
)

// viewResponse is the JSON shape of one session's form and preview.
type viewResponse struct {
	SessionID  string         `json:"session_id,omitempty"`
	State      stateDTO       `json:"state"`
	Rule       string         `json:"rule"`
	Dates      []string       `json:"dates"`
	Labels     []string       `json:"labels"`
	Summary    string         `json:"summary"`
	Diagnostic *diagnosticDTO `json:"diagnostic,omitempty"`
}

type stateDTO struct {
	Frequency  string   `json:"frequency"`
	Interval   string   `json:"interval"`
	Weekdays   []string `json:"weekdays"`
	NthOrdinal int      `json:"nth_ordinal"`
	NthWeekday string   `json:"nth_weekday"`
	Start      string   `json:"start"`
	End        string   `json:"end,omitempty"`
}

type diagnosticDTO struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func newStateDTO(st configurator.State) stateDTO {
	days := make([]string, 0, st.Weekdays.Len())
	for _, d := range st.Weekdays.Days() {
		days = append(days, d.String())
	}
	out := stateDTO{
		Frequency:  string(st.Frequency),
		Interval:   st.IntervalText(),
		Weekdays:   days,
		NthOrdinal: int(st.Nth.Ordinal),
		NthWeekday: st.Nth.Weekday.String(),
		Start:      dates.Format(st.Start, dates.ISODate),
	}
	if end, ok := st.End.Get(); ok {
		out.End = dates.Format(end, dates.ISODate)
	}
	return out
}

func newDiagnosticDTO(d configurator.Diagnostic) *diagnosticDTO {
	return &diagnosticDTO{Kind: string(d.Kind), Message: d.Message, At: d.At}
}

// viewOf must be called while holding the session (inside Session.Do).
func (s *Server) viewOf(id string, c *configurator.Configurator) viewResponse {
	v := s.previewView(c.State(), c.Preview())
	v.SessionID = id
	if d, ok := c.Diagnostic().Get(); ok {
		v.Diagnostic = newDiagnosticDTO(d)
	}
	return v
}

func (s *Server) previewView(st configurator.State, p model.Preview) viewResponse {
	return viewResponse{
		State:   newStateDTO(st),
		Rule:    p.RuleText,
		Dates:   dates.FormatAll(p.Occurrences, dates.ISODate),
		Labels:  dates.FormatAll(p.Occurrences, s.cfg.DateFormat),
		Summary: st.Describe(),
	}
}

type optionDTO struct {
	Value any    `json:"value"`
	Label string `json:"label"`
}

type optionsResponse struct {
	Frequencies []optionDTO `json:"frequencies"`
	Ordinals    []optionDTO `json:"ordinals"`
	Weekdays    []optionDTO `json:"weekdays"`
	DateFormat  string      `json:"date_format"`
	Timezone    string      `json:"timezone"`
}

func (s *Server) options() optionsResponse {
	out := optionsResponse{
		DateFormat: dates.ISODate,
		Timezone:   s.loc.String(),
	}
	for _, f := range model.Frequencies {
		out.Frequencies = append(out.Frequencies, optionDTO{Value: string(f), Label: f.Label()})
	}
	for _, o := range model.Ordinals {
		out.Ordinals = append(out.Ordinals, optionDTO{Value: int(o), Label: o.String()})
	}
	for _, w := range model.Weekdays {
		out.Weekdays = append(out.Weekdays, optionDTO{Value: int(w), Label: w.String()})
	}
	return out
}
