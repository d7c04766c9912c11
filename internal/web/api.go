package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/mo"

	"recurcal/internal/configurator"
	"recurcal/internal/ics"
	appLog "recurcal/internal/log"
	"recurcal/internal/model"
	"recurcal/internal/session"
)

const maxImportBytes = 1 << 20

var errUnknownOp = errors.New("unknown mutation op")

// mutation is one form edit: {"op": "toggle_weekday", "value": "MO"}.
type mutation struct {
	Op    string `json:"op"`
	Value string `json:"value"`
}

// apply runs m against c. The returned error means the input itself was
// unusable; derivation failures surface as the configurator's diagnostic.
func (s *Server) apply(c *configurator.Configurator, m mutation) error {
	switch strings.ToLower(strings.TrimSpace(m.Op)) {
	case "frequency":
		return c.SetFrequencyText(m.Value)
	case "interval":
		c.SetIntervalText(m.Value)
		return nil
	case "toggle_weekday":
		w, err := model.ParseWeekday(m.Value)
		if err != nil {
			return err
		}
		return c.ToggleWeekday(w)
	case "nth_ordinal":
		o, err := model.ParseOrdinal(m.Value)
		if err != nil {
			return err
		}
		return c.SetNthOrdinal(o)
	case "nth_weekday":
		w, err := model.ParseWeekday(m.Value)
		if err != nil {
			return err
		}
		return c.SetNthWeekday(w)
	case "start_date":
		d, err := s.dates.Parse(m.Value, s.now())
		if err != nil {
			return err
		}
		c.SetStartDate(d)
		return nil
	case "end_date":
		d, ok, err := s.dates.ParseOptional(m.Value, s.now())
		if err != nil {
			return err
		}
		if ok {
			c.SetEndDate(mo.Some(d))
		} else {
			c.SetEndDate(mo.None[time.Time]())
		}
		return nil
	}
	return fmt.Errorf("%w: %q", errUnknownOp, m.Op)
}

func (s *Server) handleOptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.options())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.store.Create()
	var view viewResponse
	sess.Do(func(c *configurator.Configurator) {
		view = s.viewOf(sess.ID, c)
	})
	writeJSON(w, http.StatusCreated, view)
}

// lookup resolves {id} or writes a 404.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var view viewResponse
	sess.Do(func(c *configurator.Configurator) {
		view = s.viewOf(sess.ID, c)
	})
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.store.Delete(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, session.ErrNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMutation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var m mutation
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	var (
		view     viewResponse
		applyErr error
	)
	sess.Do(func(c *configurator.Configurator) {
		applyErr = s.apply(c, m)
		view = s.viewOf(sess.ID, c)
	})
	if applyErr != nil {
		writeError(w, http.StatusBadRequest, applyErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var body string
	var ruleErr error
	sess.Do(func(c *configurator.Configurator) {
		rule, err := c.Rule()
		if err != nil {
			ruleErr = err
			return
		}
		body = ics.Export(rule, ics.ExportOptions{
			Summary: strings.TrimSpace(r.URL.Query().Get("summary")),
			Now:     s.now(),
		})
	})
	if ruleErr != nil {
		writeError(w, http.StatusConflict, ruleErr.Error())
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="recurrence.ics"`)
	_, _ = io.WriteString(w, body)
}

// handleImport restores a session from an ICS payload, canonical rule text,
// or an ICS feed named by ?url=.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var body []byte
	if u := strings.TrimSpace(r.URL.Query().Get("url")); u != "" {
		if s.fetcher == nil {
			writeError(w, http.StatusBadRequest, "import by url is disabled")
			return
		}
		b, err := s.fetcher.Fetch(r.Context(), u)
		if err != nil {
			appLog.Warn("ics import fetch failed", "error", err.Error())
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		body = b
	} else {
		b, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body: "+err.Error())
			return
		}
		body = b
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		writeError(w, http.StatusBadRequest, "empty import body")
		return
	}

	var (
		view      viewResponse
		importErr error
	)
	if strings.Contains(text, "BEGIN:VCALENDAR") {
		imp, err := ics.Import(body, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		appLog.Info("ics event imported", "session", sess.ID, "uid", imp.UID)
		sess.Do(func(c *configurator.Configurator) {
			c.Restore(imp.Options)
			view = s.viewOf(sess.ID, c)
		})
	} else {
		sess.Do(func(c *configurator.Configurator) {
			importErr = c.RestoreText(text)
			view = s.viewOf(sess.ID, c)
		})
	}
	if importErr != nil {
		writeError(w, http.StatusBadRequest, importErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type previewError struct {
	Error      string         `json:"error"`
	Diagnostic *diagnosticDTO `json:"diagnostic"`
}

// handlePreview derives a one-shot preview from query parameters without
// touching any session.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	st, err := s.stateFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := configurator.Derive(st, s.loc, s.cfg.PreviewCount).Get()
	if err != nil {
		d := configurator.Diagnose(err, s.now())
		writeJSON(w, http.StatusUnprocessableEntity, previewError{
			Error:      d.Error(),
			Diagnostic: newDiagnosticDTO(d),
		})
		return
	}
	writeJSON(w, http.StatusOK, s.previewView(st, p))
}

func (s *Server) stateFromQuery(q url.Values) (configurator.State, error) {
	now := s.now()
	st := configurator.DefaultState(now, s.loc)

	if v := q.Get("freq"); v != "" {
		f, err := model.ParseFrequency(v)
		if err != nil {
			return st, err
		}
		st.Frequency = f
	}
	if q.Has("interval") {
		st.Interval = configurator.ParseInterval(q.Get("interval"))
	}
	if v := q.Get("days"); v != "" {
		for _, part := range strings.Split(v, ",") {
			d, err := model.ParseWeekday(part)
			if err != nil {
				return st, err
			}
			st.Weekdays = st.Weekdays.Add(d)
		}
	}
	if v := q.Get("nth"); v != "" {
		o, err := model.ParseOrdinal(v)
		if err != nil {
			return st, err
		}
		st.Nth.Ordinal = o
	}
	if v := q.Get("nth_day"); v != "" {
		d, err := model.ParseWeekday(v)
		if err != nil {
			return st, err
		}
		st.Nth.Weekday = d
	}
	if v := q.Get("start"); v != "" {
		d, err := s.dates.Parse(v, now)
		if err != nil {
			return st, err
		}
		st.Start = d
	}
	end, ok, err := s.dates.ParseOptional(q.Get("end"), now)
	if err != nil {
		return st, err
	}
	if ok {
		st.End = mo.Some(end)
	}
	return st, nil
}
