package web

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"recurcal/internal/configurator"
	appLog "recurcal/internal/log"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

func (s *Server) newUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin admits requests without an Origin header, same-origin
// requests, and origins listed in allowed_origins. An empty list admits all.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	appLog.Warn("ws origin rejected", "origin", origin)
	return false
}

type wsInbound struct {
	Type  string `json:"type"`
	Op    string `json:"op,omitempty"`
	Value string `json:"value,omitempty"`
}

type wsOutbound struct {
	Type    string        `json:"type"`
	View    *viewResponse `json:"view,omitempty"`
	Code    string        `json:"code,omitempty"`
	Message string        `json:"message,omitempty"`
}

// handleWS streams a session's view: every inbound mutate is applied and
// answered with the updated view.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("session"))
	if id == "" {
		http.Error(w, "session is required", http.StatusBadRequest)
		return
	}
	sess, err := s.store.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	detach := sess.Attach()
	defer detach()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		appLog.Error("ws set read deadline failed", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		sess.Touch()
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writeCh := make(chan wsOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	appLog.Debug("ws connected", "session", id)
	pushWS(writeCh, s.viewMessage(sess.ID, sess.Do))

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			appLog.Debug("ws closed", "session", id)
			return
		}
		sess.Touch()

		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "ping":
			pushWS(writeCh, wsOutbound{Type: "pong"})
		case "mutate":
			var applyErr error
			out := s.viewMessage(sess.ID, func(fn func(*configurator.Configurator)) {
				sess.Do(func(c *configurator.Configurator) {
					applyErr = s.apply(c, mutation{Op: in.Op, Value: in.Value})
					fn(c)
				})
			})
			if applyErr != nil {
				pushWS(writeCh, wsOutbound{
					Type:    "error",
					Code:    "invalid_argument",
					Message: applyErr.Error(),
				})
				continue
			}
			pushWS(writeCh, out)
		case "":
			pushWS(writeCh, wsOutbound{
				Type:    "error",
				Code:    "invalid_argument",
				Message: "type is required",
			})
		default:
			pushWS(writeCh, wsOutbound{
				Type:    "error",
				Code:    "invalid_argument",
				Message: "unsupported type: " + in.Type,
			})
		}
	}
}

// viewMessage renders a "view" message using do to reach the configurator.
func (s *Server) viewMessage(id string, do func(func(*configurator.Configurator))) wsOutbound {
	var v viewResponse
	do(func(c *configurator.Configurator) {
		v = s.viewOf(id, c)
	})
	return wsOutbound{Type: "view", View: &v}
}

// pushWS enqueues out, dropping the oldest pending message when the writer
// is behind.
func pushWS(writeCh chan wsOutbound, out wsOutbound) {
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
