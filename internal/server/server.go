/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes the HTTP control surface: playback transport
// controls, show loading, compilation and export, universe inspection,
// and a websocket monitor feed.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/varghele/QLCplusShowCreator/internal/events"
	"github.com/varghele/QLCplusShowCreator/internal/logbuffer"
	"github.com/varghele/QLCplusShowCreator/internal/show"
	"github.com/varghele/QLCplusShowCreator/internal/telemetry"
)

// Server wires the show service to HTTP handlers.
type Server struct {
	log  zerolog.Logger
	svc  *show.Service
	bus  *events.Bus
	logs *logbuffer.Buffer
}

// New creates a server. logs may be nil when no capture buffer is
// configured.
func New(log zerolog.Logger, svc *show.Service, bus *events.Bus, logs *logbuffer.Buffer) *Server {
	return &Server{
		log:  log.With().Str("component", "server").Logger(),
		svc:  svc,
		bus:  bus,
		logs: logs,
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(telemetry.MetricsMiddleware)
	r.Use(s.requestLogger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/shows", s.handleShowsList)
		r.Post("/shows/{name}/load", s.handleShowLoad)
		r.Post("/shows/{name}/compile", s.handleShowCompile)
		r.Get("/shows/{name}/export", s.handleShowExport)

		r.Route("/playback", func(r chi.Router) {
			r.Get("/status", s.handlePlaybackStatus)
			r.Post("/play", s.handlePlay)
			r.Post("/halt", s.handleHalt)
			r.Post("/stop", s.handleStop)
			r.Post("/seek", s.handleSeek)
		})

		r.Get("/universes", s.handleUniversesList)
		r.Get("/universes/{id}", s.handleUniverseBuffer)

		r.Get("/logs", s.handleLogs)

		r.Get("/ws/monitor", s.handleMonitorWS)
	})

	r.Handle("/metrics", telemetry.Handler())
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"show":   s.svc.CurrentShow(),
		"state":  s.svc.Engine().State(),
	})
}

func (s *Server) handleShowsList(w http.ResponseWriter, r *http.Request) {
	doc := s.svc.Document()
	names := make([]string, 0, len(doc.Shows))
	for _, sh := range doc.Shows {
		names = append(names, sh.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"workspace": doc.Name, "shows": names})
}

func (s *Server) handleShowLoad(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.svc.LoadShow(name); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"loaded": name})
}

func (s *Server) handleShowCompile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tracks, err := s.svc.CompileShow(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	type seqSummary struct {
		Name  string `json:"name"`
		Steps int    `json:"steps"`
	}
	summary := make(map[string][]seqSummary, len(tracks))
	for _, t := range tracks {
		for _, seq := range t.Sequences {
			summary[t.Lane] = append(summary[t.Lane], seqSummary{Name: seq.Name, Steps: len(seq.Description.Steps)})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"show": name, "tracks": summary})
}

func (s *Server) handleShowExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.svc.Document().Show(name); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("show %q not in workspace", name))
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".qxw"))
	if err := s.svc.ExportShow(name, w); err != nil {
		s.log.Error().Err(err).Str("show", name).Msg("export failed")
	}
}

func (s *Server) handlePlaybackStatus(w http.ResponseWriter, r *http.Request) {
	engine := s.svc.Engine()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    engine.State(),
		"position": engine.Position(),
		"show":     s.svc.CurrentShow(),
	})
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if s.svc.CurrentShow() == "" {
		writeError(w, http.StatusConflict, fmt.Errorf("no show loaded"))
		return
	}
	s.svc.Engine().Play()
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.svc.Engine().State())})
}

func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request) {
	s.svc.Engine().Halt()
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.svc.Engine().State())})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.svc.Engine().Stop()
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.svc.Engine().State())})
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Position float64 `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if body.Position < 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("position must be >= 0"))
		return
	}
	s.svc.Engine().Seek(body.Position)
	writeJSON(w, http.StatusOK, map[string]float64{"position": body.Position})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("log capture not enabled"))
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit"))
			return
		}
		limit = n
	}

	q := r.URL.Query()
	entries := s.logs.Query(q.Get("level"), q.Get("component"), limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"components": s.logs.Components(),
	})
}

func (s *Server) handleUniversesList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"universes": s.svc.Compositor().Universes()})
}

func (s *Server) handleUniverseBuffer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid universe id"))
		return
	}
	buf := s.svc.Compositor().Buffer(id)
	values := make([]int, len(buf))
	for i, b := range buf {
		values[i] = int(b)
	}
	writeJSON(w, http.StatusOK, map[string]any{"universe": id, "channels": values})
}
