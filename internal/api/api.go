// Package api is the control and read surface consumed by the external UI
// collaborator: candidates come in, snapshots and statistics go out.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"missiontracker/internal/engine"
)

// Server mounts the tracker API onto a chi router.
type Server struct {
	engine *engine.Engine
	log    *slog.Logger
}

func NewServer(e *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: e, log: logger}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tracking": s.engine.Running()})
	})
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/stats", s.handleStats)
		r.Post("/candidates", s.handleCandidates)
		r.Post("/tracking/start", s.handleStart)
		r.Post("/tracking/stop", s.handleStop)
		r.Put("/filter", s.handleFilter)
		r.Post("/profiles/refresh", s.handleRefreshProfiles)
		r.Delete("/data", s.handleClear)
	})
	return r
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.engine.Metrics().Write(w, s.engine.Gauges())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ExportSnapshot())
}

// handleStats aggregates over either a named preset (?filter=week) or an
// explicit unix-seconds range (?start=&end=). start=0 means all time.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var win engine.Window
	if startRaw := q.Get("start"); startRaw != "" {
		start, err := strconv.ParseInt(startRaw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start")
			return
		}
		end := time.Now()
		if endRaw := q.Get("end"); endRaw != "" {
			v, err := strconv.ParseInt(endRaw, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid end")
				return
			}
			end = time.Unix(v, 0)
		}
		if start > 0 {
			win.Start = time.Unix(start, 0)
		}
		win.End = end
	} else {
		win = engine.WindowForFilter(q.Get("filter"), time.Now())
	}
	writeJSON(w, http.StatusOK, s.engine.StatsFor(win))
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	queued := s.engine.DiscoveredIdentifiers(req.IDs)
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	s.engine.Start()
	writeJSON(w, http.StatusOK, map[string]bool{"tracking": true})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"tracking": false})
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filter string `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	switch req.Filter {
	case engine.FilterDay, engine.FilterWeek, engine.FilterMonth, engine.FilterLifetime:
	default:
		writeError(w, http.StatusBadRequest, "unknown filter")
		return
	}
	s.engine.SetTimeFilter(req.Filter)
	writeJSON(w, http.StatusOK, map[string]string{"filter": req.Filter})
}

func (s *Server) handleRefreshProfiles(w http.ResponseWriter, _ *http.Request) {
	n := s.engine.ForceRefreshProfiles()
	writeJSON(w, http.StatusAccepted, map[string]int{"scheduled": n})
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.engine.Session().ClearAll()
	s.log.Info("all tracked data cleared")
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
