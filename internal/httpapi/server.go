// Package httpapi exposes the analysis engine over HTTP: a health
// probe, an SSE streaming endpoint, a fire-and-forget trigger, and
// snapshot reads.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/engine"
	"github.com/sells-group/visibility-cli/internal/store"
)

// Server wires HTTP routes to the engine and store.
type Server struct {
	eng *engine.Engine
	st  store.Store

	// baseCtx bounds background runs started by the async trigger so
	// they stop on process shutdown, not when the request returns.
	baseCtx context.Context
}

// NewServer creates a server. baseCtx is the process lifetime context.
func NewServer(baseCtx context.Context, eng *engine.Engine, st store.Store) *Server {
	return &Server{eng: eng, st: st, baseCtx: baseCtx}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/domains/{domainID}", func(r chi.Router) {
		r.Get("/analyze/stream", s.handleAnalyzeStream)
		r.Post("/analyze", s.handleAnalyzeAsync)
		r.Get("/snapshot", s.handleSnapshot)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.st.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		zap.L().Warn("health check store ping failed", zap.Error(err))
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// handleAnalyzeAsync starts a run in the background and returns 202.
// Events are consumed server-side; clients poll the snapshot endpoint.
func (s *Server) handleAnalyzeAsync(w http.ResponseWriter, r *http.Request) {
	domainID, ok := s.domainID(w, r)
	if !ok {
		return
	}

	run, err := s.eng.Prepare(r.Context(), domainID)
	if err != nil {
		s.writePrepareError(w, err)
		return
	}

	go func() {
		sink := engine.SinkFunc(func(ev engine.Event) {
			if ev.Type == engine.EventError && ev.Error != nil {
				zap.L().Warn("background run error event",
					zap.Int64("domain_id", domainID),
					zap.String("message", ev.Error.Message))
			}
		})
		if err := run.Execute(s.baseCtx, sink); err != nil {
			zap.L().Error("background run failed",
				zap.Int64("domain_id", domainID), zap.Error(err))
			return
		}
		zap.L().Info("background run complete", zap.Int64("domain_id", domainID))
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "accepted",
		"domain_id": domainID,
		"units":     run.Units(),
	})
}

// handleSnapshot returns the most recent stored visibility snapshot.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	domainID, ok := s.domainID(w, r)
	if !ok {
		return
	}
	snap, err := s.st.LatestSnapshot(r.Context(), domainID)
	if err != nil {
		zap.L().Error("load snapshot failed", zap.Int64("domain_id", domainID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "snapshot lookup failed"})
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot for domain"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) domainID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "domainID"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid domain id"})
		return 0, false
	}
	return id, true
}

// writePrepareError maps engine admission errors to status codes. All
// of these fire before any stream bytes are written.
func (s *Server) writePrepareError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidDomain):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "domain not found"})
	case errors.Is(err, engine.ErrNoPhrases):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no selected phrases for domain"})
	case errors.Is(err, engine.ErrTooManyUnits):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "too many work units for one run"})
	case errors.Is(err, engine.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "analysis already running for domain"})
	default:
		zap.L().Error("prepare run failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}
