package host

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Techcyte/context-sync/core/logx"
	"github.com/Techcyte/context-sync/sdk/contracts/syncmsg"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	WSPath         string
	AllowedOrigins []string
	// Gatherer serves /metrics on the main router when set.
	Gatherer prometheus.Gatherer
}

// NewRouter returns the host HTTP surface: the client channel endpoint,
// the operator control API and health/metrics endpoints.
func NewRouter(m *Manager, cfg RouterConfig) http.Handler {
	if cfg.WSPath == "" {
		cfg.WSPath = "/cm"
	}
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	r.Use(chiMiddleware.RequestID, requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get(cfg.WSPath, WSHandler(m, cfg.AllowedOrigins))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	api := &controlAPI{m: m}
	r.Route("/api", func(ar chi.Router) {
		ar.Get("/state", api.getState)
		ar.Post("/context", api.postContext)
		ar.Post("/vote/accept", api.acceptVote)
		ar.Post("/vote/reject", api.rejectVote)
	})
	return r
}

type controlAPI struct {
	m *Manager
}

type contextRequest struct {
	Case    string          `json:"case"`
	Context syncmsg.Context `json:"context"`
}

type rejectRequest struct {
	Reason string             `json:"reason"`
	Status syncmsg.StatusCode `json:"status"`
}

func (a *controlAPI) getState(w http.ResponseWriter, r *http.Request) {
	st, err := a.m.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *controlAPI) postContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	items := req.Context
	if len(items) == 0 && req.Case != "" {
		items = syncmsg.CaseContext(req.Case)
	}
	if err := a.m.Propose(r.Context(), items); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"proposed": items})
}

func (a *controlAPI) acceptVote(w http.ResponseWriter, r *http.Request) {
	if err := a.m.AcceptVote(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *controlAPI) rejectVote(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := a.m.RejectVote(r.Context(), req.Reason, req.Status); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrEmptyContext):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNoSubscriber), errors.Is(err, ErrNoVote):
		status = http.StatusConflict
	default:
		logx.Log.Error().Err(err).Msg("control api")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Log.Error().Err(err).Msg("encode response")
	}
}
