// Package status serves a read-only view of a client session for local
// dashboards and probes.
package status

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Techcyte/context-sync/core/logx"
	"github.com/Techcyte/context-sync/sdk/base/ctxsync"
)

// Source is the session being reported. *ctxsync.Client satisfies it.
type Source interface {
	ID() string
	Snapshot() ctxsync.Session
}

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildSHA  string `json:"build_sha"`
	BuildDate string `json:"build_date"`
}

// Report is the /status payload.
type Report struct {
	ClientID string          `json:"client_id"`
	Session  ctxsync.Session `json:"session"`
}

// NewRouter returns a handler for GET /status and GET /version.
func NewRouter(src Source, vi VersionInfo) http.Handler {
	r := chi.NewRouter()
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, Report{ClientID: src.ID(), Session: src.Snapshot()})
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, vi)
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Log.Error().Err(err).Msg("encode status")
	}
}
