package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	dbpkg "github.com/benedict2310/sftpwizard/internal/db"
)

func registerHealthRoutes(mux *http.ServeMux, srv *Server) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/readyz", srv.handleReady)
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": srv.version})
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	resp := map[string]any{"status": "ready", "history": s.historyStore != nil}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		version, err := dbpkg.SchemaVersion(ctx, s.db)
		if err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
			return
		}
		resp["schemaVersion"] = version
	}
	if s.historyQueue != nil {
		resp["historyQueue"] = s.historyQueue.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
