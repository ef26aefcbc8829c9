package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/benedict2310/sftpwizard/internal/history"
)

const maxHistoryListLimit = 1000

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.historyStore == nil {
		writeAPIError(w, http.StatusNotFound, "history is disabled", nil)
		return
	}
	filter, err := parseHistoryFilter(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	res, err := s.historyStore.Query(r.Context(), filter)
	if err != nil {
		s.writeInternalAPIError(w, r, "query history failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseHistoryFilter(r *http.Request) (history.Filter, error) {
	q := r.URL.Query()
	filter := history.Filter{Host: strings.TrimSpace(q.Get("host"))}

	if raw := strings.TrimSpace(q.Get("success")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid success: %w", err)
		}
		filter.Success = &v
	}
	for name, dst := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid %s: expected RFC 3339 timestamp", name)
		}
		*dst = &ts
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid limit: %w", err)
		}
		if v < 0 {
			return filter, fmt.Errorf("limit must be >= 0")
		}
		filter.Limit = min(v, maxHistoryListLimit)
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid offset: %w", err)
		}
		if v < 0 {
			return filter, fmt.Errorf("offset must be >= 0")
		}
		filter.Offset = v
	}
	return filter, nil
}
