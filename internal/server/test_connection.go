package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/benedict2310/sftpwizard/internal/conntest"
	"github.com/benedict2310/sftpwizard/internal/descriptor"
)

type testConnectionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if s.service == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "server is not ready", nil)
		return
	}
	if ok, wait := s.limiter.reserve(clientKey(r)); !ok {
		seconds := int(max(time.Second, wait.Round(time.Second)) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeJSON(w, http.StatusTooManyRequests, testConnectionResponse{Error: "Too many connection tests, retry later"})
		return
	}

	var req descriptor.Request
	if err := decodeJSONBody(w, r, s.cfg.maxBodyBytes(), &req); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, testConnectionResponse{Error: "Request body too large"})
			return
		}
		writeJSON(w, s.validationStatus(), testConnectionResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	if err := s.testSlots.Acquire(r.Context(), 1); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, testConnectionResponse{Error: "Connection test canceled while waiting for a free slot"})
		return
	}
	defer s.testSlots.Release(1)

	res := s.service.TestConnection(r.Context(), req)
	s.writeTestResult(w, res)
}

func (s *Server) writeTestResult(w http.ResponseWriter, res conntest.Result) {
	switch {
	case res.Success:
		writeJSON(w, http.StatusOK, testConnectionResponse{Success: true, Message: res.Message})
	case res.Kind == conntest.KindValidation:
		writeJSON(w, s.validationStatus(), testConnectionResponse{Error: res.Error})
	default:
		status := http.StatusBadRequest
		if s.cfg.StatusCodes == StatusCodesDistinct {
			status = http.StatusBadGateway
		}
		// Older clients read message, newer ones read error.
		writeJSON(w, status, testConnectionResponse{Message: res.Error, Error: res.Error})
	}
}

func (s *Server) validationStatus() int {
	if s.cfg.StatusCodes == StatusCodesDistinct {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}
