package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/benedict2310/sftpwizard/internal/sftpconfig"
)

type generateConfigResponse struct {
	Config   sftpconfig.Document `json:"config"`
	Filename string              `json:"filename"`
}

type formErrorsResponse struct {
	Error  string                 `json:"error"`
	Fields sftpconfig.FieldErrors `json:"fields"`
}

type validateFormResponse struct {
	Valid  bool                   `json:"valid"`
	Fields sftpconfig.FieldErrors `json:"fields"`
}

func (s *Server) handleGenerateConfig(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	form, ok := s.decodeForm(w, r)
	if !ok {
		return
	}

	doc, err := sftpconfig.Generate(form)
	if err != nil {
		var fields sftpconfig.FieldErrors
		if errors.As(err, &fields) {
			writeJSON(w, http.StatusBadRequest, formErrorsResponse{Error: "invalid form", Fields: fields})
			return
		}
		s.writeInternalAPIError(w, r, "generate config failed", err)
		return
	}
	writeJSON(w, http.StatusOK, generateConfigResponse{Config: doc, Filename: sftpconfig.Filename(doc.Name)})
}

// handleValidateForm checks one wizard step (?step=1..3) or, without a
// step, the whole form.
func (s *Server) handleValidateForm(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	step := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("step")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > sftpconfig.Steps {
			writeAPIError(w, http.StatusBadRequest, "step must be between 1 and "+strconv.Itoa(sftpconfig.Steps), nil)
			return
		}
		step = v
	}
	form, ok := s.decodeForm(w, r)
	if !ok {
		return
	}

	fields := sftpconfig.FieldErrors{}
	if step > 0 {
		fields = sftpconfig.ValidateStep(step, form)
	} else if err := sftpconfig.Validate(form); err != nil {
		errors.As(err, &fields)
	}
	writeJSON(w, http.StatusOK, validateFormResponse{Valid: len(fields) == 0, Fields: fields})
}

func (s *Server) decodeForm(w http.ResponseWriter, r *http.Request) (sftpconfig.Form, bool) {
	var form sftpconfig.Form
	if err := decodeJSONBody(w, r, s.cfg.maxBodyBytes(), &form); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return form, false
		}
		writeAPIError(w, http.StatusBadRequest, "invalid request body", []string{err.Error()})
		return form, false
	}
	return form, true
}
