package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

func writeAPIError(w http.ResponseWriter, status int, message string, details []string) {
	resp := map[string]any{"error": message}
	if len(details) > 0 {
		resp["details"] = details
	}
	writeJSON(w, status, resp)
}

func (s *Server) writeInternalAPIError(w http.ResponseWriter, r *http.Request, message string, err error, attrs ...any) {
	logAttrs := make([]any, 0, len(attrs)+2)
	logAttrs = append(logAttrs, "error", err)
	logAttrs = append(logAttrs, attrs...)
	s.logger.ErrorContext(r.Context(), message, logAttrs...)
	writeAPIError(w, http.StatusInternalServerError, message, nil)
}

var errBodyTooLarge = errors.New("request body too large")

// decodeJSONBody decodes exactly one JSON value from a size-limited body.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if isMaxBytesError(err) {
			return errBodyTooLarge
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if isMaxBytesError(err) {
			return errBodyTooLarge
		}
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func isMaxBytesError(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
