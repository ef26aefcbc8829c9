package server

import "net/http"

func registerAPIRoutes(mux *http.ServeMux, srv *Server) {
	auth := authMiddleware(srv.cfg.APIToken, srv.logger)
	mux.Handle("/api/test-connection", auth(http.HandlerFunc(srv.handleTestConnection)))
	mux.Handle("/api/test-connection/history", auth(http.HandlerFunc(srv.handleHistory)))
	mux.Handle("/api/generate-config", auth(http.HandlerFunc(srv.handleGenerateConfig)))
	mux.Handle("/api/validate-form", auth(http.HandlerFunc(srv.handleValidateForm)))
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeAPIError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	return false
}
