package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/splax/teamhub/internal/apperr"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeAppError maps a workflow error onto its status. Internal failures are
// logged and reported without detail.
func (r *Router) writeAppError(w http.ResponseWriter, req *http.Request, err error) {
	code := apperr.CodeOf(err)
	if code == apperr.CodeInternal {
		r.logger.Error("request failed", "error", err, "path", req.URL.Path)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: string(code)})
		return
	}
	body := errorBody{Error: err.Error(), Code: string(code)}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body.Error = appErr.Message
		body.Field = appErr.Field
	}
	writeJSON(w, code.HTTPStatus(), body)
}
