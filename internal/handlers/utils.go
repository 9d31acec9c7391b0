// internal/handlers/utils.go
package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/jason-s-yu/codebreak/internal/models"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto an HTTP status and the same {code, message} body the
// WebSocket error message carries.
func writeError(w http.ResponseWriter, err error) {
	e := models.AsError(err)
	status := http.StatusInternalServerError
	switch e.Kind {
	case models.KindNotFound:
		status = http.StatusNotFound
	case models.KindInvalidRequest:
		status = http.StatusBadRequest
	case models.KindForbidden, models.KindInvalidSession:
		status = http.StatusForbidden
	case models.KindInvalidState, models.KindExhausted:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{
		"code":    e.Code,
		"message": e.Message,
	})
}

// urlHost returns the host part of an origin such as "https://example.com".
func urlHost(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	return u.Host, nil
}
