package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/klafs-vdc/internal/bridges/klafs"
)

// Error is the JSON body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned in Error.Code.
const (
	ErrCodeBadRequest          = "bad_request"
	ErrCodeNotFound            = "not_found"
	ErrCodeUnauthorized        = "unauthorised"
	ErrCodeInternal            = "internal_error"
	ErrCodeUpstream            = "upstream_error"
	ErrCodeServiceUnavailable  = "service_unavailable"
	ErrCodeSecurityCheckNeeded = "security_check_required"
)

const securityCheckMessage = "the sauna refuses remote changes until its safety check is done"

// bridgeErrors maps command failures to responses, first match wins.
// An empty message means err.Error() is sent.
var bridgeErrors = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{klafs.ErrUnknownAction, http.StatusNotFound, ErrCodeNotFound, ""},
	{klafs.ErrNotConfigured, http.StatusNotFound, ErrCodeNotFound, ""},
	{klafs.ErrSecurityCheckRequired, http.StatusConflict, ErrCodeSecurityCheckNeeded, securityCheckMessage},
	{klafs.ErrConfigChangeFailed, http.StatusBadGateway, ErrCodeUpstream, ""},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeBridgeError maps a bridge command error onto an HTTP status.
func writeBridgeError(w http.ResponseWriter, err error) {
	for _, m := range bridgeErrors {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.message
		if msg == "" {
			msg = err.Error()
		}
		writeError(w, m.status, m.code, msg)
		return
	}
	writeInternalError(w, err.Error())
}
