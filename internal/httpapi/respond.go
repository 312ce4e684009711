package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/safar/go-rental-store/internal/apperr"
)

const (
	headerActorID  = "X-Actor-ID"
	headerVendorID = "X-Vendor-ID"
)

type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:    http.StatusBadRequest,
	apperr.KindNotFound:      http.StatusNotFound,
	apperr.KindConflict:      http.StatusConflict,
	apperr.KindAuthorization: http.StatusForbidden,
	apperr.KindUpstream:      http.StatusBadGateway,
	apperr.KindInternal:      http.StatusInternalServerError,
}

// respondServiceError maps a service error to its HTTP status. Internal
// errors are logged and returned without their cause.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperr.KindInternal {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "", "internal error")
		return
	}

	respondJSON(w, statusByKind[appErr.Kind], ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, apperr.CodeInvalidInput, "invalid JSON body")
		return false
	}
	return true
}

// headerID reads a positive id header. Identity comes from the fronting
// gateway; a missing header is answered with 401.
func headerID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid "+name+" header")
		return 0, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, apperr.CodeInvalidInput, "invalid "+param)
		return 0, false
	}
	return id, true
}
