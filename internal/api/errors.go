package api

import (
	"encoding/json"
	"net/http"

	ftperr "ftpgate/internal/errors"
)

// errorBody is the JSON shape of every failure.
type errorBody struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StatusFor maps an error kind onto an HTTP status.
func StatusFor(kind ftperr.Kind) int {
	switch kind {
	case ftperr.KindValidation:
		return http.StatusBadRequest
	case ftperr.KindAuth:
		return http.StatusUnauthorized
	case ftperr.KindPermission, ftperr.KindForbidden:
		return http.StatusForbidden
	case ftperr.KindNotFound:
		return http.StatusNotFound
	case ftperr.KindConnection, ftperr.KindMode, ftperr.KindProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := ftperr.KindOf(err)
	status := StatusFor(kind)

	msg := err.Error()
	var ce *ftperr.Error
	if ftperr.As(err, &ce) {
		msg = ce.Text()
	}
	if kind == ftperr.KindInternal {
		s.logger.Error("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		s.logger.Verbose("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorBody{Code: status, Kind: kind.String(), Message: ftperr.Sanitize(msg)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return ftperr.Validation("invalid request body: %v", err)
	}
	return nil
}
