package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/session"
)

// apiError is the body of every non-2xx response.
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(status int, code, message string) *apiError {
	return &apiError{Status: status, Code: code, Message: message}
}

var (
	errBadRequest   = func(msg string) *apiError { return newError(http.StatusBadRequest, "bad_request", msg) }
	errUnauthorized = newError(http.StatusUnauthorized, "unauthorized", "missing or wrong admin token")
	errNoSession    = newError(http.StatusNotFound, "session_not_found", "no such session")
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	var ae *apiError
	switch {
	case errors.As(err, &ae):
	case errors.Is(err, session.ErrUnknownSession):
		ae = errNoSession
	default:
		ae = newError(http.StatusInternalServerError, "internal", err.Error())
	}
	writeJSON(w, ae.Status, ae)
}

// decodeBody reads a JSON body into target. An empty body leaves target untouched.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	if err := dec.Decode(target); err != nil {
		return errBadRequest("invalid JSON body")
	}
	return nil
}
