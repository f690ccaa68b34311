package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	sentinelerrors "github.com/byteness/sentinel-fraud/errors"
	"github.com/byteness/sentinel-fraud/validate"
)

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func writeRateLimited(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	writeError(w, http.StatusTooManyRequests, sentinelerrors.ErrCodeRateLimited, "source is rate limited")
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// pathID validates r.PathValue(name) with validate.ValidateSafeString
// before a handler uses it as a storage key or audit resource.
// It writes a 400 and returns ok=false on an unsafe value.
func pathID(w http.ResponseWriter, r *http.Request, name string) (id string, ok bool) {
	id = r.PathValue(name)
	if err := validate.ValidateSafeString(id, validate.MaxQueryParamLength); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_IDENTIFIER", name+": "+err.Error())
		return "", false
	}
	return id, true
}

// queryID validates an optional query parameter the same way pathID
// validates a path segment. An absent parameter is not an error; an
// unsafe one is.
func queryID(w http.ResponseWriter, r *http.Request, key string) (v string, ok bool) {
	v = r.URL.Query().Get(key)
	if v == "" {
		return "", true
	}
	if err := validate.ValidateSafeString(v, validate.MaxQueryParamLength); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_IDENTIFIER", key+": "+err.Error())
		return "", false
	}
	return v, true
}
