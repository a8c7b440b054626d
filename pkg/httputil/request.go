package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ParseJSONOrError decodes the request body into dst. On failure it writes
// a 400 response and returns false; the caller should simply return.
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// ParseQueryInt parses an integer query parameter, falling back to def
// when absent or malformed.
func ParseQueryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// ParseQueryBool parses a boolean query parameter, falling back to def
// when absent or malformed.
func ParseQueryBool(r *http.Request, name string, def bool) bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}
