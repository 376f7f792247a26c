package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tapfile/tapfile/internal/apperr"
	"github.com/tapfile/tapfile/internal/model"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error:   message,
		Context: ctxMap,
	})
}

// writeAppError maps err to its HTTP status. Typed errors carry a message
// safe for clients; anything else is logged and reported as an internal
// error with the fallback message.
func writeAppError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) int {
	status := apperr.HTTPStatus(err)
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		logger.Error(fallback, "error", err)
		writeError(w, status, fallback)
		return status
	}

	var ctx map[string]interface{}
	if ae.Line > 0 {
		ctx = map[string]interface{}{"line": ae.Line, "column": ae.Column}
	}
	if status >= http.StatusInternalServerError {
		logger.Error(fallback, "error", err)
	}
	writeError(w, status, err.Error(), ctx)
	return status
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// clampInt constrains val to be within [min, max].
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

func success(message string) map[string]interface{} {
	return map[string]interface{}{
		"success": true,
		"message": message,
	}
}
