package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/socialchef/ttlcache/internal/errors"
)

// Response is the envelope every API endpoint answers with.
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

func Success(data any) Response {
	return Response{Code: http.StatusOK, Msg: "success", Data: data}
}

func Fail(code int, msg string) Response {
	return Response{Code: code, Msg: msg}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// writeError maps application errors to their status and message. Anything
// else is logged and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.IsOperational {
		slog.WarnContext(r.Context(), "Request failed",
			"path", r.URL.Path,
			"code", appErr.Code(),
			"error", err,
		)
		writeJSON(w, appErr.StatusCode, Fail(appErr.StatusCode, appErr.Message))
		return
	}

	slog.ErrorContext(r.Context(), "Unhandled server error", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, Fail(http.StatusInternalServerError, "system error"))
}
