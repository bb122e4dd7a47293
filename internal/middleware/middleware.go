package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/socialchef/ttlcache/internal/logger"
)

const (
	RequestIDHeader   = "X-Request-ID"
	ProcessTimeHeader = "X-Process-Time"
)

// GetRequestID extracts the request ID from request context
func GetRequestID(ctx context.Context) (string, bool) {
	id := chimw.GetReqID(ctx)
	return id, id != ""
}

// RequestID propagates the caller's X-Request-ID or assigns a uuid, stores it
// with chi's request ID middleware and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	withID := chimw.RequestID(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		withID.ServeHTTP(w, r)
	})
}

// stampWriter sets the process-time header just before the response
// header is sent.
type stampWriter struct {
	chimw.WrapResponseWriter
	start   time.Time
	stamped bool
}

func (w *stampWriter) stamp() {
	if w.stamped {
		return
	}
	w.stamped = true
	elapsed := float64(time.Since(w.start).Microseconds()) / 1000
	w.Header().Set(ProcessTimeHeader, fmt.Sprintf("%.2fms", elapsed))
}

func (w *stampWriter) WriteHeader(code int) {
	w.stamp()
	w.WrapResponseWriter.WriteHeader(code)
}

func (w *stampWriter) Write(b []byte) (int, error) {
	w.stamp()
	return w.WrapResponseWriter.Write(b)
}

func (w *stampWriter) Flush() {
	w.stamp()
	if f, ok := w.WrapResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ProcessTime reports handler latency in the X-Process-Time header and logs
// each request.
func ProcessTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &stampWriter{
			WrapResponseWriter: chimw.NewWrapResponseWriter(w, r.ProtoMajor),
			start:              time.Now(),
		}
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(ww.start),
		}
		if id, ok := GetRequestID(r.Context()); ok {
			attrs = append(attrs, "request_id", id)
		}
		if tc := logger.WithTraceContext(r.Context()); tc.Key != "" {
			attrs = append(attrs, tc)
		}
		slog.InfoContext(r.Context(), "HTTP request", attrs...)
	})
}
