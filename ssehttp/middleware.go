package ssehttp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ggoodman/shiprocket-mcp-go/internal/logctx"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: success, Message: msg})
}

// middlewares returns the router stack: chi request ids, request log data,
// the access/panic log entry and chi's Recoverer.
func middlewares(log *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		chimw.RequestID,
		requestData,
		requestLogger(log),
		chimw.Recoverer,
	}
}

// requestData attaches per-request log attributes to the context.
func requestData(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
			RequestID:  chimw.GetReqID(r.Context()),
			Method:     r.Method,
			UserAgent:  r.UserAgent(),
			RemoteAddr: r.RemoteAddr,
			Path:       r.URL.Path,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger installs a chi LogEntry bound to a wrapped writer. Recoverer
// reports panics through the entry, which answers with the JSON envelope
// while the response is still unwritten; Recoverer's own bare 500 is then a
// no-op on the wrapped writer.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			entry := &logEntry{log: log, r: r, w: ww}
			defer func() {
				entry.Write(ww.Status(), ww.BytesWritten(), ww.Header(), time.Since(start), nil)
			}()
			next.ServeHTTP(ww, chimw.WithLogEntry(r, entry))
		})
	}
}

type logEntry struct {
	log *slog.Logger
	r   *http.Request
	w   chimw.WrapResponseWriter
}

var _ chimw.LogEntry = (*logEntry)(nil)

func (e *logEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	e.log.DebugContext(e.r.Context(), "http.request.done",
		slog.Int("status", status),
		slog.Int("bytes", bytes),
		slog.Int64("dur_ms", elapsed.Milliseconds()))
}

func (e *logEntry) Panic(v any, stack []byte) {
	e.log.ErrorContext(e.r.Context(), "http.panic",
		slog.String("panic", fmt.Sprint(v)),
		slog.String("stack", string(stack)))
	if e.w.Status() == 0 {
		writeEnvelope(e.w, http.StatusInternalServerError, false, "Something went wrong")
	}
}
