package server

import (
	"log/slog"
	"net/http"
	"time"

	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
	"git.home.luguber.info/inful/leadforge/internal/logfields"
)

// chain wraps a handler with request logging and panic recovery.
func chain(logger *slog.Logger, adapter *lferrors.HTTPErrorAdapter, next http.Handler) http.Handler {
	return loggingMiddleware(logger, panicRecoveryMiddleware(logger, adapter, next))
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("HTTP request",
			logfields.Method(r.Method),
			logfields.Path(r.URL.Path),
			logfields.Status(wrapped.statusCode),
			logfields.DurationMS(float64(time.Since(start).Milliseconds())),
			logfields.RemoteAddr(r.RemoteAddr))
	})
}

func panicRecoveryMiddleware(logger *slog.Logger, adapter *lferrors.HTTPErrorAdapter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("HTTP handler panic",
					"panic", rec,
					logfields.Path(r.URL.Path),
					logfields.Method(r.Method),
					logfields.RemoteAddr(r.RemoteAddr))
				adapter.WriteErrorResponse(w, r,
					lferrors.Internal("internal server error", nil).
						WithContext("path", r.URL.Path))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
