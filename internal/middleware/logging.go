package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"portfolio-chat/internal/infra/logger"

	"github.com/sirupsen/logrus"
)

func LoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/metrics") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrappedWriter := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrappedWriter, r)

			fields := logrus.Fields{
				"status":      wrappedWriter.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			}
			msg := fmt.Sprintf("Request: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
			switch {
			case wrappedWriter.statusCode >= http.StatusInternalServerError:
				log.Error(msg, fields)
			case wrappedWriter.statusCode >= http.StatusBadRequest:
				log.Warn(msg, fields)
			default:
				log.Info(msg, fields)
			}
		})
	}
}

// RecoverMiddleware turns a handler panic into a 500 response with the chat log error shape.
func RecoverMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error(fmt.Sprintf("Recovered from panic: %v", rec), logrus.Fields{"path": r.URL.Path})
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"success":false,"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}
