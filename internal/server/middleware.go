package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type ctxKey int

const ownerKey ctxKey = iota

// ownerFrom returns the user the request was authenticated as.
func ownerFrom(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey).(string)
	return owner
}

// responseWriter captures the status code and size for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(data)
	rw.size += size
	return size, err
}

// Unwrap lets http.ResponseController reach the Flusher underneath.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (ms *MusicServer) requestLoggingMiddleware(next http.Handler) http.Handler {
	if !ms.cfg.Logging.RequestLogging {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		if !shouldLogRequest(r.URL.Path) {
			return
		}
		ms.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"remote":   r.RemoteAddr,
			"status":   rw.statusCode,
			"size":     formatBytes(rw.size),
			"duration": time.Since(start).Round(time.Millisecond),
		}).Info("Request")
	})
}

// corsMiddleware allows any origin and answers preflight requests.
func (ms *MusicServer) corsMiddleware(next http.Handler) http.Handler {
	if !ms.cfg.Server.EnableCORS {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Range, "+sessionHeader)
		h.Set("Access-Control-Expose-Headers", "Content-Range, Content-Length")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the owner of every non-public request.
func (ms *MusicServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		owner, ok := ms.auth.Owner(r)
		if !ok {
			ms.respondWithError(w, r, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	})
}

func isPublicPath(path string) bool {
	switch {
	case path == "/health",
		path == "/api/auth/login",
		path == "/api/auth/register",
		path == "/api/auth/logout":
		return true
	case strings.HasPrefix(path, "/api/"),
		strings.HasPrefix(path, "/stream/"),
		strings.HasPrefix(path, "/artwork/"):
		return false
	default:
		return true // static client files
	}
}

func shouldLogRequest(path string) bool {
	for _, prefix := range []string{"/assets/", "/favicon.ico", "/health"} {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// formatBytes gives an approximate human-readable size.
func formatBytes(n int) string {
	const unit = 1024
	switch {
	case n == 0:
		return "0B"
	case n < unit:
		return "< 1KB"
	}

	div, exp := unit, 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%d%s", n/div, []string{"KB", "MB", "GB"}[exp])
}

func (ms *MusicServer) panicRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				ms.logger.WithFields(logrus.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
					"panic":  err,
					"stack":  string(debug.Stack()),
				}).Error("Panic while serving request")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
