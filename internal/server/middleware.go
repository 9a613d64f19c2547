package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/sirupsen/logrus"
)

const callerHeader = "X-User-Id"

type callerKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestTime logs the method, path, status and duration of every request.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Info("request time")
	})
}

// Caller puts the caller id of the X-User-Id header into the request context.
// The header is set by the auth proxy in front of the service.
func Caller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(callerHeader)); id != "" {
			r = r.WithContext(context.WithValue(r.Context(), callerKey{}, id))
		}
		next.ServeHTTP(w, r)
	})
}

func callerID(ctx context.Context) string {
	id, _ := ctx.Value(callerKey{}).(string)
	return id
}

// requireCaller rejects requests without a caller id.
func requireCaller(next runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		if callerID(r.Context()) == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + callerHeader + " header"})
			return
		}
		next(w, r, params)
	}
}
