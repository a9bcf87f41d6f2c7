package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/autoquant/backend/internal/api/handlers"
	"github.com/wonny/autoquant/backend/internal/metrics"
	"github.com/wonny/autoquant/backend/pkg/logger"
)

// PingFunc checks a backing dependency for /health
type PingFunc func(ctx context.Context) error

// NewRouter creates and configures the HTTP router.
// m and ping may be nil.
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(analysis *handlers.AnalysisHandler, m *metrics.Registry, ping PingFunc, log *logger.Logger) http.Handler {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = methodNotAllowedHandler()

	r.HandleFunc("/health", healthCheckHandler(ping)).Methods("GET")
	r.Handle("/metrics", m.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	// 서브라우터에도 같은 405 응답
	api.MethodNotAllowedHandler = r.MethodNotAllowedHandler

	// Dashboard
	api.HandleFunc("/dashboard", analysis.GetDashboard).Methods("GET")
	api.HandleFunc("/signals", analysis.GetLatestSignals).Methods("GET")

	// Run history
	api.HandleFunc("/runs", analysis.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id:[0-9]+}", analysis.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id:[0-9]+}/market", analysis.GetRunMarket).Methods("GET")
	api.HandleFunc("/runs/{id:[0-9]+}/ai-candidates", analysis.GetRunAICandidates).Methods("GET")
	api.HandleFunc("/runs/{id:[0-9]+}/technical", analysis.GetRunTechnical).Methods("GET")
	api.HandleFunc("/runs/{id:[0-9]+}/signals", analysis.GetRunSignals).Methods("GET")

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler reports ok, or 503 when the ping fails
func healthCheckHandler(ping PingFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":  "ok",
			"service": "autoquant-api",
		}
		status := http.StatusOK
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				body["status"] = "degraded"
				body["database"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}

// methodNotAllowedHandler answers a known path requested with the wrong method
func methodNotAllowedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "method " + r.Method + " not allowed",
		})
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
