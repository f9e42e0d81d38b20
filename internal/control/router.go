package control

import (
	"net/http"
	"strings"
	"time"

	"github.com/netforge/protoperf/internal/logging"
)

// Router wires the control-plane routes and middleware.
type Router struct {
	handler        *Handler
	events         *EventServer
	allowedOrigins []string
}

func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

func (r *Router) SetAllowedOrigins(origins []string) {
	r.allowedOrigins = origins
}

func (r *Router) SetEventServer(events *EventServer) {
	r.events = events
}

func (r *Router) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /network/config", r.handler.SetConfig)
	mux.HandleFunc("POST /network/clear", r.handler.ClearConfig)
	mux.HandleFunc("GET /network/status", r.handler.GetStatus)
	mux.HandleFunc("GET /health", r.handler.HealthCheck)

	if r.events != nil {
		mux.HandleFunc("GET /network/events", r.events.HandleEvents)
	}

	var handler http.Handler = mux
	handler = r.corsMiddleware(handler)
	handler = r.loggingMiddleware(handler)
	return handler
}

func (r *Router) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		origin := req.Header.Get("Origin")
		if origin != "" && r.isAllowedOrigin(origin) {
			allowOrigin := origin
			if r.isAllowAllOrigins() {
				allowOrigin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if allowOrigin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Router) isAllowedOrigin(origin string) bool {
	for _, allowed := range r.allowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (r *Router) isAllowAllOrigins() bool {
	for _, allowed := range r.allowedOrigins {
		if allowed == "*" {
			return true
		}
	}
	return false
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.statusCode = code
	sw.ResponseWriter.WriteHeader(code)
}

func (r *Router) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/health" || req.URL.Path == "/network/events" {
			next.ServeHTTP(w, req)
			return
		}

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, req)

		logging.Info("HTTP request",
			logging.F("method", req.Method),
			logging.F("path", req.URL.Path),
			logging.F("status", sw.statusCode),
			logging.F("duration_ms", float64(time.Since(start).Microseconds())/1000))
	})
}
