// Package api exposes the node's HTTP control surface: status and buffer
// inspection, level analysis for service taps, start/stop control, health
// probes, Prometheus metrics, and live PCM streaming over WebSocket.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/airliftlabs/airlift/internal/analyze"
	"github.com/airliftlabs/airlift/internal/graph"
	"github.com/airliftlabs/airlift/internal/health"
	"github.com/airliftlabs/airlift/internal/observe"
	"github.com/airliftlabs/airlift/internal/pipeline"
	"github.com/airliftlabs/airlift/internal/ring"
)

// Option configures a [Server] during construction.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithMetrics sets the metrics instance used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server holds the handlers for a resolved pipeline. It does not own the
// node's lifecycle beyond relaying start and stop requests.
type Server struct {
	node     *pipeline.Node
	services map[string]*ring.Buffer
	live     map[string]http.Handler
	health   *health.Handler
	log      *slog.Logger
	metrics  *observe.Metrics
}

// New creates a server for the given resolved pipeline.
func New(resolved *graph.Resolved, opts ...Option) *Server {
	s := &Server{
		node:     resolved.Node,
		services: resolved.Services,
		live:     resolved.Live,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.health = health.New(
		health.NodeRunning(s.node),
		health.ProducersConnected(s.node),
	)
	return s
}

// Router assembles the chi router with all routes and middleware attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))
	r.Use(observe.Middleware(s.metrics))

	r.Get("/healthz", s.health.Healthz)
	r.Get("/readyz", s.health.Readyz)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.getStatus)
		r.Get("/buffers", s.getBuffers)
		r.Get("/services", s.listServices)
		r.Get("/services/{name}", s.getServiceLevels)
		r.Post("/control/start", s.postStart)
		r.Post("/control/stop", s.postStop)
	})

	r.Get("/ws/live/{output}", s.getLiveStream)

	return r
}

// getStatus handles GET /api/status.
func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Status())
}

// getBuffers handles GET /api/buffers. It reports depth, capacity, and drop
// counters for every registered ring buffer, keyed by registry name.
func (s *Server) getBuffers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Buffers().StatsAll())
}

// listServices handles GET /api/services.
func (s *Server) listServices(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string][]string{"services": names})
}

// getServiceLevels handles GET /api/services/{name}. It computes peak, RMS,
// and clipping levels over the frames currently buffered for the service.
func (s *Server) getServiceLevels(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	buf, ok := s.services[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("unknown service: "+name))
		return
	}
	writeJSON(w, http.StatusOK, analyze.Buffer(buf))
}

// postStart handles POST /api/control/start. Starting a running node is a
// no-op success.
func (s *Server) postStart(w http.ResponseWriter, r *http.Request) {
	if err := s.node.Start(r.Context()); err != nil {
		s.log.Error("start via api failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"running": true})
}

// postStop handles POST /api/control/stop. Stop errors from individual
// components are reported but the node still ends up stopped.
func (s *Server) postStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.node.Stop(); err != nil {
		s.log.Error("stop via api reported errors", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"running": false})
}

// getLiveStream handles GET /ws/live/{output}, upgrading to a WebSocket that
// carries raw PCM frames from the named live output.
func (s *Server) getLiveStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "output")
	h, ok := s.live[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("unknown live output: "+name))
		return
	}
	h.ServeHTTP(w, r)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}
