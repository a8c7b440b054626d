// Package api exposes the plugin host's planning operations over HTTP:
// dependency resolution, install-order planning, conflict detection, and
// catalog browsing.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inkwell/hostkit/pkg/conflict"
	"github.com/inkwell/hostkit/pkg/httputil"
	"github.com/inkwell/hostkit/pkg/marketplace"
	"github.com/inkwell/hostkit/pkg/observability"
	"github.com/inkwell/hostkit/pkg/resolver"
)

// Server routes planning requests to the resolver, detector and catalog.
type Server struct {
	router       *mux.Router
	resolver     *resolver.Resolver
	detector     *conflict.Detector
	catalog      *marketplace.Catalog
	log          *logrus.Logger
	metrics      *observability.Metrics
	maxTreeDepth int
}

// Options configures a Server. Resolver and Detector are required; the
// catalog is optional and its routes are only registered when present.
type Options struct {
	Resolver *resolver.Resolver
	Detector *conflict.Detector
	Catalog  *marketplace.Catalog
	Logger   *logrus.Logger
	Metrics  *observability.Metrics

	// MaxTreeDepth is the default depth bound for dependency tree
	// requests that carry no explicit depth parameter.
	MaxTreeDepth int
}

// NewServer creates a fully-routed API server.
func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	maxDepth := opts.MaxTreeDepth
	if maxDepth <= 0 {
		maxDepth = resolver.DefaultMaxTreeDepth
	}
	s := &Server{
		router:       mux.NewRouter(),
		resolver:     opts.Resolver,
		detector:     opts.Detector,
		catalog:      opts.Catalog,
		log:          log,
		metrics:      opts.Metrics,
		maxTreeDepth: maxDepth,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.health).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Resolution routes
	api.HandleFunc("/resolve", s.resolve).Methods("POST")
	api.HandleFunc("/plugins/{id}/resolve", s.resolvePlugin).Methods("GET")
	api.HandleFunc("/plugins/{id}/tree", s.dependencyTree).Methods("GET")
	api.HandleFunc("/plugins/{id}/dependents", s.dependents).Methods("GET")
	api.HandleFunc("/plugins/{id}/uninstallable", s.uninstallable).Methods("GET")

	// Conflict routes
	api.HandleFunc("/conflicts", s.allConflicts).Methods("GET")
	api.HandleFunc("/plugins/{id}/conflicts", s.pluginConflicts).Methods("GET")

	// Catalog routes
	if s.catalog != nil {
		api.HandleFunc("/plugins", s.listPlugins).Methods("GET")
		api.HandleFunc("/plugins/{id}/manifest", s.pluginManifest).Methods("GET")
		api.HandleFunc("/plugins/{id}/versions", s.pluginVersions).Methods("GET")
		api.HandleFunc("/plugins/{id}/install", s.recordInstall).Methods("POST")
	}
}

// Handler returns the ready-to-serve HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	chain := httputil.Chain(
		httputil.RequestIDMiddleware(),
		httputil.RecoveryMiddleware(s.log),
	)
	handler := chain(s.router)
	if s.metrics != nil {
		handler = observability.HTTPMetricsMiddleware(s.metrics)(handler)
	}
	return handler
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}
