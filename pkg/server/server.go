// Package server exposes the runtime over HTTP: SSE task submission, chain
// inspection with visibility filtering, health, and metrics. Every data
// endpoint is tenant-scoped; a resource belonging to another tenant is
// indistinguishable from one that does not exist.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omniforge-ai/omniforge/pkg/auth"
	"github.com/omniforge-ai/omniforge/pkg/chain"
	"github.com/omniforge-ai/omniforge/pkg/config"
	"github.com/omniforge-ai/omniforge/pkg/executor"
	"github.com/omniforge-ai/omniforge/pkg/observability"
	"github.com/omniforge-ai/omniforge/pkg/task"
	"github.com/omniforge-ai/omniforge/pkg/visibility"
)

// Options wires the server's collaborators.
type Options struct {
	// Addr is the listen address.
	Addr string

	// Tasks stores task records.
	Tasks task.Repository

	// Chains stores reasoning chains.
	Chains chain.Repository

	// Executor gates every tool invocation.
	Executor *executor.Executor

	// Agents maps agent ids to their configuration.
	Agents map[string]*config.AgentConfig

	// Visibility filters chains per caller role. Nil means full visibility.
	Visibility *visibility.Controller

	// Validator authenticates callers. Nil disables authentication.
	Validator auth.Validator

	// DefaultTenantID applies when the caller carries no tenant.
	DefaultTenantID string
}

// Server is the HTTP front of the runtime.
type Server struct {
	httpServer *http.Server

	tasks     task.Repository
	chains    chain.Repository
	exec      *executor.Executor
	agents    map[string]*config.AgentConfig
	vis       *visibility.Controller
	validator auth.Validator
	defTenant string
}

// New creates a server. The listener is not started until Start.
func New(opts Options) *Server {
	vis := opts.Visibility
	if vis == nil {
		vis = visibility.NewController()
	}

	s := &Server{
		tasks:     opts.Tasks,
		chains:    opts.Chains,
		exec:      opts.Executor,
		agents:    opts.Agents,
		vis:       vis,
		validator: opts.Validator,
		defTenant: opts.DefaultTenantID,
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route tree. Exposed for httptest.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.validator != nil {
			r.Use(auth.Middleware(s.validator))
		}

		r.Get("/chains/{chainID}", s.handleGetChain)
		r.Get("/chains/{chainID}/steps", s.handleGetChainSteps)
		r.Delete("/chains/{chainID}", s.handleDeleteChain)
		r.Get("/tasks/{taskID}", s.handleGetTask)
		r.Get("/tasks/{taskID}/chains", s.handleGetTaskChains)
		r.Get("/tenants/{tenantID}/chains", s.handleListTenantChains)
		r.Post("/agents/{agentID}/tasks", s.handleSubmitTask)
	})

	return r
}

// Start serves until the context is cancelled, then drains in-flight
// requests.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// callerTenant resolves the tenant a request acts for: the validated claim
// when present, the configured default otherwise.
func (s *Server) callerTenant(r *http.Request) string {
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil && claims.TenantID != "" {
		return claims.TenantID
	}
	return s.defTenant
}

func callerRole(r *http.Request) string {
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		return claims.Role
	}
	return ""
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		slog.Debug("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", elapsed)
		if m := observability.GetGlobalMetrics(); m != nil {
			// The route pattern keeps metric cardinality bounded.
			route := chi.RouteContext(r.Context()).RoutePattern()
			m.RecordHTTPRequest(r.Context(), r.Method, route, ww.Status(), elapsed)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
