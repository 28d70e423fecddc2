// Package api serves the read-only status API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/teecast/internal/api/models"
	"github.com/smazurov/teecast/internal/devices"
	"github.com/smazurov/teecast/internal/endpoints"
	"github.com/smazurov/teecast/internal/events"
	"github.com/smazurov/teecast/internal/lifecycle"
	"github.com/smazurov/teecast/internal/logging"
	"github.com/smazurov/teecast/internal/version"
)

// LifecycleStatus is the state of one pipeline.
type LifecycleStatus struct {
	Pipeline string
	State    lifecycle.State
	Clients  int
	OnDemand bool
}

// StatusSource is the running state the API reports. Implementations must
// be safe for concurrent use; a config reload may swap what they return.
type StatusSource interface {
	Endpoints() []*endpoints.Endpoint
	Clients(port int, mount string) int
	Lifecycle() []LifecycleStatus
}

// CameraLister enumerates capture devices.
type CameraLister interface {
	ListCameras(ctx context.Context) ([]devices.Camera, error)
}

// Options configures the API server.
type Options struct {
	Status  StatusSource
	Cameras CameraLister
	// Bus feeds /api/events. The route is omitted when nil.
	Bus *events.Bus
	// Hosts are the addresses used to build stream URLs.
	Hosts []string

	AuthUsername string
	AuthPassword string

	// PrometheusHandler is mounted at /metrics when set.
	PrometheusHandler http.Handler
}

// Server is the huma status API.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	logger     *slog.Logger
}

// NewServer creates the API server on Go's native router.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("OPTIONS /", preflight)

	config := huma.DefaultConfig("teecast API", version.Get().Version)
	config.Info.Description = "Status of RTSP endpoints and pipelines"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	server := newServer(humago.New(mux, config), opts)
	server.mux = mux

	api := server.api
	api.UseMiddleware(corsMiddleware, server.logRequest)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuth(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

func newServer(api huma.API, opts *Options) *Server {
	return &Server{
		api:     api,
		options: opts,
		logger:  logging.GetLogger("api"),
	}
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting API server", "addr", ln.Addr().String())
	s.logger.Info("OpenAPI documentation available", "url", "http://"+ln.Addr().String()+"/docs")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("Stopping API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			_ = s.httpServer.Close()
		}
		<-errCh
		return nil
	}
}

// registerRoutes sets up all API endpoints
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerStreamRoutes()

	if s.options.Cameras != nil {
		s.registerDeviceRoutes()
	}
	if s.options.Bus != nil {
		s.registerSSERoutes()
	}
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
