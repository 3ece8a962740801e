package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getmockd/respvalidator/pkg/logging"
	"github.com/getmockd/respvalidator/pkg/validation"
)

// DefaultHost is the interface the service binds to when none is configured.
const DefaultHost = "127.0.0.1"

// Config holds the service configuration.
type Config struct {
	// SpecPath is the OpenAPI document to validate against. Required.
	SpecPath string
	// Host is the interface to bind. Defaults to DefaultHost.
	Host string
	// Port to bind. Zero lets the OS choose.
	Port int
	// ReadTimeout and WriteTimeout bound a single request. Zero means 30s.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// EngineLoader compiles the prepared spec at path.
type EngineLoader func(ctx context.Context, path string) (validation.Engine, error)

func loadOpenAPI(ctx context.Context, path string) (validation.Engine, error) {
	return validation.LoadOpenAPIEngine(ctx, path)
}

// Server is the validation service.
type Server struct {
	cfg        Config
	log        *slog.Logger
	loader     EngineLoader
	handler    *Handler
	listener   net.Listener
	httpServer *http.Server
	prepared   *validation.PreparedSpec
	cancel     context.CancelFunc
	compiled   chan struct{}

	mu         sync.RWMutex
	running    bool
	compileErr error
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithLogger sets the operational logger for the server.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithEngineLoader replaces the kin-openapi engine.
func WithEngineLoader(loader EngineLoader) ServerOption {
	return func(s *Server) {
		if loader != nil {
			s.loader = loader
		}
	}
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg Config, opts ...ServerOption) *Server {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	s := &Server{
		cfg:    cfg,
		log:    logging.Nop(),
		loader: loadOpenAPI,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener, prepares the spec and starts compiling it in
// the background. It returns once the listener is accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("server is already running")
	}
	if strings.TrimSpace(s.cfg.SpecPath) == "" {
		return &validation.ConfigurationError{Option: "spec"}
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	prepared, err := validation.PrepareSpec(s.cfg.SpecPath)
	if err != nil {
		_ = listener.Close()
		return err
	}

	s.listener = listener
	s.prepared = prepared
	s.compileErr = nil
	s.compiled = make(chan struct{})
	s.handler = NewHandler(prepared.ReadinessPath, s.log)
	s.httpServer = &http.Server{
		Handler:      RequestIDMiddleware(s.log)(s.handler),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info("starting validation service",
		"addr", listener.Addr().String(),
		"spec", s.cfg.SpecPath,
		"readiness", prepared.ReadinessPath)

	srv := s.httpServer
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.compile(ctx, prepared.Path, s.handler, s.compiled)

	s.running = true
	return nil
}

func (s *Server) compile(ctx context.Context, path string, h *Handler, done chan struct{}) {
	defer close(done)

	start := time.Now()
	eng, err := s.loader(ctx, path)
	if err != nil {
		s.mu.Lock()
		s.compileErr = err
		s.mu.Unlock()
		s.log.Error("failed to compile spec", "spec", s.cfg.SpecPath, "error", err)
		return
	}
	h.SetEngine(eng)
	s.log.Info("spec compiled", "spec", s.cfg.SpecPath, "duration", time.Since(start))
}

// Compiled returns a channel closed once background compilation finished,
// successfully or not. It is nil before Start.
func (s *Server) Compiled() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compiled
}

// Errored reports whether spec compilation failed.
func (s *Server) Errored() bool {
	return s.Err() != nil
}

// Err returns the spec compilation error, if any.
func (s *Server) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compileErr
}

// Port returns the bound port, or 0 if the server is not running.
func (s *Server) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return 0
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// URL returns the base URL of the service.
func (s *Server) URL() string {
	port := s.Port()
	if port == 0 {
		return ""
	}
	host := s.cfg.Host
	if host == "0.0.0.0" || host == "::" {
		host = DefaultHost
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// ReadinessPath returns the HTTP path of the readiness route.
func (s *Server) ReadinessPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.prepared == nil {
		return ""
	}
	return s.prepared.ReadinessPath
}

// SpecPath returns the prepared spec file the service compiles.
func (s *Server) SpecPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.prepared == nil {
		return ""
	}
	return s.prepared.Path
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Stop gracefully shuts down the server and removes the prepared spec.
// Calling Stop on a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	var errs []error
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := s.prepared.Cleanup(); err != nil {
		errs = append(errs, fmt.Errorf("spec cleanup: %w", err))
	}

	s.running = false
	s.listener = nil
	s.prepared = nil
	s.log.Info("validation service stopped")

	return errors.Join(errs...)
}
