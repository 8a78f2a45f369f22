package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/datafed"
	"github.com/BaSui01/datafed/config"
	"github.com/BaSui01/datafed/internal/telemetry"
	"github.com/BaSui01/datafed/mcp"
)

// skipAuthPaths lists endpoints that never require authentication.
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/version", "/metrics"}

// topicWarmTimeout bounds the background topic graph warm-up on startup.
const topicWarmTimeout = 2 * time.Minute

// Server ties the federation service to its HTTP and MCP surfaces.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	svc       *datafed.Service
	mcpServer *mcp.Server
	telemetry *telemetry.Providers

	httpServer  *http.Server
	rateLimiter *RateLimiter

	shutdownCh chan os.Signal
	errCh      chan error
}

// NewServer assembles the full service stack from configuration.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	svc, err := datafed.New(cfg, datafed.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	mcpServer := mcp.NewServer("datafed", version, mcp.WithServerLogger(logger))
	if err := mcp.RegisterRouterTools(mcpServer, svc.Router); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	return &Server{
		cfg:        cfg,
		logger:     logger,
		svc:        svc,
		mcpServer:  mcpServer,
		shutdownCh: make(chan os.Signal, 1),
		errCh:      make(chan error, 1),
	}, nil
}

// ServeStdio runs a single MCP session over stdin/stdout and blocks until
// the peer disconnects or ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	defer func() { _ = s.svc.Close() }()
	go func() {
		if err := s.svc.WarmTopics(ctx); err != nil {
			s.logger.Warn("topic warm-up failed", zap.Error(err))
		}
	}()
	transport := mcp.NewStdioTransport(os.Stdin, os.Stdout)
	return s.mcpServer.Serve(ctx, transport)
}

// Start brings up telemetry and the HTTP listener. It returns once the
// listener goroutine is running.
func (s *Server) Start() error {
	tp, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	s.telemetry = tp

	// Warm the topic graph off the serving path; queries arriving before
	// it finishes fall back to per-request resolution.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), topicWarmTimeout)
		defer cancel()
		if err := s.svc.WarmTopics(ctx); err != nil {
			s.logger.Warn("topic warm-up failed", zap.Error(err))
		}
	}()

	s.startHTTPServer()

	signal.Notify(s.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	return nil
}

func (s *Server) startHTTPServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleLiveness)
	mux.HandleFunc("/ready", s.handleLiveness)
	mux.HandleFunc("/version", s.handleVersion)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/mcp", s.handleMCP)

	s.rateLimiter = NewRateLimiter(s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger)

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		OTelTracing("datafed"),
		MetricsMiddleware(s.svc.Metrics),
		s.rateLimiter.Middleware(),
	}
	if s.cfg.Server.JWTSecret != "" {
		middlewares = append(middlewares, JWTAuth(s.cfg.Server.JWTSecret, skipAuthPaths, s.logger))
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		Handler:      Chain(mux, middlewares...),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
	}()
}

// handleMCP upgrades the connection to a websocket and runs an MCP session
// on it. Each connection gets its own session; tool calls from different
// clients never share state beyond the router itself.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	// Serve blocks for the connection lifetime; returning earlier would
	// cancel the request context under the running session.
	transport := mcp.NewWebSocketTransport(conn)
	defer func() { _ = transport.Close() }()
	if err := s.mcpServer.Serve(r.Context(), transport); err != nil {
		s.logger.Debug("mcp session ended", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	failures := s.svc.Router.HealthCheck(ctx)

	status := "healthy"
	code := http.StatusOK
	instances := make(map[string]string, len(failures))
	for id, err := range failures {
		if err != nil {
			status = "degraded"
			instances[id] = "unreachable"
			continue
		}
		instances[id] = "ok"
	}
	// All instances down means the service cannot answer anything.
	if len(failures) > 0 && status == "degraded" {
		healthy := 0
		for _, err := range failures {
			if err == nil {
				healthy++
			}
		}
		if healthy == 0 {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"instances": instances,
		"version":   version,
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"version":    version,
		"build_time": buildTime,
	})
}

// WaitForShutdown blocks until a termination signal or a fatal server
// error, then performs a graceful shutdown.
func (s *Server) WaitForShutdown() {
	select {
	case sig := <-s.shutdownCh:
		s.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-s.errCh:
		s.logger.Error("server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.Shutdown(ctx)
}

// Shutdown stops the HTTP listener, flushes telemetry, and releases the
// federation service's connections.
func (s *Server) Shutdown(ctx context.Context) {
	s.logger.Info("shutting down")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("http shutdown", zap.Error(err))
		}
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}
	if err := s.svc.Close(); err != nil {
		s.logger.Warn("service close", zap.Error(err))
	}

	s.logger.Info("shutdown complete")
}
