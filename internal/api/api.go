// Package api provides the HTTP surface for ChartFlow.
//
// It exposes endpoints for running free-text commands, recording patient
// replies, and inspecting workflows awaiting a reply. The API integrates
// with the exec runner, workflow engine, and messaging modules.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/ChartFlow/internal/exec"
	"github.com/BTreeMap/ChartFlow/internal/genai"
	"github.com/BTreeMap/ChartFlow/internal/workflow"
)

// DefaultAddr is the default listen address.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr  string
	GenAI *genai.Client
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithGenAIClient enables the LLM-backed parse preview endpoint.
func WithGenAIClient(client *genai.Client) Option {
	return func(o *Opts) { o.GenAI = client }
}

// Server serves the ChartFlow HTTP API.
type Server struct {
	runner  *exec.Runner
	engine  *workflow.Engine
	genai   *genai.Client
	addr    string
	mux     *http.ServeMux
	httpSrv *http.Server
}

// NewServer creates an API server over the runner and engine.
func NewServer(runner *exec.Runner, engine *workflow.Engine, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{
		runner: runner,
		engine: engine,
		genai:  cfg.GenAI,
		addr:   cfg.Addr,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("/commands", s.commandsHandler)
	s.mux.HandleFunc("/commands/preview", s.previewHandler)
	s.mux.HandleFunc("/responses", s.responsesHandler)
	s.mux.HandleFunc("/workflows", s.workflowsHandler)
	s.mux.HandleFunc("/health", s.healthHandler)
	return s
}

// HandleFunc mounts an extra handler, used for transport webhooks.
func (s *Server) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.mux.HandleFunc(pattern, handler)
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("Server starting", "addr", s.addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	slog.Info("Server stopping")
	return s.httpSrv.Shutdown(ctx)
}
