// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp serves the domains, the profiler state and saved sessions to
// Model Context Protocol clients.
package mcp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/processors"
	"github.com/powerapi-ng/joulehunter/internal/profiler"
	"github.com/powerapi-ng/joulehunter/internal/service"
	"github.com/powerapi-ng/joulehunter/internal/version"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"

	DefaultPath = "/mcp"
)

type (
	Initializer = service.Initializer
	Runner      = service.Runner

	APIRegistry interface {
		Register(endpoint, summary, description string, handler http.Handler) error
	}

	DomainLister interface {
		Discover() ([]*device.Domain, error)
	}

	StatsSource interface {
		Stats() profiler.RuntimeStats
	}
)

// Server exposes joulehunter as MCP tools
type Server struct {
	logger   *slog.Logger
	domains  DomainLister
	stats    StatsSource
	defaults processors.Options
	server   *server.MCPServer

	api       APIRegistry
	transport string
	path      string
	in        io.Reader
	out       io.Writer
}

var (
	_ Initializer = (*Server)(nil)
	_ Runner      = (*Server)(nil)
)

// Option defines functional options for MCP server configuration
type Option func(*Server)

// WithHTTPTransport serves MCP over streamable HTTP at path of the API server
func WithHTTPTransport(api APIRegistry, path string) Option {
	return func(s *Server) {
		s.api = api
		s.path = path
		s.transport = TransportHTTP
	}
}

// WithStdio serves MCP over in and out, stdin and stdout by default
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.in = in
		s.out = out
		s.transport = TransportStdio
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithProcessorOptions sets the processing applied to rendered sessions
func WithProcessorOptions(opts processors.Options) Option {
	return func(s *Server) {
		s.defaults = opts
	}
}

// NewServer creates a new MCP server instance
func NewServer(domains DomainLister, stats StatsSource, options ...Option) *Server {
	s := &Server{
		logger:    slog.Default(),
		domains:   domains,
		stats:     stats,
		defaults:  processors.DefaultOptions(),
		transport: TransportStdio,
		path:      DefaultPath,
		in:        os.Stdin,
		out:       os.Stdout,
	}
	for _, option := range options {
		option(s)
	}
	s.logger = s.logger.With("service", "mcp")

	v := version.Info().Version
	if v == "" {
		v = "dev"
	}
	s.server = server.NewMCPServer("joulehunter", v,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// Init implements the Initializer interface
func (s *Server) Init() error {
	s.logger.Info("Initializing MCP server", "transport", s.transport, "path", s.path)
	if s.transport != TransportHTTP || s.api == nil {
		return nil
	}

	return s.api.Register(s.path, "MCP Server",
		"Model Context Protocol server for RAPL domains and energy profiles",
		server.NewStreamableHTTPServer(s.server, server.WithStateLess(true)))
}

// Name implements the Service interface
func (s *Server) Name() string {
	return "mcp"
}

// Run serves stdio until ctx is done; over HTTP the API server does the serving
func (s *Server) Run(ctx context.Context) error {
	if s.transport == TransportHTTP {
		<-ctx.Done()
		return nil
	}

	s.logger.Info("MCP server starting with stdio transport")
	stdio := server.NewStdioServer(s.server)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	if err := stdio.Listen(ctx, s.in, s.out); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
