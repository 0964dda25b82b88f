// Package mcp exposes the query pipeline as Model Context Protocol tools so
// assistants can ask grounded questions over stdio.
package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"groundrag/internal/domain"
)

// Version is the MCP server version.
const Version = "0.1.0"

// ErrMissingQueryService is returned when no query service is provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")

// Server is the MCP server for groundrag.
type Server struct {
	queries domain.QueryService
	server  *mcp.Server
	log     *zap.Logger
}

// NewServer creates a new MCP server backed by queries.
func NewServer(queries domain.QueryService, log *zap.Logger) (*Server, error) {
	if queries == nil {
		return nil, ErrMissingQueryService
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		queries: queries,
		server:  mcp.NewServer(&mcp.Implementation{Name: "groundrag", Version: Version}, nil),
		log:     log,
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcp server listening on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
