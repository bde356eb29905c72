package mcpserver

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"

	"ore-autominer/internal/app/control"
)

type Server struct {
	svc *control.Service

	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

func New(svc *control.Service, version string) *Server {
	if version == "" {
		version = "dev"
	}
	mcpSrv := server.NewMCPServer(
		"ore-autominer",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s := &Server{
		svc:        svc,
		mcpServer:  mcpSrv,
		httpServer: server.NewStreamableHTTPServer(mcpSrv, server.WithStateLess(true), server.WithDisableStreaming(true)),
	}
	s.registerSessionTools()
	s.registerMiningTools()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer
}
