// Package api is the HTTP façade: it turns requests into engine
// commands and registry operations and renders the results as JSON.
package api

import (
	"net/http"

	"ftpgate/internal/auth"
	"ftpgate/internal/core"
	"ftpgate/internal/metrics"
	"ftpgate/internal/registry"
	"ftpgate/util"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Server holds the façade's collaborators.  It keeps no per-request
// state.
type Server struct {
	engine  *core.Engine
	servers *registry.Servers
	users   *registry.Users
	issuer  *auth.Issuer
	metrics *metrics.Collector
	logger  *util.Logger
}

// New returns a Server.  m may be nil.
func New(engine *core.Engine, servers *registry.Servers, users *registry.Users,
	issuer *auth.Issuer, m *metrics.Collector, logger *util.Logger) *Server {
	return &Server{
		engine:  engine,
		servers: servers,
		users:   users,
		issuer:  issuer,
		metrics: m,
		logger:  logger,
	}
}

// Handler returns the routed handler wrapped in the access log.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	jwt := s.issuer.Middleware(s.users, s.metrics, s.writeError)

	// Operational
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Tokens and the server registry
	mux.HandleFunc("POST /authentication", s.handleAuthenticate)
	mux.HandleFunc("GET /servers", s.handleListServers)
	mux.HandleFunc("GET /servers/{alias}", s.handleGetServer)
	mux.Handle("POST /servers", jwt(http.HandlerFunc(s.handleCreateServer)))
	mux.Handle("PUT /servers/{alias}", jwt(http.HandlerFunc(s.handleUpdateServer)))
	mux.Handle("DELETE /servers/{alias}", jwt(http.HandlerFunc(s.handleDeleteServer)))

	// FTP commands
	mux.HandleFunc("GET /ftp/{alias}/list/{path...}", s.handleList)
	mux.HandleFunc("GET /ftp/{alias}/files/{path...}", s.handleGetFile)
	mux.HandleFunc("GET /ftp/{alias}/repositories/{path...}", s.handleGetTree)
	mux.HandleFunc("PUT /ftp/{alias}/{path...}", s.handlePut)
	mux.HandleFunc("PUT /ftp/{alias}/rename/{path...}", s.handleRename)
	mux.HandleFunc("POST /ftp/{alias}/repositories/{path...}", s.handleMkdir)
	mux.HandleFunc("DELETE /ftp/{alias}/repositories/{path...}", s.handleRmTree)

	return s.accessLog(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"metrics": s.metrics.Snapshot(),
	})
}
