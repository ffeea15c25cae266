package api

import (
	"net/http"
	"time"

	"ftpgate/internal/auth"
	ftperr "ftpgate/internal/errors"
	"ftpgate/internal/registry"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		s.writeError(w, r, ftperr.Validation("username and password are required"))
		return
	}
	if err := s.users.Authenticate(req.Username, req.Password); err != nil {
		s.metrics.AuthAttempt(false)
		s.logger.Warn("login failed for %q", req.Username)
		s.writeError(w, r, err)
		return
	}

	token, exp, err := s.issuer.Issue(req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.AuthAttempt(true)
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: exp.UTC()})
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	all, err := s.servers.List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if all == nil {
		all = []registry.Server{}
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	srv, err := s.servers.Get(r.PathValue("alias"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

func (s *Server) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	var srv registry.Server
	if err := decodeJSON(w, r, &srv); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.servers.Create(srv); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("server %q created by %s", srv.Alias, auth.Subject(r.Context()))
	writeJSON(w, http.StatusCreated, srv)
}

func (s *Server) handleUpdateServer(w http.ResponseWriter, r *http.Request) {
	alias := r.PathValue("alias")
	var srv registry.Server
	if err := decodeJSON(w, r, &srv); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.servers.Update(alias, srv); err != nil {
		s.writeError(w, r, err)
		return
	}
	if srv.Alias == "" {
		srv.Alias = alias
	}
	s.logger.Info("server %q updated by %s", alias, auth.Subject(r.Context()))
	writeJSON(w, http.StatusOK, srv)
}

func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	alias := r.PathValue("alias")
	if err := s.servers.Delete(alias); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("server %q deleted by %s", alias, auth.Subject(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
