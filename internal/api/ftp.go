package api

import (
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"ftpgate/internal/command"
	"ftpgate/internal/core"
	"ftpgate/internal/ftpconn"
	"ftpgate/internal/session"
	"ftpgate/util"
)

// entry is the JSON form of one listing line.
type entry struct {
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	Size     int64      `json:"size"`
	Modified *time.Time `json:"modified,omitempty"`
	Target   string     `json:"target,omitempty"`
}

func toEntries(in []ftpconn.Entry) []entry {
	out := make([]entry, 0, len(in))
	for _, e := range in {
		je := entry{Name: e.Name, Type: e.Kind.String(), Size: e.Size, Target: e.Target}
		if !e.Modified.IsZero() {
			m := e.Modified.UTC()
			je.Modified = &m
		}
		out = append(out, je)
	}
	return out
}

// execute builds the command envelope from r, resolves the alias and
// runs the command.  arg is the secondary argument taken from the query.
func (s *Server) execute(r *http.Request, kind command.Kind, arg string) (core.Result, error) {
	mode, err := ftpconn.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		return core.Result{}, err
	}
	cmd, err := command.New(kind, r.PathValue("path"), arg)
	if err != nil {
		return core.Result{}, err
	}
	srv, err := s.servers.Get(r.PathValue("alias"))
	if err != nil {
		return core.Result{}, err
	}

	return s.engine.Execute(r.Context(), core.Request{
		Endpoint: session.Endpoint{Host: srv.Host, Port: srv.Port},
		Command:  cmd,
		Mode:     mode,
		Token:    r.Header.Get("Authorization"),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	res, err := s.execute(r, command.KindList, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntries(res.Entries))
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	res, err := s.execute(r, command.KindGetFile, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer res.Stream.Close()

	name := path.Base(command.Root(r.PathValue("path")))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := util.Copy(w, res.Stream); err != nil {
		s.logger.Warn("GET_FILE %s: client copy: %v", r.URL.Path, err)
	}
}

func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	if _, err := s.execute(r, command.KindGetTree, r.URL.Query().Get("downloadFolder")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	res, err := s.execute(r, command.KindPut, r.URL.Query().Get("localPath"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.OK {
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	res, err := s.execute(r, command.KindRename, r.URL.Query().Get("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": res.Path})
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	res, err := s.execute(r, command.KindMkdir, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": res.Path})
}

func (s *Server) handleRmTree(w http.ResponseWriter, r *http.Request) {
	res, err := s.execute(r, command.KindRmTree, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": res.OK})
}
