package registry

import (
	"strconv"
	"strings"
	"sync"

	ftperr "ftpgate/internal/errors"
)

// Server is one registered FTP endpoint.
type Server struct {
	Alias string `json:"alias"`
	Host  string `json:"host"`
	Port  int    `json:"port"`
}

// Validate checks every field.
func (s Server) Validate() error {
	if err := checkField("alias", s.Alias); err != nil {
		return err
	}
	if strings.ContainsAny(s.Alias, "/ ") {
		return ftperr.Validation("alias %q must not contain '/' or spaces", s.Alias)
	}
	if err := checkField("host", s.Host); err != nil {
		return err
	}
	if s.Port < 1 || s.Port > 65535 {
		return ftperr.Validation("port %d out of range 1-65535", s.Port)
	}
	return nil
}

// Servers is the alias;host;port table.
type Servers struct {
	path string
	mu   sync.Mutex
}

// NewServers returns a registry backed by path.  The file is created on
// the first write.
func NewServers(path string) *Servers {
	return &Servers{path: path}
}

// Path returns the backing file.
func (r *Servers) Path() string { return r.path }

// List returns every server in file order.
func (r *Servers) List() ([]Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Get returns the server registered as alias.
func (r *Servers) Get(alias string) (Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all, err := r.load()
	if err != nil {
		return Server{}, err
	}
	if i := indexOf(all, alias); i >= 0 {
		return all[i], nil
	}
	return Server{}, notFound(alias)
}

// Create appends s.  The alias must be new.
func (r *Servers) Create(s Server) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	all, err := r.load()
	if err != nil {
		return err
	}
	if indexOf(all, s.Alias) >= 0 {
		return ftperr.Validation("server %q already exists", s.Alias)
	}
	return r.save(append(all, s))
}

// Update replaces the server registered as alias with s.  An empty
// s.Alias keeps the old alias; a different one renames the entry.
func (r *Servers) Update(alias string, s Server) error {
	if s.Alias == "" {
		s.Alias = alias
	}
	if err := s.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	all, err := r.load()
	if err != nil {
		return err
	}
	i := indexOf(all, alias)
	if i < 0 {
		return notFound(alias)
	}
	if j := indexOf(all, s.Alias); j >= 0 && j != i {
		return ftperr.Validation("server %q already exists", s.Alias)
	}
	all[i] = s
	return r.save(all)
}

// Delete removes the server registered as alias.
func (r *Servers) Delete(alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	all, err := r.load()
	if err != nil {
		return err
	}
	i := indexOf(all, alias)
	if i < 0 {
		return notFound(alias)
	}
	return r.save(append(all[:i], all[i+1:]...))
}

func (r *Servers) load() ([]Server, error) {
	recs, err := readRecords(r.path, 3)
	if err != nil {
		return nil, err
	}
	out := make([]Server, 0, len(recs))
	for _, rec := range recs {
		port, err := strconv.Atoi(rec.fields[2])
		if err != nil {
			return nil, ftperr.Newf(ftperr.KindInternal, opReg, "servers file line %d: bad port %q", rec.line, rec.fields[2])
		}
		out = append(out, Server{Alias: rec.fields[0], Host: rec.fields[1], Port: port})
	}
	return out, nil
}

func (r *Servers) save(all []Server) error {
	rows := make([][]string, len(all))
	for i, s := range all {
		rows[i] = []string{s.Alias, s.Host, strconv.Itoa(s.Port)}
	}
	return writeRecords(r.path, rows, 0o644)
}

func indexOf(all []Server, alias string) int {
	for i, s := range all {
		if s.Alias == alias {
			return i
		}
	}
	return -1
}

func notFound(alias string) error {
	return ftperr.NotFound(opReg, "server %q is not registered", alias)
}
