// Package command defines the abstract operations the engine can run
// against an FTP server.  Each kind is its own type carrying exactly the
// arguments it needs; New is the only place arguments are validated.
package command

import (
	"path"
	"strings"

	ftperr "ftpgate/internal/errors"
)

// Kind identifies a command.
type Kind int

const (
	KindList Kind = iota + 1
	KindGetFile
	KindGetTree
	KindPut
	KindRename
	KindMkdir
	KindRmTree
)

var kindNames = map[Kind]string{
	KindList:    "LIST",
	KindGetFile: "GET_FILE",
	KindGetTree: "GET_TREE",
	KindPut:     "PUT",
	KindRename:  "RENAME",
	KindMkdir:   "MKDIR",
	KindRmTree:  "RMTREE",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseKind accepts the wire names (LIST, GET_FILE, …), case-insensitive.
func ParseKind(s string) (Kind, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == want {
			return k, nil
		}
	}
	return 0, ftperr.Validation("unknown command %q", s)
}

// Command is one of List, GetFile, GetTree, Put, Rename, Mkdir, RmTree.
type Command interface {
	Kind() Kind
	// Target is the rooted remote path the command acts on.
	Target() string
	sealed()
}

// List lists a remote directory.
type List struct{ Path string }

// GetFile streams a remote file back to the caller.
type GetFile struct{ Path string }

// GetTree mirrors a remote directory under a local destination.
type GetTree struct {
	Path        string
	Destination string
}

// Put uploads a local file or directory tree into a remote directory.
type Put struct {
	Path  string // remote directory receiving the upload
	Local string
}

// Rename replaces the final segment of Path with NewName.
type Rename struct {
	Path    string
	NewName string
}

// Mkdir creates a remote directory.
type Mkdir struct{ Path string }

// RmTree deletes a remote file or directory tree.
type RmTree struct{ Path string }

func (List) Kind() Kind    { return KindList }
func (GetFile) Kind() Kind { return KindGetFile }
func (GetTree) Kind() Kind { return KindGetTree }
func (Put) Kind() Kind     { return KindPut }
func (Rename) Kind() Kind  { return KindRename }
func (Mkdir) Kind() Kind   { return KindMkdir }
func (RmTree) Kind() Kind  { return KindRmTree }

func (c List) Target() string    { return c.Path }
func (c GetFile) Target() string { return c.Path }
func (c GetTree) Target() string { return c.Path }
func (c Put) Target() string     { return c.Path }
func (c Rename) Target() string  { return c.Path }
func (c Mkdir) Target() string   { return c.Path }
func (c RmTree) Target() string  { return c.Path }

func (List) sealed()    {}
func (GetFile) sealed() {}
func (GetTree) sealed() {}
func (Put) sealed()     {}
func (Rename) sealed()  {}
func (Mkdir) sealed()   {}
func (RmTree) sealed()  {}

// New builds the command for kind.  p is rooted before use; arg is the
// secondary argument (new name, local path or download destination) and
// is required where the command needs one.
func New(kind Kind, p, arg string) (Command, error) {
	rooted := Root(p)
	arg = strings.TrimSpace(arg)

	switch kind {
	case KindList:
		return List{Path: rooted}, nil
	case KindGetFile:
		return GetFile{Path: rooted}, nil
	case KindGetTree:
		if arg == "" {
			return nil, ftperr.Validation("GET_TREE requires a local download destination")
		}
		return GetTree{Path: rooted, Destination: arg}, nil
	case KindPut:
		if arg == "" {
			return nil, ftperr.Validation("PUT requires a local path")
		}
		return Put{Path: rooted, Local: arg}, nil
	case KindRename:
		if err := validateName(arg); err != nil {
			return nil, err
		}
		return Rename{Path: rooted, NewName: arg}, nil
	case KindMkdir:
		if rooted == "/" {
			return nil, ftperr.Validation("MKDIR requires a directory path")
		}
		return Mkdir{Path: rooted}, nil
	case KindRmTree:
		return RmTree{Path: rooted}, nil
	default:
		return nil, ftperr.Validation("unknown command kind %d", int(kind))
	}
}

// Root treats p as relative to the session root: a separator is always
// prepended and the result is cleaned.
func Root(p string) string {
	return path.Clean("/" + strings.TrimSpace(p))
}

func validateName(name string) error {
	switch {
	case name == "":
		return ftperr.Validation("RENAME requires a new name")
	case name == "." || name == "..":
		return ftperr.Validation("invalid new name %q", name)
	case strings.ContainsAny(name, `/\`):
		return ftperr.Validation("new name %q must not contain a path separator", name)
	}
	return nil
}
