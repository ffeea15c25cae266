package core

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"ftpgate/internal/command"
	ftperr "ftpgate/internal/errors"
	"ftpgate/internal/ftpconn"
	"ftpgate/internal/metrics"
	"ftpgate/internal/session"
	"ftpgate/internal/tree"
	"ftpgate/util"
)

// dispatch runs cmd on an authenticated session.
func (e *Engine) dispatch(s *session.Session, cmd command.Command) (Result, error) {
	s.Logger.Verbose("dispatch")

	switch c := cmd.(type) {
	case command.List:
		return e.list(s, c)
	case command.GetFile:
		return e.getFile(s, c)
	case command.GetTree:
		return e.getTree(s, c)
	case command.Put:
		return e.put(s, c)
	case command.Rename:
		return e.rename(s, c)
	case command.Mkdir:
		return e.mkdir(s, c)
	case command.RmTree:
		return e.rmTree(s, c)
	default:
		return Result{}, ftperr.Validation("unsupported command %T", cmd)
	}
}

func (e *Engine) replicator(s *session.Session) *tree.Replicator {
	return &tree.Replicator{Conn: s.Conn, TypeFor: e.typeFor, Logger: s.Logger, Metrics: e.metrics}
}

func (e *Engine) list(s *session.Session, c command.List) (Result, error) {
	if dir, err := isDir(s.Conn, c.Path, s.Logger); err != nil {
		return Result{}, err
	} else if !dir {
		return Result{}, ftperr.NotFound(ftperr.OpList, "directory %s does not exist", c.Path)
	}
	raw, err := s.Conn.List(c.Path)
	if err != nil {
		return Result{}, ftperr.Classify(ftperr.OpList, err)
	}
	entries := make([]ftpconn.Entry, 0, len(raw))
	for _, en := range raw {
		if !ftpconn.IsSelfOrParent(en.Name) {
			entries = append(entries, en)
		}
	}
	return Result{Entries: entries}, nil
}

// getFile spools the file locally so the session can be torn down
// before the caller reads it.  The retrieval doubles as the existence
// probe.
func (e *Engine) getFile(s *session.Session, c command.GetFile) (Result, error) {
	if err := s.Conn.Type(e.typeFor(c.Path)); err != nil {
		return Result{}, ftperr.Classify(ftperr.OpType, err)
	}

	rc, err := s.Conn.Retr(c.Path)
	switch {
	case err != nil && ftperr.IsFileUnavailable(err):
		return Result{}, &ftperr.Error{Kind: ftperr.KindNotFound, Op: ftperr.OpRetrieve,
			Message: fmt.Sprintf("file %s does not exist", c.Path), Err: err}
	case err != nil:
		return Result{}, ftperr.Classify(ftperr.OpRetrieve, err)
	case rc == nil:
		return Result{}, ftperr.NotFound(ftperr.OpRetrieve, "file %s does not exist", c.Path)
	}

	spool, err := util.Spool(e.spoolDir, rc)
	closeErr := rc.Close()
	if err != nil {
		return Result{}, ftperr.Classify(ftperr.OpRetrieve, err)
	}
	if closeErr != nil {
		spool.Close()
		return Result{}, ftperr.Classify(ftperr.OpRetrieve, closeErr)
	}
	e.metrics.BytesTransferred(metrics.Download, spool.Size())
	s.Logger.Debug("spooled %d bytes to %s", spool.Size(), spool.Name())
	return Result{Stream: spool, Size: spool.Size()}, nil
}

func (e *Engine) getTree(s *session.Session, c command.GetTree) (Result, error) {
	if dir, err := isDir(s.Conn, c.Path, s.Logger); err != nil {
		return Result{}, err
	} else if !dir {
		return Result{}, ftperr.NotFound(ftperr.OpList, "directory %s does not exist", c.Path)
	}
	if err := requireLocalDir(c.Destination); err != nil {
		return Result{}, err
	}

	// The mirror keeps the remote path below the destination.
	root := filepath.Join(c.Destination, filepath.FromSlash(c.Path))
	if err := os.MkdirAll(root, 0o755); err != nil {
		return Result{}, ftperr.Classify(ftperr.OpLocal, err)
	}
	if err := e.replicator(s).Download(c.Path, root); err != nil {
		return Result{}, err
	}
	return Result{Path: root}, nil
}

func (e *Engine) put(s *session.Session, c command.Put) (Result, error) {
	info, err := os.Stat(c.Local)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, ftperr.NotFound(ftperr.OpLocal, "local path %s does not exist", c.Local)
		}
		return Result{}, ftperr.Classify(ftperr.OpLocal, err)
	}
	if dir, err := isDir(s.Conn, c.Path, s.Logger); err != nil {
		return Result{}, err
	} else if !dir {
		return Result{}, ftperr.NotFound(ftperr.OpStore, "remote directory %s does not exist", c.Path)
	}

	target := path.Join(c.Path, filepath.Base(filepath.Clean(c.Local)))
	r := e.replicator(s)

	if !info.IsDir() {
		if err := r.Store(c.Local, target); err != nil {
			return Result{}, err
		}
		return Result{Path: target, OK: true}, nil
	}

	if err := s.Conn.MakeDir(target); err != nil {
		return Result{}, ftperr.Classify(ftperr.OpMakeDir, err)
	}
	if err := r.Upload(c.Local, target); err != nil {
		return Result{}, err
	}
	return Result{Path: target}, nil
}

func (e *Engine) rename(s *session.Session, c command.Rename) (Result, error) {
	if c.Path == "/" {
		return Result{}, ftperr.Forbidden(ftperr.OpRename, "the root directory cannot be renamed")
	}
	found, err := exists(s.Conn, c.Path, s.Logger)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{}, ftperr.NotFound(ftperr.OpRename, "%s does not exist", c.Path)
	}

	to := path.Join(path.Dir(c.Path), c.NewName)
	if err := s.Conn.Rename(c.Path, to); err != nil {
		return Result{}, ftperr.Classify(ftperr.OpRename, err)
	}
	return Result{Path: to}, nil
}

func (e *Engine) mkdir(s *session.Session, c command.Mkdir) (Result, error) {
	if err := s.Conn.MakeDir(c.Path); err != nil {
		return Result{}, ftperr.Classify(ftperr.OpMakeDir, err)
	}
	return Result{Path: c.Path}, nil
}

func (e *Engine) rmTree(s *session.Session, c command.RmTree) (Result, error) {
	if c.Path == "/" {
		return Result{}, ftperr.Forbidden(ftperr.OpRemoveDir, "deleting the root directory is not allowed")
	}

	dir, err := isDir(s.Conn, c.Path, s.Logger)
	if err != nil {
		return Result{}, err
	}
	if dir {
		if err := e.replicator(s).Delete(c.Path); err != nil {
			return Result{}, err
		}
		return Result{OK: true}, nil
	}

	file, err := isFile(s.Conn, c.Path, s.Logger)
	if err != nil {
		return Result{}, err
	}
	if !file {
		return Result{}, ftperr.NotFound(ftperr.OpDelete, "%s does not exist", c.Path)
	}
	if err := s.Conn.Delete(c.Path); err != nil {
		return Result{}, ftperr.Classify(ftperr.OpDelete, err)
	}
	return Result{OK: true}, nil
}

func requireLocalDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return ftperr.NotFound(ftperr.OpLocal, "local directory %s does not exist", dir)
	case err != nil:
		return ftperr.Classify(ftperr.OpLocal, err)
	case !info.IsDir():
		return ftperr.NotFound(ftperr.OpLocal, "%s is not a directory", dir)
	}
	return nil
}
