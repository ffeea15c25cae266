// Package tree mirrors directory hierarchies between the local disk and
// an FTP server, and deletes remote hierarchies.
//
// All three walks are depth-first and pre-order, discover nodes lazily
// with one LIST (or ReadDir) per directory, and stop at the first
// failure.  Nothing done before the failure is rolled back, so a failed
// walk leaves the target partially copied or partially deleted.
package tree

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	ftperr "ftpgate/internal/errors"
	"ftpgate/internal/ftpconn"
	"ftpgate/internal/metrics"
	"ftpgate/util"
)

// Replicator walks trees over one FTP connection.
type Replicator struct {
	Conn ftpconn.Conn
	// TypeFor picks the representation type per file name.  Nil means
	// binary for everything.
	TypeFor func(name string) ftpconn.TransferType
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Download copies the remote directory remoteDir into localDir, which
// must exist.  Sub-directories are created as needed.
func (r *Replicator) Download(remoteDir, localDir string) error {
	entries, err := r.Conn.List(remoteDir)
	if err != nil {
		return ftperr.Classify(ftperr.OpList, err)
	}

	for _, e := range entries {
		if ftpconn.IsSelfOrParent(e.Name) {
			continue
		}
		if err := checkName(e.Name); err != nil {
			return err
		}
		remote := path.Join(remoteDir, e.Name)
		local := filepath.Join(localDir, e.Name)

		switch e.Kind {
		case ftpconn.EntryDir:
			r.Logger.Debug("mirror dir %s → %s", remote, local)
			if err := mkdirLocal(local); err != nil {
				return err
			}
			if err := r.Download(remote, local); err != nil {
				return err
			}
		case ftpconn.EntryFile:
			r.Logger.Debug("mirror file %s → %s", remote, local)
			if err := r.fetch(remote, local); err != nil {
				return err
			}
		default:
			r.Logger.Verbose("skipping %s %s", e.Kind, remote)
		}
	}
	return nil
}

// Upload copies the contents of localDir into remoteDir, which must
// exist.  Remote sub-directories are created with MKD; an existing one
// fails the walk.  Symlinks to directories and dangling symlinks are
// skipped.
func (r *Replicator) Upload(localDir, remoteDir string) error {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return ftperr.Classify(ftperr.OpLocal, err)
	}

	for _, e := range entries {
		local := filepath.Join(localDir, e.Name())
		remote := path.Join(remoteDir, e.Name())

		info, err := os.Stat(local)
		if e.Type()&fs.ModeSymlink != 0 {
			// Linked files are uploaded by content.  Linked directories
			// are skipped, as links are on download; following them can
			// loop forever.
			if err != nil || info.IsDir() {
				r.Logger.Verbose("skipping symlink %s", local)
				continue
			}
		}
		if err != nil {
			return ftperr.Classify(ftperr.OpLocal, err)
		}

		switch {
		case info.IsDir():
			r.Logger.Debug("upload dir %s → %s", local, remote)
			if err := r.Conn.MakeDir(remote); err != nil {
				return ftperr.Classify(ftperr.OpMakeDir, err)
			}
			if err := r.Upload(local, remote); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			r.Logger.Debug("upload file %s → %s", local, remote)
			if err := r.Store(local, remote); err != nil {
				return err
			}
		default:
			r.Logger.Verbose("skipping %s (%s)", local, info.Mode().Type())
		}
	}
	return nil
}

// Delete removes remoteDir and everything below it.  Files are deleted
// as they are met, directories after their children.
func (r *Replicator) Delete(remoteDir string) error {
	entries, err := r.Conn.List(remoteDir)
	if err != nil {
		return ftperr.Classify(ftperr.OpList, err)
	}

	for _, e := range entries {
		if ftpconn.IsSelfOrParent(e.Name) {
			continue
		}
		if err := checkName(e.Name); err != nil {
			return err
		}
		remote := path.Join(remoteDir, e.Name)

		if e.Kind == ftpconn.EntryDir {
			if err := r.Delete(remote); err != nil {
				return err
			}
			continue
		}
		// Files and links are both removed with DELE.
		r.Logger.Debug("delete %s", remote)
		if err := r.Conn.Delete(remote); err != nil {
			return ftperr.Classify(ftperr.OpDelete, err)
		}
	}

	r.Logger.Debug("rmdir %s", remoteDir)
	if err := r.Conn.RemoveDir(remoteDir); err != nil {
		return ftperr.Classify(ftperr.OpRemoveDir, err)
	}
	return nil
}

// Store uploads one local file to remote.
func (r *Replicator) Store(local, remote string) (err error) {
	if err := r.setType(remote); err != nil {
		return err
	}

	f, err := os.Open(local)
	if err != nil {
		return ftperr.Classify(ftperr.OpLocal, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = ftperr.Classify(ftperr.OpLocal, cerr)
		}
	}()

	cr := &util.CountingReader{R: f}
	err = r.Conn.Stor(remote, cr)
	r.Metrics.BytesTransferred(metrics.Upload, cr.N)
	if err != nil {
		return ftperr.Classify(ftperr.OpStore, err)
	}
	return nil
}

// fetch retrieves remote into a new local file.
func (r *Replicator) fetch(remote, local string) error {
	if err := r.setType(remote); err != nil {
		return err
	}

	rc, err := r.Conn.Retr(remote)
	if err != nil {
		return ftperr.Classify(ftperr.OpRetrieve, err)
	}

	f, err := os.Create(local)
	if err != nil {
		rc.Close()
		return ftperr.Classify(ftperr.OpLocal, err)
	}

	n, copyErr := util.Copy(f, rc)
	r.Metrics.BytesTransferred(metrics.Download, n)

	// The stream close reads the transfer-complete reply, so it can
	// fail on its own; the local close can lose buffered data.
	var result *multierror.Error
	if copyErr != nil {
		result = multierror.Append(result, ftperr.Classify(ftperr.OpRetrieve, copyErr))
	}
	if err := rc.Close(); err != nil {
		result = multierror.Append(result, ftperr.Classify(ftperr.OpRetrieve, err))
	}
	if err := f.Close(); err != nil {
		result = multierror.Append(result, ftperr.Classify(ftperr.OpLocal, err))
	}
	if result != nil {
		// Report the first classified failure; the rest go to the log.
		if len(result.Errors) > 1 {
			r.Logger.Debug("fetch %s: %v", remote, result)
		}
		return result.Errors[0]
	}
	return nil
}

func (r *Replicator) setType(name string) error {
	t := ftpconn.TypeBinary
	if r.TypeFor != nil {
		t = r.TypeFor(name)
	}
	if err := r.Conn.Type(t); err != nil {
		return ftperr.Classify(ftperr.OpType, err)
	}
	return nil
}

// checkName rejects listing names that would escape the directory being
// walked.
func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return ftperr.Newf(ftperr.KindProtocol, ftperr.OpList, "server listed an invalid entry name %q", name)
	}
	return nil
}

func mkdirLocal(dir string) error {
	err := os.Mkdir(dir, 0o755)
	if err == nil {
		return nil
	}
	if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
		return nil
	}
	return ftperr.Classify(ftperr.OpLocal, err)
}
