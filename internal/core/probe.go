package core

import (
	ftperr "ftpgate/internal/errors"
	"ftpgate/internal/ftpconn"
	"ftpgate/util"
)

// Existence probes.  Both have protocol side effects: the directory
// probe moves the working directory (restored to "/" afterwards, all
// engine paths being absolute) and the file probe opens and abandons a
// retrieval.

// isDir reports whether p is an existing directory.  A negative reply
// to CWD means no; any other failure (a dropped connection, a closed
// tunnel) is returned classified.
func isDir(conn ftpconn.Conn, p string, log *util.Logger) (bool, error) {
	if err := conn.ChangeDir(p); err != nil {
		var re *ftperr.ReplyError
		if !ftperr.As(err, &re) {
			return false, ftperr.Classify(ftperr.OpChangeDir, err)
		}
		log.Debug("probe dir %s: %v", p, err)
		return false, nil
	}
	if p != "/" {
		if err := conn.ChangeDir("/"); err != nil {
			log.Debug("probe dir %s: restoring cwd: %v", p, err)
		}
	}
	return true, nil
}

// isFile reports whether p can be retrieved.  A "file unavailable"
// reply or a nil stream means no; any other failure is returned.
func isFile(conn ftpconn.Conn, p string, log *util.Logger) (bool, error) {
	rc, err := conn.Retr(p)
	switch {
	case err != nil && ftperr.IsFileUnavailable(err):
		log.Debug("probe file %s: %v", p, err)
		return false, nil
	case err != nil:
		return false, ftperr.Classify(ftperr.OpRetrieve, err)
	case rc == nil:
		return false, nil
	}
	if err := rc.Close(); err != nil {
		log.Debug("probe file %s: abandoning transfer: %v", p, err)
	}
	return true, nil
}

// exists reports whether p is a directory or a file, trying the
// directory probe first.
func exists(conn ftpconn.Conn, p string, log *util.Logger) (bool, error) {
	if dir, err := isDir(conn, p, log); dir || err != nil {
		return dir, err
	}
	return isFile(conn, p, log)
}
