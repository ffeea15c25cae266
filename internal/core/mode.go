// Package core is the FTP gateway execution engine.  It runs one
// abstract command per FTP session and owns the whole lifecycle:
//
//	connect → select mode → authenticate → dispatch → teardown
//
// Teardown runs on every exit path, including panics, and never replaces
// the result being reported.  Each command runs on its own goroutine and
// hands its Outcome back on a single-use channel.
package core

import (
	"mime"
	"path"
	"strings"

	"ftpgate/internal/ftpconn"
)

// extraImageExts covers image formats that the platform MIME table may
// not know about.
var extraImageExts = map[string]bool{
	".bmp": true, ".ico": true, ".tif": true, ".tiff": true,
	".heic": true, ".psd": true, ".raw": true,
}

// TransferTypeFor picks TYPE I for images and TYPE A for everything
// else, judged by the file name alone.
//
// Non-image binaries (archives, executables) are sent as text and may
// be altered by line-ending translation on servers that honour TYPE A.
//
// The choice only takes effect on passive sessions.  The active driver
// sends TYPE I itself before every RETR and STOR, so active transfers,
// the default mode, are always binary whatever this returns.
func TransferTypeFor(name string) ftpconn.TransferType {
	if IsImage(name) {
		return ftpconn.TypeBinary
	}
	return ftpconn.TypeText
}

// IsImage reports whether name's extension maps to an image/* MIME type.
func IsImage(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return false
	}
	if extraImageExts[ext] {
		return true
	}
	return strings.HasPrefix(mime.TypeByExtension(ext), "image/")
}
