package util

import (
	"io"
	"sync"
)

// TransferBufSize is the buffer size used when moving file contents
// between FTP data streams and local files (64 KiB).
const TransferBufSize = 64 * 1024

var bufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, TransferBufSize)
		return &buf
	},
}

// GetBuf retrieves a transfer buffer.  Return it with [PutBuf].
func GetBuf() *[]byte {
	return bufPool.Get().(*[]byte)
}

// PutBuf returns a buffer to the pool for reuse.
func PutBuf(buf *[]byte) {
	if buf == nil {
		return
	}
	bufPool.Put(buf)
}

// Copy is io.CopyBuffer with a pooled buffer.
func Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := GetBuf()
	defer PutBuf(buf)
	return io.CopyBuffer(dst, src, *buf)
}
