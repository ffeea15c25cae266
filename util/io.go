package util

import (
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
)

// SpoolFile is a temporary file that deletes itself on Close.
type SpoolFile struct {
	*os.File
	size int64
}

// Spool copies r into a new temporary file under dir ("" = os.TempDir)
// and returns it rewound to the start.
func Spool(dir string, r io.Reader) (*SpoolFile, error) {
	f, err := os.CreateTemp(dir, "ftpgate-spool-*")
	if err != nil {
		return nil, err
	}
	s := &SpoolFile{File: f}

	n, err := Copy(f, r)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	s.size = n
	return s, nil
}

// Size returns the number of spooled bytes.
func (s *SpoolFile) Size() int64 { return s.size }

// Close closes and removes the file.
func (s *SpoolFile) Close() error {
	var errs *multierror.Error
	if err := s.File.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := os.Remove(s.Name()); err != nil && !os.IsNotExist(err) {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// CountingReader counts the bytes read through it.
type CountingReader struct {
	R io.Reader
	N int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.N += int64(n)
	return n, err
}
