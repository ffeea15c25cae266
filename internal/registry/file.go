// Package registry stores the gateway's two flat-file tables: FTP server
// endpoints ("alias;host;port") and façade users ("username;bcrypt-hash").
// Each table is re-read on every call so edits made by hand are picked
// up without a restart; writes replace the file atomically.
package registry

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ftperr "ftpgate/internal/errors"
)

const (
	sep   = ";"
	opReg = "registry"
)

// record is one parsed line with its 1-based line number.
type record struct {
	line   int
	fields []string
}

// readRecords parses path into records of exactly n fields.  Blank lines
// and lines starting with '#' are skipped.  A missing file is empty.
func readRecords(path string, n int) ([]record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ftperr.Classify(ftperr.OpLocal, err)
	}
	defer f.Close()

	var out []record
	sc := bufio.NewScanner(f)
	for ln := 1; sc.Scan(); ln++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, sep)
		if len(fields) != n {
			return nil, ftperr.Newf(ftperr.KindInternal, opReg,
				"%s:%d: want %d fields separated by %q, got %d", filepath.Base(path), ln, n, sep, len(fields))
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		out = append(out, record{line: ln, fields: fields})
	}
	if err := sc.Err(); err != nil {
		return nil, ftperr.Classify(ftperr.OpLocal, err)
	}
	return out, nil
}

// writeRecords replaces path with one line per record.  The new content
// goes to a temporary file in the same directory which is then renamed
// over the old one, so readers never see a partial table.
func writeRecords(path string, rows [][]string, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return ftperr.Classify(ftperr.OpLocal, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	w := bufio.NewWriter(tmp)
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, sep))
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return ftperr.Classify(ftperr.OpLocal, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return ftperr.Classify(ftperr.OpLocal, err)
	}
	if err := tmp.Close(); err != nil {
		return ftperr.Classify(ftperr.OpLocal, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return ftperr.Classify(ftperr.OpLocal, err)
	}
	return nil
}

// checkField rejects values that would break the line format.
func checkField(name, v string) error {
	switch {
	case strings.TrimSpace(v) == "":
		return ftperr.Validation("%s is required", name)
	case strings.ContainsAny(v, sep+"\r\n"):
		return ftperr.Validation("%s must not contain %q or line breaks", name, sep)
	case strings.HasPrefix(strings.TrimSpace(v), "#"):
		return ftperr.Validation("%s must not start with '#'", name)
	}
	return nil
}
