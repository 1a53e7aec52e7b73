// Package fetcher reads serviceability source files: plain-text CEP lists,
// CSV and XLSX city tables, and ZIP archives wrapping either.
package fetcher

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// RowsFromFile loads tabular data from a file, dispatching on extension.
// Supported: .csv, .txt (one value per line), .xlsx, and .zip wrapping any
// of those.
func RowsFromFile(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: open csv")
		}
		defer f.Close() //nolint:errcheck
		return ReadCSVRows(f)
	case ".txt":
		lines, err := ReadLines(path)
		if err != nil {
			return nil, err
		}
		rows := make([][]string, len(lines))
		for i, line := range lines {
			rows[i] = []string{line}
		}
		return rows, nil
	case ".xlsx":
		return ReadXLSXRows(path, XLSXOptions{})
	case ".zip":
		return rowsFromZIP(path)
	default:
		return nil, eris.Errorf("fetcher: unsupported file type %q", filepath.Ext(path))
	}
}

// rowsFromZIP extracts the archive to a scratch directory and loads the
// first supported entry.
func rowsFromZIP(path string) ([][]string, error) {
	tmpDir, err := os.MkdirTemp("", "coverage-import-*")
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create scratch dir")
	}
	defer os.RemoveAll(tmpDir) //nolint:errcheck

	for _, ext := range []string{".csv", ".txt", ".xlsx"} {
		extracted, err := ExtractZIPByExt(path, ext, tmpDir)
		if err != nil {
			return nil, err
		}
		if len(extracted) > 0 {
			return RowsFromFile(extracted[0])
		}
	}

	return nil, eris.Errorf("fetcher: archive %q contains no supported data file", filepath.Base(path))
}
