package ingest

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// ErrNoMapEntry means a well-formed archive held neither a KML nor a
// shapefile entry. Unlike malformed markup, this aborts the run.
var ErrNoMapEntry = eris.New("ingest: archive contains no map entry")

// DetectAndParse sniffs the payload format and parses it into features.
// Compressed archives (KMZ or zipped shapefiles) are unpacked first; an
// archive holding no map entry fails before anything is persisted.
func DetectAndParse(raw []byte) ([]Feature, error) {
	if bytes.HasPrefix(raw, zipMagic) {
		return parseArchive(raw)
	}

	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	switch {
	case bytes.HasPrefix(trimmed, []byte("{")):
		return ParseGeoJSON(raw)
	case bytes.HasPrefix(trimmed, []byte("<")):
		return ParseKML(raw)
	default:
		return nil, eris.New("ingest: unrecognized map format")
	}
}

func parseArchive(raw []byte) ([]Feature, error) {
	r, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open archive")
	}

	// KMZ: first .kml entry wins.
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".kml") {
			continue
		}
		content, err := readZipEntry(f)
		if err != nil {
			return nil, err
		}
		return ParseKML(content)
	}

	// Zipped shapefile: extract everything so the .shp finds its .dbf.
	hasShp := false
	for _, f := range r.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".shp") {
			hasShp = true
			break
		}
	}
	if !hasShp {
		return nil, ErrNoMapEntry
	}

	dir, err := os.MkdirTemp("", "coverage-shp-*")
	if err != nil {
		return nil, eris.Wrap(err, "ingest: create temp dir")
	}
	defer os.RemoveAll(dir)

	shpPath := ""
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		dest := filepath.Join(dir, filepath.Base(f.Name))
		if err := writeZipEntry(f, dest); err != nil {
			return nil, err
		}
		if strings.HasSuffix(strings.ToLower(dest), ".shp") {
			shpPath = dest
		}
	}

	return ParseShapefile(shpPath)
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open archive entry %q", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read archive entry %q", f.Name)
	}
	return content, nil
}

func writeZipEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "ingest: open archive entry %q", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "ingest: extract archive entry")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return eris.Wrapf(err, "ingest: write archive entry %q", f.Name)
	}
	return nil
}
