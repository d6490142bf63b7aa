package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Entry names one file to include in an archive.
type Entry struct {
	// Name is the name inside the archive; empty falls back to the source
	// file's base name.
	Name string
	// Path is the source file on disk.
	Path string
}

// ArchiveFiles streams the named files into a zip written to w. Sources are
// copied through one at a time, so archives of large media never sit in
// memory. Entries whose source cannot be opened are skipped. Returns the
// number of entries written.
func ArchiveFiles(w io.Writer, entries []Entry) (int, error) {
	zw := zip.NewWriter(w)
	written := 0
	for _, entry := range entries {
		src, err := os.Open(entry.Path)
		if err != nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = filepath.Base(entry.Path)
		}
		dst, err := zw.Create(name)
		if err != nil {
			src.Close()
			zw.Close()
			return written, fmt.Errorf("zip: create entry %s: %w", name, err)
		}
		if _, err := io.Copy(dst, src); err != nil {
			src.Close()
			zw.Close()
			return written, fmt.Errorf("zip: write entry %s: %w", name, err)
		}
		src.Close()
		written++
	}
	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("zip: finalize archive: %w", err)
	}
	return written, nil
}
