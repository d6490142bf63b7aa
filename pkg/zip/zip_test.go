package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestArchiveFilesStreamsEntries(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "video_1.mp4")
	second := filepath.Join(dir, "video_2.mp4")
	if err := os.WriteFile(first, []byte("first payload"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if err := os.WriteFile(second, []byte("second payload"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	var buf bytes.Buffer
	written, err := ArchiveFiles(&buf, []Entry{
		{Name: "renamed.mp4", Path: first},
		{Path: second},
		{Path: filepath.Join(dir, "missing.mp4")},
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if written != 2 {
		t.Fatalf("written = %d, want 2 (missing source skipped)", written)
	}

	reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	got := map[string]string{}
	for _, file := range reader.File {
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", file.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", file.Name, err)
		}
		got[file.Name] = string(data)
	}
	if got["renamed.mp4"] != "first payload" {
		t.Fatalf("renamed.mp4 = %q", got["renamed.mp4"])
	}
	if got["video_2.mp4"] != "second payload" {
		t.Fatalf("video_2.mp4 = %q", got["video_2.mp4"])
	}
}

func TestArchiveFilesEmptyInput(t *testing.T) {
	var buf bytes.Buffer
	written, err := ArchiveFiles(&buf, nil)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if written != 0 {
		t.Fatalf("written = %d, want 0", written)
	}
	if _, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
		t.Fatalf("empty archive should still be valid: %v", err)
	}
}
