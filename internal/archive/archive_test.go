package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "archive")
	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m, dir
}

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestArchiveCopiesLogAndMetadata(t *testing.T) {
	m, _ := newManager(t)
	logPath := writeLog(t, `{"type":"user","text":"hi"}`+"\n")

	started := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	ended := started.Add(time.Hour)

	entry, err := m.Archive(logPath, started, ended)
	if err != nil {
		t.Fatal(err)
	}

	copied, err := os.ReadFile(entry.LogPath())
	if err != nil {
		t.Fatal(err)
	}
	original, _ := os.ReadFile(logPath)
	if string(copied) != string(original) {
		t.Error("archived log differs from the live log")
	}

	// The live log must be untouched.
	if _, err := os.Stat(logPath); err != nil {
		t.Error("archiving must never remove the live log")
	}

	var meta Metadata
	data, err := os.ReadFile(filepath.Join(entry.Path, "metadata.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatal(err)
	}
	if !meta.StartedAt.Equal(started) || !meta.EndedAt.Equal(ended) {
		t.Errorf("metadata times = %+v", meta)
	}
	if meta.SizeBytes != int64(len(original)) {
		t.Errorf("sizeBytes = %d, want %d", meta.SizeBytes, len(original))
	}
}

func TestListNewestFirst(t *testing.T) {
	m, _ := newManager(t)
	logPath := writeLog(t, "x\n")

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		end := base.Add(time.Duration(i) * time.Hour)
		if _, err := m.Archive(logPath, base, end); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].EndedAt.After(entries[i-1].EndedAt) {
			t.Errorf("entries not newest-first at %d", i)
		}
	}
}

func TestListRecoversEntriesMissingFromIndex(t *testing.T) {
	m, dir := newManager(t)
	logPath := writeLog(t, "y\n")

	started := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	if _, err := m.Archive(logPath, started, started.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	// A fresh index file simulates index loss; the directory scan should
	// rediscover the archived entry.
	if err := os.Remove(filepath.Join(dir, "index.db")); err != nil {
		t.Fatal(err)
	}
	m2, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer m2.Close()

	entries, err := m2.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("recovered entries = %d, want 1", len(entries))
	}
}

func TestArchiveCollisionGetsSuffix(t *testing.T) {
	m, _ := newManager(t)
	logPath := writeLog(t, "z\n")

	ended := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	a, err := m.Archive(logPath, ended.Add(-time.Minute), ended)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Archive(logPath, ended.Add(-time.Minute), ended)
	if err != nil {
		t.Fatal(err)
	}
	if a.Path == b.Path {
		t.Error("same-second archives must land in distinct directories")
	}
}

func TestArchiveMissingLog(t *testing.T) {
	m, _ := newManager(t)
	if _, err := m.Archive(filepath.Join(t.TempDir(), "gone.jsonl"), time.Now(), time.Now()); err == nil {
		t.Error("expected error for missing log file")
	}
}
