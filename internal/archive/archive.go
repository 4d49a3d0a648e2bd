// Package archive freezes completed session logs for later review. A
// finished run's log is copied, never moved, into a timestamped directory
// alongside a small metadata document; an index database makes listing
// cheap and resilient to damaged metadata files.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/agentdeck/agentdeck/internal/logging"
)

const (
	logFileName      = "log.jsonl"
	metadataFileName = "metadata.json"
	indexFileName    = "index.db"
)

// Metadata is the per-archive metadata.json document.
type Metadata struct {
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	SizeBytes int64     `json:"sizeBytes"`
}

// Entry describes one archived session, newest-first in listings.
type Entry struct {
	Path      string    `json:"path"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	SizeBytes int64     `json:"sizeBytes"`
}

// Manager copies session logs into <dir>/<ISO-timestamp>/ and maintains the
// listing index.
type Manager struct {
	dir   string
	index *Index
}

// NewManager opens (or creates) the archive directory and its index.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}

	idx, err := OpenIndex(filepath.Join(dir, indexFileName))
	if err != nil {
		return nil, err
	}

	return &Manager{dir: dir, index: idx}, nil
}

func (m *Manager) Close() error {
	return m.index.Close()
}

// Archive copies the log at logPath plus its metadata into a fresh
// timestamped directory. The live log is left untouched; truncation is the
// next run's decision, not ours.
func (m *Manager) Archive(logPath string, startedAt, endedAt time.Time) (*Entry, error) {
	info, err := os.Stat(logPath)
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}

	stamp := endedAt.UTC().Format("2006-01-02T15-04-05Z")
	dest := filepath.Join(m.dir, stamp)
	for i := 1; ; i++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			break
		}
		dest = filepath.Join(m.dir, fmt.Sprintf("%s-%d", stamp, i))
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive entry dir: %w", err)
	}

	if err := copyFile(logPath, filepath.Join(dest, logFileName)); err != nil {
		return nil, fmt.Errorf("copying log: %w", err)
	}

	meta := Metadata{StartedAt: startedAt, EndedAt: endedAt, SizeBytes: info.Size()}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dest, metadataFileName), data, 0o644); err != nil {
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	entry := &Entry{Path: dest, StartedAt: startedAt, EndedAt: endedAt, SizeBytes: info.Size()}
	if err := m.index.Save(entry); err != nil {
		// The copy on disk is the source of truth; a broken index only
		// degrades listing.
		logging.Warn().Err(err).Str("path", dest).Msg("archive index update failed")
	}

	logging.Info().Str("path", dest).Int64("bytes", info.Size()).Msg("session archived")
	return entry, nil
}

// List returns all archive entries, newest-first. The index serves the
// listing; entries missing from it (index rebuilt, manual copies) are
// recovered from the directory scan.
func (m *Manager) List() ([]Entry, error) {
	entries, err := m.index.List()
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		known[e.Path] = true
	}

	scanned, scanErr := m.scan()
	if scanErr != nil {
		logging.Warn().Err(scanErr).Msg("archive dir scan failed; serving index only")
	}
	for _, e := range scanned {
		if known[e.Path] {
			continue
		}
		entries = append(entries, e)
		if err := m.index.Save(&e); err != nil {
			logging.Warn().Err(err).Str("path", e.Path).Msg("archive index backfill failed")
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].EndedAt.After(entries[j].EndedAt)
	})
	return entries, nil
}

// scan rebuilds entries from metadata.json files on disk.
func (m *Manager) scan() ([]Entry, error) {
	dirEntries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		path := filepath.Join(m.dir, de.Name())
		data, err := os.ReadFile(filepath.Join(path, metadataFileName))
		if err != nil {
			continue
		}
		var meta Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			logging.Warn().Str("path", path).Msg("unreadable archive metadata, skipping")
			continue
		}
		entries = append(entries, Entry{
			Path:      path,
			StartedAt: meta.StartedAt,
			EndedAt:   meta.EndedAt,
			SizeBytes: meta.SizeBytes,
		})
	}
	return entries, nil
}

// LogPath returns the archived log file path for an entry.
func (e Entry) LogPath() string {
	return filepath.Join(e.Path, logFileName)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
