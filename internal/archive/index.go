package archive

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS archives (
    path        TEXT PRIMARY KEY,
    started_at  TEXT NOT NULL,
    ended_at    TEXT NOT NULL,
    size_bytes  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_archives_ended ON archives(ended_at);
`

// Index is the sqlite-backed listing of archived sessions.
type Index struct {
	db *sql.DB
}

func OpenIndex(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)")
	if err != nil {
		return nil, fmt.Errorf("opening archive index: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating archive schema: %w", err)
	}

	return &Index{db: db}, nil
}

func (i *Index) Close() error {
	return i.db.Close()
}

func (i *Index) Save(e *Entry) error {
	_, err := i.db.Exec(`INSERT OR REPLACE INTO archives (path, started_at, ended_at, size_bytes)
		VALUES (?, ?, ?, ?)`,
		e.Path,
		e.StartedAt.UTC().Format(time.RFC3339Nano),
		e.EndedAt.UTC().Format(time.RFC3339Nano),
		e.SizeBytes,
	)
	return err
}

func (i *Index) List() ([]Entry, error) {
	rows, err := i.db.Query(`SELECT path, started_at, ended_at, size_bytes
		FROM archives ORDER BY ended_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var started, ended string
		if err := rows.Scan(&e.Path, &started, &ended, &e.SizeBytes); err != nil {
			return nil, err
		}
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		e.EndedAt, _ = time.Parse(time.RFC3339Nano, ended)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
