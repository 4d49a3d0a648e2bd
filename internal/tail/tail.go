// Package tail reads only the bytes appended to a log file since the last
// observed offset, detecting truncation and rotation between polls.
package tail

import (
	"io"
	"os"
)

// Result is the outcome of a single poll.
type Result struct {
	// Bytes holds the data appended since the last offset. Nil when the
	// file is missing or nothing new was written.
	Bytes []byte

	// NewOffset is the offset to pass to the next poll. Only advanced
	// after a successful full read.
	NewOffset int64

	// Rotated reports that the file shrank or was replaced since the
	// previous poll. Bytes then start from offset 0 of the new file.
	Rotated bool
}

// Tailer polls one file for appended bytes. It remembers the file identity
// between polls so a same-size replacement is still detected as rotation.
// Not safe for concurrent use; the poll loop is the single caller.
type Tailer struct {
	path   string
	fileID uint64
	haveID bool
}

func New(path string) *Tailer {
	return &Tailer{path: path}
}

func (t *Tailer) Path() string { return t.path }

// Poll stats the file and reads from lastOffset to the size observed by
// that stat. A missing file is "not yet created": empty result, offset
// unchanged. Read errors return the unchanged offset so the next poll
// retries the same range.
func (t *Tailer) Poll(lastOffset int64) (Result, error) {
	info, err := os.Stat(t.path)
	if os.IsNotExist(err) {
		return Result{NewOffset: lastOffset}, nil
	}
	if err != nil {
		return Result{NewOffset: lastOffset}, err
	}

	size := info.Size()
	id, haveID := fileID(info)

	rotated := size < lastOffset
	if t.haveID && haveID && id != t.fileID {
		rotated = true
	}
	t.fileID, t.haveID = id, haveID

	readFrom := lastOffset
	if rotated {
		readFrom = 0
	}
	if size == readFrom {
		return Result{NewOffset: readFrom, Rotated: rotated}, nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		return Result{NewOffset: lastOffset}, err
	}
	defer f.Close()

	if readFrom > 0 {
		if _, err := f.Seek(readFrom, io.SeekStart); err != nil {
			return Result{NewOffset: lastOffset}, err
		}
	}

	// Never read past the size seen at stat time: a concurrent writer may
	// be mid-append and the tail of the file mid-line.
	buf := make([]byte, size-readFrom)
	if _, err := io.ReadFull(f, buf); err != nil {
		return Result{NewOffset: lastOffset}, err
	}

	return Result{Bytes: buf, NewOffset: size, Rotated: rotated}, nil
}
