package stream

import (
	"bytes"
	"encoding/json"
)

// ParseError records one undecodable log line. These are counted, never
// fatal: a corrupt line must not take down the live view.
type ParseError struct {
	Line string
	Err  error
}

// LineParser splits byte chunks into complete newline-terminated lines and
// decodes each into a RawEvent. A chunk that does not end in a newline has
// its tail buffered and prefixed to the next feed, so events never straddle
// poll boundaries.
type LineParser struct {
	partial []byte
}

func NewLineParser() *LineParser {
	return &LineParser{}
}

// Feed consumes one chunk. Events and parse errors come back in file
// order; a malformed line does not stop the lines after it.
func (p *LineParser) Feed(buf []byte) ([]RawEvent, []ParseError) {
	if len(buf) == 0 {
		return nil, nil
	}

	data := buf
	if len(p.partial) > 0 {
		data = append(p.partial, buf...)
		p.partial = nil
	}

	var events []RawEvent
	var errs []ParseError

	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := data[:i]
		data = data[i+1:]

		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var ev RawEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			errs = append(errs, ParseError{Line: string(line), Err: err})
			continue
		}
		events = append(events, ev)
	}

	if len(data) > 0 {
		p.partial = append([]byte(nil), data...)
	}

	return events, errs
}

// Pending reports how many bytes of an incomplete trailing line are
// buffered.
func (p *LineParser) Pending() int {
	return len(p.partial)
}

// Reset discards any buffered partial line. Called when the underlying
// file rotates.
func (p *LineParser) Reset() {
	p.partial = nil
}
