package stream

import "testing"

func TestFeedSplitsCompleteLines(t *testing.T) {
	p := NewLineParser()

	events, errs := p.Feed([]byte(`{"type":"user","text":"hi"}` + "\n" + `{"type":"assistant"}` + "\n"))
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != "user" || events[0].Text != "hi" {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Type != "assistant" {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestFeedBuffersPartialLine(t *testing.T) {
	p := NewLineParser()

	events, errs := p.Feed([]byte(`{"type":"user",`))
	if len(events) != 0 || len(errs) != 0 {
		t.Fatalf("partial line must produce nothing, got %d events %d errors", len(events), len(errs))
	}
	if p.Pending() == 0 {
		t.Fatal("expected buffered partial line")
	}

	events, errs = p.Feed([]byte(`"text":"split across polls"}` + "\n"))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event after completion, got %d", len(events))
	}
	if events[0].Text != "split across polls" {
		t.Errorf("text = %q", events[0].Text)
	}
	if p.Pending() != 0 {
		t.Error("partial buffer should be drained")
	}
}

func TestFeedMalformedLineBetweenGoodOnes(t *testing.T) {
	p := NewLineParser()

	chunk := `{"type":"user","text":"a"}` + "\n" +
		`{not json at all` + "\n" +
		`{"type":"assistant","text":"b"}` + "\n"

	events, errs := p.Feed([]byte(chunk))
	if len(events) != 2 {
		t.Fatalf("expected 2 valid events, got %d", len(events))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 parse error, got %d", len(errs))
	}
	// Original order preserved around the bad line.
	if events[0].Text != "a" || events[1].Text != "b" {
		t.Errorf("event order wrong: %q, %q", events[0].Text, events[1].Text)
	}
	if errs[0].Line != `{not json at all` {
		t.Errorf("error line = %q", errs[0].Line)
	}
}

func TestFeedSkipsBlankLines(t *testing.T) {
	p := NewLineParser()

	events, errs := p.Feed([]byte("\n\n" + `{"type":"system"}` + "\n\n"))
	if len(errs) != 0 {
		t.Fatalf("blank lines must not be errors: %v", errs)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestFeedCRLF(t *testing.T) {
	p := NewLineParser()

	events, errs := p.Feed([]byte(`{"type":"user"}` + "\r\n"))
	if len(errs) != 0 || len(events) != 1 {
		t.Fatalf("CRLF line: events=%d errs=%v", len(events), errs)
	}
}

func TestResetDropsPartial(t *testing.T) {
	p := NewLineParser()
	p.Feed([]byte(`{"type":`))
	p.Reset()

	events, errs := p.Feed([]byte(`{"type":"user"}` + "\n"))
	if len(errs) != 0 {
		t.Fatalf("stale partial leaked across reset: %v", errs)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}
