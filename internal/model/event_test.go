package model

import (
	"testing"
)

func TestParseEventLog_DropsMalformedLines(t *testing.T) {
	content := []byte("{\"source\":\"a\"}\r\n{broken\n\n{\"source\":\"b\"}\n[1,2]\n")

	events, dropped := ParseEventLog(content)
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if string(events[0]) != `{"source":"a"}` {
		t.Errorf("events[0] = %s", events[0])
	}
	if string(events[1]) != `{"source":"b"}` {
		t.Errorf("events[1] = %s", events[1])
	}
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
}

func TestParseEventLog_ValidAndEmptyLine(t *testing.T) {
	events, dropped := ParseEventLog([]byte("{\"keystrokes\":10}\n"))
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
}

func TestParseEventLog_Empty(t *testing.T) {
	events, dropped := ParseEventLog(nil)
	if len(events) != 0 || dropped != 0 {
		t.Errorf("ParseEventLog(nil) = (%d, %d), want (0, 0)", len(events), dropped)
	}
}

func TestParseEventLine_RejectsNull(t *testing.T) {
	if _, ok := ParseEventLine([]byte("null")); ok {
		t.Error("null must not parse as an event")
	}
}
