package logbuffer

import (
	"testing"
	"time"
)

func TestBuffer_EvictsOldestWhenFull(t *testing.T) {
	b := New(3)
	for _, msg := range []string{"one", "two", "three", "four"} {
		b.Add(Entry{Message: msg})
	}

	all := b.All()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Message != "two" || all[2].Message != "four" {
		t.Fatalf("all = %+v", all)
	}
}

func TestBuffer_Query(t *testing.T) {
	b := New(10)
	b.Add(Entry{Level: "info", Component: "engine", Message: "filter complete"})
	b.Add(Entry{Level: "error", Component: "refresh", Message: "run failed",
		Fields: map[string]any{"playlist_id": "p1"}})
	b.Add(Entry{Level: "info", Component: "refresh", Message: "run started",
		Fields: map[string]any{"playlist_id": "p2"}})

	if got := b.Query(QueryParams{Level: "error"}); len(got) != 1 || got[0].Message != "run failed" {
		t.Fatalf("level filter = %+v", got)
	}
	if got := b.Query(QueryParams{Component: "refresh"}); len(got) != 2 {
		t.Fatalf("component filter = %+v", got)
	}
	if got := b.Query(QueryParams{PlaylistID: "p2"}); len(got) != 1 || got[0].Message != "run started" {
		t.Fatalf("playlist filter = %+v", got)
	}
	if got := b.Query(QueryParams{Search: "FILTER"}); len(got) != 1 {
		t.Fatalf("search filter = %+v", got)
	}
	if got := b.Query(QueryParams{Descending: true, Limit: 1}); len(got) != 1 || got[0].Message != "run started" {
		t.Fatalf("descending limit = %+v", got)
	}
}

func TestWriter_ParsesJSONLines(t *testing.T) {
	b := New(10)
	w := NewWriter(b, nil)

	line := `{"level":"warn","component":"cache","playlist_id":"p1","time":"2026-04-01T10:00:00Z","message":"redis unavailable"}`
	if _, err := w.Write([]byte(line)); err != nil {
		t.Fatalf("write: %v", err)
	}

	all := b.All()
	if len(all) != 1 {
		t.Fatalf("len = %d", len(all))
	}
	entry := all[0]
	if entry.Level != "warn" || entry.Component != "cache" || entry.Message != "redis unavailable" {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.Fields["playlist_id"] != "p1" {
		t.Fatalf("fields = %v", entry.Fields)
	}
	want := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	if !entry.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %s", entry.Timestamp)
	}
}
