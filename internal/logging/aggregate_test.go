package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LogFileName), []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestReadEntries(t *testing.T) {
	dir := writeLog(t,
		`{"time":"2026-01-01T10:00:02Z","level":"WARN","msg":"capacity warning","execution_id":"e1","ratio":0.8}`,
		`not json`,
		``,
		`{"time":"2026-01-01T10:00:01Z","level":"INFO","msg":"team started","project_id":"p1","execution_id":"e1","team_id":"t1"}`,
	)

	entries, err := ReadEntries(dir)
	if err != nil {
		t.Fatalf("ReadEntries() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Message != "team started" {
		t.Errorf("entries not sorted by time: first = %q", entries[0].Message)
	}
	if entries[0].TeamID != "t1" || entries[0].ProjectID != "p1" {
		t.Errorf("context fields not parsed: %+v", entries[0])
	}
	if entries[1].Attrs["ratio"] != 0.8 {
		t.Errorf("Attrs[ratio] = %v, want 0.8", entries[1].Attrs["ratio"])
	}
	if _, ok := entries[1].Attrs["execution_id"]; ok {
		t.Error("context keys must not leak into Attrs")
	}
}

func TestReadEntries_MissingFile(t *testing.T) {
	if _, err := ReadEntries(t.TempDir()); err == nil {
		t.Error("expected error for missing log file")
	}
}

func TestFilterEntries(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Timestamp: base, Level: LevelDebug, Message: "a", ExecutionID: "e1", TeamID: "t1"},
		{Timestamp: base.Add(time.Second), Level: LevelInfo, Message: "b", ExecutionID: "e1", TeamID: "t2"},
		{Timestamp: base.Add(2 * time.Second), Level: LevelError, Message: "worker failed", ExecutionID: "e2", WorkerID: "w"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty", Filter{}, []string{"a", "b", "worker failed"}},
		{"level", Filter{Level: "info"}, []string{"b", "worker failed"}},
		{"execution", Filter{ExecutionID: "e1"}, []string{"a", "b"}},
		{"team", Filter{TeamID: "t2"}, []string{"b"}},
		{"worker", Filter{WorkerID: "w"}, []string{"worker failed"}},
		{"since", Filter{Since: base.Add(time.Second)}, []string{"b", "worker failed"}},
		{"message", Filter{MessageContains: "failed"}, []string{"worker failed"}},
		{"combined", Filter{ExecutionID: "e1", Level: LevelInfo}, []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterEntries(entries, tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				if e.Message != tt.want[i] {
					t.Errorf("entry %d = %q, want %q", i, e.Message, tt.want[i])
				}
			}
		})
	}
}

func TestEntry_Format(t *testing.T) {
	e := Entry{
		Timestamp: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
		Level:     LevelInfo,
		Message:   "worker completed",
		TeamID:    "t1",
		WorkerID:  "analyst",
		Attrs:     map[string]any{"tier": "large", "attempts": 1},
	}
	got := e.Format()
	for _, want := range []string{"[INFO ]", "worker completed", "team=t1", "worker=analyst", "attempts=1 tier=large"} {
		if !strings.Contains(got, want) {
			t.Errorf("Format() = %q, missing %q", got, want)
		}
	}
}
