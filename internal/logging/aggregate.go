package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry is one parsed line of the JSON log.
type Entry struct {
	Timestamp   time.Time
	Level       string
	Message     string
	ProjectID   string
	ExecutionID string
	TeamID      string
	WorkerID    string
	Attrs       map[string]any
}

// Filter selects log entries. Zero-valued fields do not filter.
// Multiple criteria are combined with AND logic.
type Filter struct {
	// Level keeps entries at or above this level (DEBUG < INFO < WARN < ERROR).
	Level           string
	Since           time.Time
	ProjectID       string
	ExecutionID     string
	TeamID          string
	WorkerID        string
	MessageContains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

var contextKeys = map[string]bool{
	"time":         true,
	"level":        true,
	"msg":          true,
	"project_id":   true,
	"execution_id": true,
	"team_id":      true,
	"worker_id":    true,
}

// ReadEntries parses every log line in {dir}/workcrew.log. Lines that are not
// valid JSON are skipped so a truncated tail does not hide the rest.
// Entries are returned sorted by timestamp.
func ReadEntries(dir string) ([]Entry, error) {
	file, err := os.Open(filepath.Join(dir, LogFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no log file in %s: %w", dir, err)
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	const maxLine = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := ParseEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// ParseEntry parses one JSON log line.
func ParseEntry(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}

	entry := Entry{
		Level:       str("level"),
		Message:     str("msg"),
		ProjectID:   str("project_id"),
		ExecutionID: str("execution_id"),
		TeamID:      str("team_id"),
		WorkerID:    str("worker_id"),
		Attrs:       make(map[string]any),
	}
	if t, err := time.Parse(time.RFC3339Nano, str("time")); err == nil {
		entry.Timestamp = t
	}
	for k, v := range raw {
		if !contextKeys[k] {
			entry.Attrs[k] = v
		}
	}
	return entry, nil
}

// FilterEntries returns the entries matching f, preserving order.
func FilterEntries(entries []Entry, f Filter) []Entry {
	var out []Entry
	for _, e := range entries {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Matches reports whether e passes every criterion of f.
func (f Filter) Matches(e Entry) bool {
	if f.Level != "" {
		want, okWant := levelOrder[strings.ToUpper(f.Level)]
		got, okGot := levelOrder[e.Level]
		if okWant && okGot && got < want {
			return false
		}
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if f.ProjectID != "" && e.ProjectID != f.ProjectID {
		return false
	}
	if f.ExecutionID != "" && e.ExecutionID != f.ExecutionID {
		return false
	}
	if f.TeamID != "" && e.TeamID != f.TeamID {
		return false
	}
	if f.WorkerID != "" && e.WorkerID != f.WorkerID {
		return false
	}
	if f.MessageContains != "" && !strings.Contains(e.Message, f.MessageContains) {
		return false
	}
	return true
}

// Format renders an entry as a single human-readable line.
func (e Entry) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%-5s] %s", e.Timestamp.Format(time.RFC3339), e.Level, e.Message)

	for _, kv := range []struct{ k, v string }{
		{"execution", e.ExecutionID},
		{"team", e.TeamID},
		{"worker", e.WorkerID},
	} {
		if kv.v != "" {
			fmt.Fprintf(&b, " %s=%s", kv.k, kv.v)
		}
	}

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}
