// Package memory models cross-run learnings as an explicit append-only log
// keyed by project or domain. The task graph builder receives a read-only
// view; only the orchestrator appends, after a run completes.
package memory

import (
	"strings"
	"time"

	"github.com/Iron-Ham/workcrew/internal/errors"
)

const (
	maxKeyLen  = 200
	maxTextLen = 4000
)

// Entry is one learning.
type Entry struct {
	Key         string    `json:"key"`
	Text        string    `json:"text"`
	ExecutionID string    `json:"execution_id,omitempty"`
	TeamID      string    `json:"team_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reader is the read-only view handed to the builder. Learnings returns the
// newest limit entries for key in append order; limit <= 0 returns all.
type Reader interface {
	Learnings(key string, limit int) ([]Entry, error)
}

// Writer appends learnings.
type Writer interface {
	AppendLearning(e Entry) error
}

// ProjectKey is the key learnings of a project are filed under.
func ProjectKey(projectID string) string {
	return "project:" + projectID
}

// DomainKey is the key for learnings shared by every project in a domain.
// Runs file learnings under the categories of the workers that produced them.
func DomainKey(domain string) string {
	return "domain:" + domain
}

// Validate checks an entry before it is appended.
func Validate(e Entry) error {
	if strings.TrimSpace(e.Key) == "" || len(e.Key) > maxKeyLen {
		return errors.NewValidationError("learning key must be 1-200 bytes").WithField("key").WithValue(e.Key)
	}
	if strings.TrimSpace(e.Text) == "" {
		return errors.NewValidationError("learning text is required").WithField("text")
	}
	if len([]rune(e.Text)) > maxTextLen {
		return errors.NewValidationError("learning text exceeds 4000 characters").WithField("text")
	}
	return nil
}

// Tail returns the newest limit entries matching key, preserving order.
func Tail(entries []Entry, key string, limit int) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Key == key {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
