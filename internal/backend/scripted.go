package backend

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/workcrew/internal/model"
)

// Step is one scripted reply. A step matches a call when Tier is empty or
// equal to the call's tier and the prompt contains Contains. Each step is
// consumed once.
type Step struct {
	Tier     string
	Contains string
	Text     string
	Err      error
	// Delay blocks the call, honouring context cancellation.
	Delay time.Duration
}

// Call records one request received by a Scripted backend.
type Call struct {
	Tier   string
	Prompt string
	At     time.Time
}

// Scripted replays Steps in order and records every call. Calls that match
// no remaining step are answered by Echo. It is safe for concurrent use.
type Scripted struct {
	mu    sync.Mutex
	steps []Step
	used  []bool
	calls []Call
}

// NewScripted returns a backend replaying steps.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps, used: make([]bool, len(steps))}
}

// Name implements Backend.
func (s *Scripted) Name() string { return "scripted" }

// Call implements Backend.
func (s *Scripted) Call(ctx context.Context, tier, prompt string) (Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Tier: tier, Prompt: prompt, At: time.Now()})
	step, ok := s.next(tier, prompt)
	s.mu.Unlock()

	if !ok {
		return Echo{}.Call(ctx, tier, prompt)
	}
	if step.Delay > 0 {
		t := time.NewTimer(step.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return Response{}, ctx.Err()
		case <-t.C:
		}
	}
	if step.Err != nil {
		return Response{}, step.Err
	}
	return Response{Text: step.Text, Model: "scripted-" + tier, Usage: usageFor(prompt, step.Text)}, nil
}

func (s *Scripted) next(tier, prompt string) (Step, bool) {
	for i, st := range s.steps {
		if s.used[i] {
			continue
		}
		if st.Tier != "" && st.Tier != tier {
			continue
		}
		if st.Contains != "" && !strings.Contains(prompt, st.Contains) {
			continue
		}
		s.used[i] = true
		return st, true
	}
	return Step{}, false
}

// Calls returns a copy of the recorded calls in arrival order.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Tiers returns the tier of each recorded call in arrival order.
func (s *Scripted) Tiers() []string {
	calls := s.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Tier
	}
	return out
}

func usageFor(prompt, text string) model.Usage {
	return model.Usage{
		InputTokens:  int64(EstimateTokens(prompt)),
		OutputTokens: int64(EstimateTokens(text)),
	}
}
