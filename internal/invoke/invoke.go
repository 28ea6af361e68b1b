// Package invoke executes one worker call against a backend with a
// capability-tier fallback chain and bounded exponential backoff.
//
// A transient signal (rate limited or timed out) moves the call to the next
// lower tier after a backoff; any other error ends the call at once. Every
// attempt is recorded, and a call either returns a complete Result or an
// error carrying the full attempt history. The Invoker holds no per-call
// state, so identical requests behave identically across retries.
package invoke

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/workcrew/internal/backend"
	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/logging"
	"github.com/Iron-Ham/workcrew/internal/model"
)

// Request is one worker call.
type Request struct {
	WorkerID     string
	Prompt       string
	TierOverride string
	// Stop is the cooperative cancellation flag. Closing it aborts a pending
	// backoff; an in-flight backend call is left to finish.
	Stop <-chan struct{}
}

// Result is the output of a successful call.
type Result struct {
	WorkerID string
	Tier     string
	Text     string
	Usage    model.Usage
	Attempts []model.Attempt
}

// Observer is notified after every attempt. n is 1-based.
type Observer interface {
	OnAttempt(workerID string, n int, a model.Attempt)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(workerID string, n int, a model.Attempt)

// OnAttempt implements Observer.
func (f ObserverFunc) OnAttempt(workerID string, n int, a model.Attempt) { f(workerID, n, a) }

// AbortedError reports a call stopped by cancellation. It matches
// errors.ErrCanceled and keeps the attempts made so far.
type AbortedError struct {
	WorkerID string
	Attempts []model.Attempt
	Cause    error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("worker %s aborted after %d attempt(s): %v", e.WorkerID, len(e.Attempts), e.Cause)
}

func (e *AbortedError) Unwrap() error { return e.Cause }

// Is matches errors.ErrCanceled.
func (e *AbortedError) Is(target error) bool { return target == errors.ErrCanceled }

// AttemptsOf returns the attempt history carried by an invocation error.
func AttemptsOf(err error) []model.Attempt {
	var terminal *errors.TerminalWorkerError
	if errors.As(err, &terminal) {
		return terminal.Attempts
	}
	var aborted *AbortedError
	if errors.As(err, &aborted) {
		return aborted.Attempts
	}
	return nil
}

// Invoker runs worker calls. It is safe for concurrent use.
type Invoker struct {
	backend  backend.Backend
	policy   Policy
	observer Observer
	logger   *logging.Logger
	after    func(time.Duration) <-chan time.Time
	now      func() time.Time
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithObserver sets the attempt observer.
func WithObserver(o Observer) Option {
	return func(inv *Invoker) { inv.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(inv *Invoker) { inv.logger = logging.OrNop(l) }
}

// New creates an Invoker. The policy is validated up front.
func New(b backend.Backend, p Policy, opts ...Option) (*Invoker, error) {
	if b == nil {
		return nil, errors.NewValidationError("backend is required").WithField("backend")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	inv := &Invoker{
		backend: b,
		policy:  p,
		logger:  logging.NopLogger(),
		after:   time.After,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv, nil
}

// Policy returns the invoker's policy.
func (inv *Invoker) Policy() Policy { return inv.policy }

// Invoke executes req. On success it returns a Result whose last attempt is
// the successful one. Otherwise it returns *errors.TerminalWorkerError, or
// *AbortedError when cancellation was observed.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	chain := inv.policy.Chain(req.TierOverride)
	limit := min(inv.policy.MaxRetries, len(chain))
	logger := inv.logger.WithWorker(req.WorkerID)

	var (
		attempts []model.Attempt
		lastErr  error
	)
	for n := 0; n < limit; n++ {
		wait := inv.policy.Delay(n)
		if err := inv.pause(ctx, req.Stop, wait); err != nil {
			logger.Info("invocation aborted", "attempts", len(attempts))
			return nil, &AbortedError{WorkerID: req.WorkerID, Attempts: attempts, Cause: err}
		}

		tier := chain[n]
		start := inv.now()
		resp, err := inv.backend.Call(ctx, tier, req.Prompt)
		a := model.Attempt{
			Tier:       tier,
			WaitMillis: wait.Milliseconds(),
			Outcome:    backend.Classify(err),
			StartedAt:  start,
			Duration:   inv.now().Sub(start),
		}
		if err != nil {
			a.Error = err.Error()
		}
		attempts = append(attempts, a)
		if inv.observer != nil {
			inv.observer.OnAttempt(req.WorkerID, n+1, a)
		}

		if err == nil {
			logger.Debug("invocation succeeded", "tier", tier, "attempts", len(attempts))
			return &Result{
				WorkerID: req.WorkerID,
				Tier:     tier,
				Text:     resp.Text,
				Usage:    resp.Usage,
				Attempts: attempts,
			}, nil
		}

		if ctx.Err() != nil && a.Outcome != model.OutcomeTimeout {
			return nil, &AbortedError{WorkerID: req.WorkerID, Attempts: attempts, Cause: errors.Join(errors.ErrCanceled, ctx.Err())}
		}
		if !a.Outcome.IsTransient() {
			logger.Warn("invocation failed", "tier", tier, "error", err.Error())
			return nil, errors.NewTerminalWorkerError(req.WorkerID, attempts, err)
		}

		lastErr = err
		if n+1 < limit {
			logger.Warn("transient backend failure, falling back",
				"tier", tier, "outcome", string(a.Outcome), "next_tier", chain[n+1])
		}
	}

	logger.Error("fallback chain exhausted", "attempts", len(attempts))
	return nil, errors.NewTerminalWorkerError(req.WorkerID, attempts,
		fmt.Errorf("%w: %w", errors.ErrChainExhausted, lastErr))
}

// pause waits d unless stop closes or ctx ends first. Stop is checked even
// when d is zero so no attempt starts after cancellation was observed.
func (inv *Invoker) pause(ctx context.Context, stop <-chan struct{}, d time.Duration) error {
	select {
	case <-stop:
		return errors.ErrCanceled
	case <-ctx.Done():
		return errors.Join(errors.ErrCanceled, ctx.Err())
	default:
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-stop:
		return errors.ErrCanceled
	case <-ctx.Done():
		return errors.Join(errors.ErrCanceled, ctx.Err())
	case <-inv.after(d):
		return nil
	}
}
