// Package backend defines the contract between workcrew and a language-model
// backend. Core logic depends only on the tri-state outcome of a call:
// success, a transient signal (rate limited or timed out), or any other
// error.
package backend

import (
	"context"
	stderrors "errors"
	"net/http"
	"unicode/utf8"

	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/model"
)

// Response is the generated text of one successful call.
type Response struct {
	Text  string
	Model string
	Usage model.Usage
}

// Backend executes one prompt at one capability tier. Implementations return
// an error built with RateLimited or Timeout for transient failures so that
// the invoker can fall back to a lower tier.
type Backend interface {
	Name() string
	Call(ctx context.Context, tier, prompt string) (Response, error)
}

// Func adapts a function to the Backend interface.
type Func func(ctx context.Context, tier, prompt string) (Response, error)

// Name implements Backend.
func (f Func) Name() string { return "func" }

// Call implements Backend.
func (f Func) Call(ctx context.Context, tier, prompt string) (Response, error) {
	return f(ctx, tier, prompt)
}

// RateLimited wraps cause as a transient rate-limit signal for tier.
func RateLimited(tier string, cause error) error {
	return errors.NewTransientBackendError(errors.TransientRateLimited, tier, cause)
}

// Timeout wraps cause as a transient timeout signal for tier.
func Timeout(tier string, cause error) error {
	return errors.NewTransientBackendError(errors.TransientTimeout, tier, cause)
}

// Classify maps a call error to an attempt outcome. A deadline exceeded by
// the per-call context counts as a timeout; context cancellation does not.
func Classify(err error) model.AttemptOutcome {
	if err == nil {
		return model.OutcomeSuccess
	}
	var transient *errors.TransientBackendError
	if errors.As(err, &transient) {
		if transient.Kind == errors.TransientRateLimited {
			return model.OutcomeRateLimited
		}
		return model.OutcomeTimeout
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return model.OutcomeTimeout
	}
	return model.OutcomeError
}

// FromStatus wraps an HTTP status from a provider API into the matching
// transient error, or returns cause unchanged when the status is not
// transient. 529 is Anthropic's overloaded status.
func FromStatus(tier string, status int, cause error) error {
	switch status {
	case http.StatusTooManyRequests:
		return RateLimited(tier, cause)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout, 529:
		return Timeout(tier, cause)
	}
	return cause
}

// EstimateTokens approximates the token count of s as one token per four
// characters, rounded up.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}
