package invoke

import (
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/workcrew/internal/errors"
)

// Policy is the fallback and backoff configuration of an Invoker.
type Policy struct {
	// Tiers is the fallback chain, highest capability first.
	Tiers []string
	// MaxRetries bounds the attempts made for one call.
	MaxRetries int
	// BaseDelay is the wait before the second attempt; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps a single wait.
	MaxDelay time.Duration
}

// DefaultPolicy returns a three-tier chain with three attempts.
func DefaultPolicy() Policy {
	return Policy{
		Tiers:      []string{"large", "medium", "small"},
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
	}
}

// Validate checks the policy.
func (p Policy) Validate() error {
	if len(p.Tiers) == 0 {
		return errors.NewValidationError("fallback chain is empty").WithField("tiers")
	}
	for i, t := range p.Tiers {
		if strings.TrimSpace(t) == "" {
			return errors.NewValidationError("tier name is empty").WithField("tiers").WithValue(i)
		}
		if slices.Index(p.Tiers, t) != i {
			return errors.NewValidationError("duplicate tier").WithField("tiers").WithValue(t)
		}
	}
	if p.MaxRetries < 1 {
		return errors.NewValidationError("max retries must be at least 1").WithField("max_retries").WithValue(p.MaxRetries)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return errors.NewValidationError("delays must be non-negative").WithField("base_delay")
	}
	return nil
}

// Delay returns the wait before attempt n (0-based): zero for the first
// attempt, then BaseDelay doubled per attempt, capped at MaxDelay.
func (p Policy) Delay(n int) time.Duration {
	if n <= 0 || p.BaseDelay <= 0 {
		return 0
	}
	shift := n - 1
	if shift > 30 {
		return p.capped(p.MaxDelay)
	}
	d := p.BaseDelay << shift
	if d < p.BaseDelay {
		return p.capped(p.MaxDelay)
	}
	return p.capped(d)
}

func (p Policy) capped(d time.Duration) time.Duration {
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Chain returns the tiers tried for a call. An override present in the
// chain starts the chain at that tier; an unknown override is tried first,
// followed by the full chain.
func (p Policy) Chain(override string) []string {
	if override == "" {
		return slices.Clone(p.Tiers)
	}
	if i := slices.Index(p.Tiers, override); i >= 0 {
		return slices.Clone(p.Tiers[i:])
	}
	return append([]string{override}, p.Tiers...)
}

// Attempts returns how many attempts a call with override may make.
func (p Policy) Attempts(override string) int {
	return min(p.MaxRetries, len(p.Chain(override)))
}
