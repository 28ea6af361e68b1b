package store

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/model"
	"github.com/Iron-Ham/workcrew/internal/registry"
)

// Bounds enforced on free text at write time.
const (
	MaxNameLength        = 120
	MaxDescriptionLength = 2000
	MaxPromptLength      = 8000
	MaxTaskLength        = 20000
	MaxTierLength        = 64
)

// ValidateName checks a project or team name: non-empty after trimming, at
// most MaxNameLength characters, valid UTF-8 and free of control characters.
func ValidateName(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewValidationError(field + " is required").WithField(field)
	}
	if !utf8.ValidString(name) {
		return errors.NewValidationError(field + " is not valid UTF-8").WithField(field)
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return errors.NewValidationError(field + " is too long").WithField(field).WithValue(n)
	}
	if hasControl(name, false) {
		return errors.NewValidationError(field + " contains control characters").WithField(field)
	}
	return nil
}

// ValidateText checks optional multi-line free text against max characters.
// Newlines and tabs are allowed; other control characters are not.
func ValidateText(field, text string, max int) error {
	if !utf8.ValidString(text) {
		return errors.NewValidationError(field + " is not valid UTF-8").WithField(field)
	}
	if n := utf8.RuneCountInString(text); n > max {
		return errors.NewValidationError(field + " is too long").WithField(field).WithValue(n)
	}
	if hasControl(text, true) {
		return errors.NewValidationError(field + " contains control characters").WithField(field)
	}
	return nil
}

func hasControl(s string, allowWhitespace bool) bool {
	for _, r := range s {
		if allowWhitespace && (r == '\n' || r == '\t' || r == '\r') {
			continue
		}
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

// TeamSpec is the mutable definition of a team.
type TeamSpec struct {
	Name              string
	Description       string
	CheckpointEnabled bool
	FailurePolicy     model.FailurePolicy
	Members           []model.TeamMember
}

func (s TeamSpec) normalized() TeamSpec {
	s.Name = strings.TrimSpace(s.Name)
	if s.FailurePolicy == "" {
		s.FailurePolicy = model.FailureFatal
	}
	s.Members = append([]model.TeamMember(nil), s.Members...)
	return s
}

// ValidateTeamSpec checks a team definition, including its worker
// assignments against reg when reg is non-nil.
func ValidateTeamSpec(s TeamSpec, reg *registry.Registry) error {
	return validateTeamSpec(s.normalized(), reg)
}

func validateTeamSpec(s TeamSpec, reg *registry.Registry) error {
	if err := ValidateName("team name", s.Name); err != nil {
		return err
	}
	if err := ValidateText("team description", s.Description, MaxDescriptionLength); err != nil {
		return err
	}
	if !s.FailurePolicy.IsValid() {
		return errors.NewValidationError("unknown failure policy").WithField("failure_policy").WithValue(string(s.FailurePolicy))
	}
	return validateMembers(s.Members, reg)
}

func validateMembers(members []model.TeamMember, reg *registry.Registry) error {
	seen := make(map[string]bool, len(members))
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if strings.TrimSpace(m.WorkerID) == "" {
			return errors.NewValidationError("worker id is required").WithField("worker_id")
		}
		if seen[m.WorkerID] {
			return errors.NewValidationError("worker assigned more than once").WithField("worker_id").WithValue(m.WorkerID)
		}
		seen[m.WorkerID] = true
		ids = append(ids, m.WorkerID)

		if m.Priority < 0 {
			return errors.NewValidationError("priority must be non-negative").WithField("priority").WithValue(m.Priority)
		}
		if err := ValidateText("custom prompt", m.CustomPrompt, MaxPromptLength); err != nil {
			return err
		}
		if len(m.ModelTier) > MaxTierLength || hasControl(m.ModelTier, false) {
			return errors.NewValidationError("invalid model tier").WithField("model_tier").WithValue(m.ModelTier)
		}
	}
	if reg != nil {
		return reg.Require(ids...)
	}
	return nil
}
