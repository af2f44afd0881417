// internal/action/action.go
package action

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/triage/internal/jobspec"
)

// ErrInvalidAction is returned for malformed action descriptions.
var ErrInvalidAction = errors.New("invalid action")

// Type is the corrective step an action requests.
type Type string

const (
	// Stop makes the failure final.
	Stop Type = "STOP"
	// RetryWithFix edits a clone of the specification and resubmits it.
	RetryWithFix Type = "RETRY_WITH_FIX"
	// Notify reports the diagnosis without touching the job. The failure is
	// still final.
	Notify Type = "NOTIFY"
)

// ParseType accepts the canonical names plus REDO as an alias of
// RETRY_WITH_FIX.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(Stop):
		return Stop, nil
	case string(RetryWithFix), "REDO", "RETRY":
		return RetryWithFix, nil
	case string(Notify):
		return Notify, nil
	default:
		return "", fmt.Errorf("%w: unknown action type %q", ErrInvalidAction, s)
	}
}

// Target selects which specification a retry starts from.
type Target string

const (
	// FocusJob edits the specification of the attempt that just failed.
	FocusJob Target = "FOCUS_JOB"
	// ParentJob edits the lineage's original specification, discarding fixes
	// applied by earlier retries.
	ParentJob Target = "PARENT_JOB"
)

// ParseTarget converts a name into a Target. The empty string means FOCUS_JOB.
func ParseTarget(s string) (Target, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(FocusJob):
		return FocusJob, nil
	case string(ParentJob):
		return ParentJob, nil
	default:
		return "", fmt.Errorf("%w: unknown action target %q", ErrInvalidAction, s)
	}
}

// Action is the corrective instruction attached to a situation.
type Action struct {
	Type    Type           `yaml:"type" json:"type"`
	Target  Target         `yaml:"target,omitempty" json:"target,omitempty"`
	Edits   []jobspec.Edit `yaml:"edits,omitempty" json:"edits,omitempty"`
	Archive []ArchiveRule  `yaml:"archive,omitempty" json:"archive,omitempty"`
	Message string         `yaml:"message,omitempty" json:"message,omitempty"`
}

// Normalize canonicalizes Type and Target and validates the payload.
func (a *Action) Normalize() error {
	typ, err := ParseType(string(a.Type))
	if err != nil {
		return err
	}
	target, err := ParseTarget(string(a.Target))
	if err != nil {
		return err
	}
	a.Type, a.Target = typ, target

	if typ != RetryWithFix && (len(a.Edits) > 0 || len(a.Archive) > 0) {
		return fmt.Errorf("%w: %s carries edits or archive rules, which only apply to %s", ErrInvalidAction, typ, RetryWithFix)
	}
	for i, e := range a.Edits {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: edit %d: %v", ErrInvalidAction, i, err)
		}
	}
	for i, r := range a.Archive {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%w: archive rule %d: %v", ErrInvalidAction, i, err)
		}
	}
	return nil
}

// NextSpec produces the specification of the next attempt by applying the
// edits to a clone of the targeted specification. Neither input is modified.
func (a Action) NextSpec(focus, parent *jobspec.Spec) (*jobspec.Spec, error) {
	if a.Type != RetryWithFix {
		return nil, fmt.Errorf("%w: %s does not produce a new attempt", ErrInvalidAction, a.Type)
	}
	base := focus
	if a.Target == ParentJob {
		base = parent
	}
	next, err := jobspec.Apply(base, a.Edits)
	if err != nil {
		return nil, fmt.Errorf("failed to apply fix for target %s: %w", a.Target, err)
	}
	return next, nil
}

func (a Action) String() string {
	s := string(a.Type)
	if a.Target != "" {
		s += "(" + string(a.Target) + ")"
	}
	if n := len(a.Edits); n > 0 {
		s += fmt.Sprintf(" with %d edit(s)", n)
	}
	return s
}
