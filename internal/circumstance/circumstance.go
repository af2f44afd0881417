// internal/circumstance/circumstance.go
package circumstance

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/xkilldash9x/triage/internal/infochannel"
	"github.com/xkilldash9x/triage/internal/jobspec"
)

var (
	// ErrIncompatibleChannel is returned when a circumstance is scored
	// against a channel whose type it cannot read. It is a programming error
	// and aborts the diagnosis.
	ErrIncompatibleChannel = errors.New("incompatible information channel")
	// ErrInvalidCondition is returned for malformed condition lines or
	// parameters.
	ErrInvalidCondition = errors.New("invalid condition")
	// ErrNoSpecification is returned when a directory component is scored
	// against a channel that carries no job specification tree. The channel
	// offers no evidence either way, so negation does not apply.
	ErrNoSpecification = errors.New("channel carries no job specification")
)

// Circumstance is one testable predicate over a single channel. The set of
// implementations is closed: MatchText, CountTextMatches and
// MatchDirComponent. Scoring goes through Score.
type Circumstance interface {
	// ChannelType is the channel class the predicate reads.
	ChannelType() infochannel.Type
	// String renders the predicate as a condition line accepted by Parse.
	String() string
	isCircumstance()
}

// Reader returns the lines of a channel. (*infochannel.Base).Read satisfies
// it and memoizes reads across circumstances.
type Reader func(infochannel.Channel) ([]string, error)

// Score evaluates c against ch. Scores are binary: 1.0 when the predicate
// holds, 0.0 otherwise, with negation applied as 1 - score. When read is nil
// the channel is opened directly. Errors from the channel are returned
// unchanged so callers can treat them as missing evidence.
func Score(c Circumstance, ch infochannel.Channel, read Reader) (float64, error) {
	if c == nil || ch == nil {
		return 0, fmt.Errorf("%w: nil circumstance or channel", ErrIncompatibleChannel)
	}
	if !infochannel.Compatible(c.ChannelType(), ch.Type()) {
		return 0, fmt.Errorf("%w: %q requires %s, got %s (%s)",
			ErrIncompatibleChannel, c.String(), c.ChannelType(), ch.Type(), ch.Describe())
	}
	if read == nil {
		read = func(ch infochannel.Channel) ([]string, error) { return ch.Open() }
	}

	switch c := c.(type) {
	case *MatchText:
		lines, err := read(ch)
		if err != nil {
			return 0, err
		}
		return apply(c.Negation, c.matches(lines)), nil
	case *CountTextMatches:
		lines, err := read(ch)
		if err != nil {
			return 0, err
		}
		return apply(c.Negation, c.Constraint.Satisfied(c.count(lines))), nil
	case *MatchDirComponent:
		ok, err := c.present(ch)
		if err != nil {
			return 0, err
		}
		return apply(c.Negation, ok), nil
	default:
		panic(fmt.Sprintf("circumstance: unhandled variant %T", c))
	}
}

func apply(negate, holds bool) float64 {
	score := 0.0
	if holds {
		score = 1.0
	}
	if negate {
		return 1.0 - score
	}
	return score
}

// -- Variants --

// MatchText holds when any line of the channel contains a match for Pattern.
// Matching is a search, not a whole-line match; anchor the pattern with ^ and
// $ to require the entire line.
type MatchText struct {
	Pattern  *regexp.Regexp
	Negation bool
	Channel  infochannel.Type
}

// NewMatchText compiles pattern once.
func NewMatchText(pattern string, channel infochannel.Type, negate bool) (*MatchText, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: bad pattern %q: %v", ErrInvalidCondition, pattern, err)
	}
	return &MatchText{Pattern: re, Negation: negate, Channel: channel}, nil
}

func (*MatchText) isCircumstance() {}

func (m *MatchText) ChannelType() infochannel.Type { return m.Channel }

func (m *MatchText) String() string {
	verb := verbMatches
	if m.Negation {
		verb = verbNoMatch
	}
	return fmt.Sprintf("%s %s %s", m.Channel, verb, m.Pattern.String())
}

func (m *MatchText) matches(lines []string) bool {
	for _, line := range lines {
		if m.Pattern.MatchString(line) {
			return true
		}
	}
	return false
}

// CountTextMatches holds when the number of lines matching Pattern satisfies
// Constraint.
type CountTextMatches struct {
	Pattern    *regexp.Regexp
	Constraint Constraint
	Negation   bool
	Channel    infochannel.Type
}

// NewCountTextMatches compiles pattern and validates the constraint.
func NewCountTextMatches(pattern string, constraint Constraint, channel infochannel.Type, negate bool) (*CountTextMatches, error) {
	if err := constraint.Validate(); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: bad pattern %q: %v", ErrInvalidCondition, pattern, err)
	}
	return &CountTextMatches{Pattern: re, Constraint: constraint, Negation: negate, Channel: channel}, nil
}

func (*CountTextMatches) isCircumstance() {}

func (c *CountTextMatches) ChannelType() infochannel.Type { return c.Channel }

func (c *CountTextMatches) String() string {
	s := fmt.Sprintf("%s %s %s %s", c.Channel, verbCount, quoteWord(c.Pattern.String()), c.Constraint)
	if c.Negation {
		s += " " + keywordNot
	}
	return s
}

func (c *CountTextMatches) count(lines []string) int {
	n := 0
	for _, line := range lines {
		if c.Pattern.MatchString(line) {
			n++
		}
	}
	return n
}

// MatchDirComponent holds when Address resolves in the job specification
// selected by StepOffset (0 is the current step) and, if Value is set, when
// an addressed node's rendered value equals it exactly.
type MatchDirComponent struct {
	Address    jobspec.Address
	Value      *string
	StepOffset int
	Negation   bool
	Channel    infochannel.Type
}

// NewMatchDirComponent validates the parameters. channel must be JOB_SPEC or
// ANY; the empty string defaults to JOB_SPEC.
func NewMatchDirComponent(addr jobspec.Address, value *string, stepOffset int, channel infochannel.Type, negate bool) (*MatchDirComponent, error) {
	if channel == "" {
		channel = infochannel.TypeJobSpec
	}
	if channel != infochannel.TypeJobSpec && channel != infochannel.TypeAny {
		return nil, fmt.Errorf("%w: directory components are read from %s, not %s", ErrInvalidCondition, infochannel.TypeJobSpec, channel)
	}
	if stepOffset < 0 {
		return nil, fmt.Errorf("%w: negative step offset %d", ErrInvalidCondition, stepOffset)
	}
	if len(addr) == 0 {
		return nil, fmt.Errorf("%w: empty specification address", ErrInvalidCondition)
	}
	return &MatchDirComponent{Address: addr, Value: value, StepOffset: stepOffset, Negation: negate, Channel: channel}, nil
}

func (*MatchDirComponent) isCircumstance() {}

func (m *MatchDirComponent) ChannelType() infochannel.Type { return m.Channel }

func (m *MatchDirComponent) String() string {
	verb := verbMatchDir
	if m.Negation {
		verb = verbNoMatchDir
	}
	s := fmt.Sprintf("%s %s %s", m.Channel, verb, m.Address)
	if m.StepOffset != 0 {
		s += fmt.Sprintf(" %s %d", keywordStep, m.StepOffset)
	}
	if m.Value != nil {
		s += fmt.Sprintf(" %s %s", keywordValue, quoteValue(*m.Value))
	}
	return s
}

// present resolves the address. Channels without a specification tree fail
// with ErrNoSpecification.
func (m *MatchDirComponent) present(ch infochannel.Channel) (bool, error) {
	var src *infochannel.JobSpecSource
	switch ch := ch.(type) {
	case *infochannel.JobSpecSource:
		src = ch
	case *infochannel.FileSource, *infochannel.EnvSource, *infochannel.TextSource:
		return false, fmt.Errorf("%w: %s", ErrNoSpecification, ch.Describe())
	default:
		panic(fmt.Sprintf("circumstance: unhandled channel variant %T", ch))
	}

	nodes := jobspec.Resolve(src.Step(m.StepOffset), m.Address)
	if len(nodes) == 0 {
		return false, nil
	}
	if m.Value == nil {
		return true, nil
	}
	for _, n := range nodes {
		if v, ok := n.Value(); ok && v == *m.Value {
			return true, nil
		}
	}
	return false, nil
}
