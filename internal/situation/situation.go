// internal/situation/situation.go
package situation

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/triage/internal/action"
	"github.com/xkilldash9x/triage/internal/circumstance"
	"github.com/xkilldash9x/triage/internal/infochannel"
)

var (
	// ErrMalformedSituation is returned when a situation or library fails
	// its structural checks.
	ErrMalformedSituation = errors.New("malformed situation")
	// ErrDegenerateSituation is returned when a situation without any
	// circumstance would be selected as a diagnosis.
	ErrDegenerateSituation = errors.New("degenerate situation selected")
)

// Pair binds a circumstance to the channel class it is evaluated against.
type Pair struct {
	Circumstance circumstance.Circumstance
	Channel      infochannel.Type
}

// Situation is a named diagnosis: a set of circumstances that together
// identify a known outcome, and the actions to take when it is recognized.
// Situations are immutable once constructed.
type Situation struct {
	Name        string
	Description string
	// Source is the record file the situation was loaded from, if any.
	Source  string
	Pairs   []Pair
	Actions []action.Action
	Logic   string

	gate *logicGate
}

// Option configures a Situation during construction.
type Option func(*Situation)

func WithDescription(d string) Option { return func(s *Situation) { s.Description = d } }

func WithSource(path string) Option { return func(s *Situation) { s.Source = path } }

// WithLogic sets a boolean expression over v0..vN-1, where vI is true when
// pair I scores 1.0. When present it replaces mean aggregation.
func WithLogic(expr string) Option { return func(s *Situation) { s.Logic = expr } }

// New builds and validates a situation. A pair with an empty Channel takes the
// circumstance's own type.
func New(name string, pairs []Pair, actions []action.Action, opts ...Option) (*Situation, error) {
	s := &Situation{Name: name}
	for _, opt := range opts {
		opt(s)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrMalformedSituation)
	}

	s.Pairs = make([]Pair, len(pairs))
	for i, p := range pairs {
		if p.Circumstance == nil {
			return nil, fmt.Errorf("%w: %s: pair %d has no circumstance", ErrMalformedSituation, name, i)
		}
		if p.Channel == "" {
			p.Channel = p.Circumstance.ChannelType()
		}
		if !infochannel.Compatible(p.Channel, p.Circumstance.ChannelType()) {
			return nil, fmt.Errorf("%w: %s: pair %d requires %s but %q reads %s",
				ErrMalformedSituation, name, i, p.Channel, p.Circumstance, p.Circumstance.ChannelType())
		}
		s.Pairs[i] = p
	}

	s.Actions = make([]action.Action, len(actions))
	for i, a := range actions {
		if err := a.Normalize(); err != nil {
			return nil, fmt.Errorf("%w: %s: action %d: %v", ErrMalformedSituation, name, i, err)
		}
		s.Actions[i] = a
	}

	if s.Logic != "" {
		gate, err := compileLogic(s.Logic, len(s.Pairs))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedSituation, name, err)
		}
		s.gate = gate
	}
	return s, nil
}

// Degenerate reports whether the situation has no circumstances.
func (s *Situation) Degenerate() bool { return len(s.Pairs) == 0 }

// PairScore is the audit record of one pair's evaluation.
type PairScore struct {
	Condition string           `json:"condition"`
	Channel   infochannel.Type `json:"channel"`
	Score     float64          `json:"score"`
	// Evidence names the channel that produced the score, empty when no
	// compatible channel was readable.
	Evidence    string   `json:"evidence,omitempty"`
	Unavailable []string `json:"unavailable,omitempty"`
}

// Evaluation is a situation's score against one Base together with the
// per-pair scores behind it.
type Evaluation struct {
	Situation string      `json:"situation"`
	Score     float64     `json:"score"`
	Pairs     []PairScore `json:"pairs"`
	Logic     string      `json:"logic,omitempty"`
}

// Evaluate scores the situation. Each pair takes the best score over the
// compatible channels in base. Unreadable channels, and channels lacking the
// tree a directory predicate reads, contribute nothing; a pair without
// evidence scores 0. The aggregate is the mean of pair scores,
// or the logic expression's verdict when one is set. Only contract violations
// are returned as errors.
func (s *Situation) Evaluate(base *infochannel.Base) (Evaluation, error) {
	ev := Evaluation{Situation: s.Name, Pairs: make([]PairScore, len(s.Pairs)), Logic: s.Logic}

	sum := 0.0
	for i, p := range s.Pairs {
		ps := PairScore{Condition: p.Circumstance.String(), Channel: p.Channel}
		for _, ch := range base.Compatible(p.Channel) {
			if !infochannel.Compatible(p.Circumstance.ChannelType(), ch.Type()) {
				continue
			}
			score, err := circumstance.Score(p.Circumstance, ch, base.Read)
			if err != nil {
				if errors.Is(err, circumstance.ErrIncompatibleChannel) {
					return Evaluation{}, fmt.Errorf("situation %s: %w", s.Name, err)
				}
				if errors.Is(err, circumstance.ErrNoSpecification) {
					continue
				}
				ps.Unavailable = append(ps.Unavailable, ch.Describe())
				continue
			}
			if ps.Evidence == "" || score > ps.Score {
				ps.Score, ps.Evidence = score, ch.Describe()
			}
			if ps.Score == 1.0 {
				break
			}
		}
		ev.Pairs[i] = ps
		sum += ps.Score
	}

	switch {
	case s.gate != nil:
		flags := make([]bool, len(ev.Pairs))
		for i, ps := range ev.Pairs {
			flags[i] = ps.Score == 1.0
		}
		ok, err := s.gate.eval(flags)
		if err != nil {
			return Evaluation{}, fmt.Errorf("situation %s: %w", s.Name, err)
		}
		if ok {
			ev.Score = 1.0
		}
	case len(s.Pairs) > 0:
		ev.Score = sum / float64(len(s.Pairs))
	}
	return ev, nil
}
