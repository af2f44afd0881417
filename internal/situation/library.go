// internal/situation/library.go
package situation

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/triage/internal/infochannel"
	"golang.org/x/sync/errgroup"
)

// DefaultThreshold accepts only situations whose every circumstance holds.
const DefaultThreshold = 1.0

// ErrInvalidThreshold is returned for thresholds outside (0, 1].
var ErrInvalidThreshold = errors.New("acceptance threshold must be in (0, 1]")

// DefaultSuppliedTypes are the channel classes the supervisor provides for
// every failed attempt.
var DefaultSuppliedTypes = []infochannel.Type{
	infochannel.TypeOutputFile,
	infochannel.TypeLogFeed,
	infochannel.TypeEnvironment,
	infochannel.TypeJobSpec,
}

// Source provides the library to use for the next diagnosis. A Library is its
// own Source; a Watcher swaps in reloaded libraries.
type Source interface {
	Current() *Library
}

// Library is an ordered, immutable collection of situations. Declaration
// order breaks ties between equal scores.
type Library struct {
	situations  []*Situation
	byName      map[string]*Situation
	supplied    []infochannel.Type
	concurrency int
}

// LibraryOption configures a Library.
type LibraryOption func(*Library)

// WithSuppliedTypes overrides the channel classes situations may require.
func WithSuppliedTypes(types ...infochannel.Type) LibraryOption {
	return func(l *Library) { l.supplied = append([]infochannel.Type{}, types...) }
}

// WithConcurrency bounds how many situations are scored in parallel.
func WithConcurrency(n int) LibraryOption {
	return func(l *Library) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// NewLibrary validates and freezes the given situations in order.
func NewLibrary(situations []*Situation, opts ...LibraryOption) (*Library, error) {
	l := &Library{
		byName:      make(map[string]*Situation, len(situations)),
		supplied:    DefaultSuppliedTypes,
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.situations = make([]*Situation, 0, len(situations))
	for _, s := range situations {
		if s == nil {
			return nil, fmt.Errorf("%w: nil situation", ErrMalformedSituation)
		}
		if prev, dup := l.byName[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q (%s and %s)", ErrMalformedSituation, s.Name, prev.Source, s.Source)
		}
		for i, p := range s.Pairs {
			if !l.isSupplied(p.Channel) {
				return nil, fmt.Errorf("%w: %s: pair %d requires %s, which is never supplied", ErrMalformedSituation, s.Name, i, p.Channel)
			}
		}
		l.byName[s.Name] = s
		l.situations = append(l.situations, s)
	}
	return l, nil
}

func (l *Library) isSupplied(t infochannel.Type) bool {
	if t == infochannel.TypeAny {
		return true
	}
	for _, s := range l.supplied {
		if s == t {
			return true
		}
	}
	return false
}

// Current implements Source.
func (l *Library) Current() *Library { return l }

// Len returns the number of situations.
func (l *Library) Len() int { return len(l.situations) }

// Situations returns the situations in declaration order.
func (l *Library) Situations() []*Situation {
	return append([]*Situation{}, l.situations...)
}

// Lookup finds a situation by name.
func (l *Library) Lookup(name string) (*Situation, bool) {
	s, ok := l.byName[name]
	return s, ok
}

// Evaluate scores every situation against base, in parallel, and returns the
// evaluations in declaration order.
func (l *Library) Evaluate(ctx context.Context, base *infochannel.Base) ([]Evaluation, error) {
	results := make([]Evaluation, len(l.situations))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, s := range l.situations {
		i, s := i, s
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ev, err := s.Evaluate(base)
			if err != nil {
				return err
			}
			results[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Diagnosis is the outcome of a library query.
type Diagnosis struct {
	// Matched is true when the best situation met the threshold.
	Matched bool `json:"matched"`
	// Situation is the matched situation, nil when Matched is false.
	Situation *Situation `json:"-"`
	// Best is the index of the highest scoring evaluation, -1 for an empty
	// library.
	Best        int          `json:"best"`
	Score       float64      `json:"score"`
	Threshold   float64      `json:"threshold"`
	Evaluations []Evaluation `json:"evaluations"`
}

// Name returns the matched situation's name, or the empty string.
func (d *Diagnosis) Name() string {
	if d == nil || d.Situation == nil {
		return ""
	}
	return d.Situation.Name
}

// BestEvaluation returns the top evaluation even when it missed the threshold.
func (d *Diagnosis) BestEvaluation() (Evaluation, bool) {
	if d == nil || d.Best < 0 || d.Best >= len(d.Evaluations) {
		return Evaluation{}, false
	}
	return d.Evaluations[d.Best], true
}

// ValidateThreshold checks that t lies in (0, 1].
func ValidateThreshold(t float64) error {
	if !(t > 0 && t <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, t)
	}
	return nil
}

// Diagnose selects the strictly highest scoring situation, first declared on
// ties, and reports it as matched when its score is at least threshold. A
// score below the threshold is "no diagnosis", never a weak match.
func (l *Library) Diagnose(ctx context.Context, base *infochannel.Base, threshold float64) (*Diagnosis, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	evals, err := l.Evaluate(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate situations: %w", err)
	}

	d := &Diagnosis{Best: -1, Threshold: threshold, Evaluations: evals}
	for i, ev := range evals {
		if d.Best < 0 || ev.Score > d.Score {
			d.Best, d.Score = i, ev.Score
		}
	}
	if d.Best < 0 || d.Score < threshold {
		return d, nil
	}

	winner := l.situations[d.Best]
	if winner.Degenerate() {
		return nil, fmt.Errorf("%w: %s", ErrDegenerateSituation, winner.Name)
	}
	d.Matched, d.Situation = true, winner
	return d, nil
}
