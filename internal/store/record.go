// internal/store/record.go
package store

import (
	"context"
	"time"

	"github.com/xkilldash9x/triage/internal/situation"
)

// AttemptRecord is the audit row kept for every supervised attempt.
type AttemptRecord struct {
	LineageID string `json:"lineage_id"`
	Job       string `json:"job"`
	Ordinal   int    `json:"ordinal"`
	Status    string `json:"status"`
	ExitCode  int    `json:"exit_code"`
	// Situation is the matched situation, empty when nothing matched or the
	// attempt was not diagnosed.
	Situation string  `json:"situation,omitempty"`
	Score     float64 `json:"score"`
	Action    string  `json:"action,omitempty"`
	// Outcome is the lineage outcome when this attempt ended it, otherwise
	// the decision taken after it.
	Outcome     string                 `json:"outcome"`
	Evaluations []situation.Evaluation `json:"evaluations,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at"`
}

// Recorder persists attempt records.
type Recorder interface {
	RecordAttempt(ctx context.Context, rec AttemptRecord) error
}

// Nop discards every record.
type Nop struct{}

func (Nop) RecordAttempt(context.Context, AttemptRecord) error { return nil }

// pairRow flattens one pair score for the pair_scores table.
type pairRow struct {
	situation string
	index     int
	condition string
	channel   string
	score     float64
	evidence  string
}

func pairRows(evals []situation.Evaluation) []pairRow {
	var rows []pairRow
	for _, ev := range evals {
		for i, p := range ev.Pairs {
			rows = append(rows, pairRow{
				situation: ev.Situation,
				index:     i,
				condition: p.Condition,
				channel:   string(p.Channel),
				score:     p.Score,
				evidence:  p.Evidence,
			})
		}
	}
	return rows
}

// History reads back the attempts recorded for a lineage, in attempt order.
type History interface {
	AttemptsByLineage(ctx context.Context, lineageID string) ([]AttemptRecord, error)
}

var (
	_ History = (*Store)(nil)
	_ History = (*SQLiteStore)(nil)
)
