// internal/engine/report.go
package engine

import (
	"time"

	"github.com/xkilldash9x/triage/internal/action"
	"github.com/xkilldash9x/triage/internal/situation"
	"github.com/xkilldash9x/triage/internal/worker"
)

// Report is the audit trail of one lineage.
type Report struct {
	LineageID string  `json:"lineage_id"`
	Job       string  `json:"job"`
	Outcome   Outcome `json:"outcome"`
	// Situation is the diagnosis behind the final decision, if any.
	Situation     string          `json:"situation,omitempty"`
	Attempts      []AttemptReport `json:"attempts"`
	Notifications []Notification  `json:"notifications,omitempty"`
	// Evidence holds the tail of the raw output for unrecognized failures.
	Evidence   []string  `json:"evidence,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// AttemptReport records what happened to one attempt.
type AttemptReport struct {
	Ordinal    int                  `json:"ordinal"`
	Status     worker.Status        `json:"status"`
	ExitCode   int                  `json:"exit_code"`
	InputPath  string               `json:"input_path,omitempty"`
	OutputPath string               `json:"output_path,omitempty"`
	Diagnosis  *situation.Diagnosis `json:"diagnosis,omitempty"`
	Action     string               `json:"action,omitempty"`
	// Decision is DecisionRetry or the lineage outcome.
	Decision   string                `json:"decision"`
	ArchiveDir string                `json:"archive_dir,omitempty"`
	Archived   *action.ArchiveResult `json:"archived,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// Notification is a NOTIFY action raised by a diagnosis.
type Notification struct {
	Attempt   int    `json:"attempt"`
	Situation string `json:"situation"`
	Message   string `json:"message,omitempty"`
}

// Last returns the final attempt, or nil when none ran.
func (r *Report) Last() *AttemptReport {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}
