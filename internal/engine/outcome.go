// internal/engine/outcome.go
package engine

import (
	"errors"
	"fmt"
)

// Outcome is how a lineage ended.
type Outcome string

const (
	OutcomeSucceeded            Outcome = "SUCCEEDED"
	OutcomeStopped              Outcome = "STOPPED"
	OutcomeRetryBudgetExhausted Outcome = "RETRY_BUDGET_EXHAUSTED"
	OutcomeNotified             Outcome = "NOTIFIED"
	OutcomeUnrecognized         Outcome = "UNRECOGNIZED_FAILURE"
	OutcomeCancelled            Outcome = "CANCELLED"
	// OutcomeError is a secondary failure of the supervision machinery.
	OutcomeError Outcome = "ERROR"
)

// DecisionRetry marks an attempt that was followed by a fixed attempt.
const DecisionRetry = "RETRY"

var (
	ErrStopped = errors.New("job stopped by diagnosis")
	// ErrRetryBudgetExhausted also matches ErrStopped.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
	ErrUnrecognizedFailure  = errors.New("unrecognized failure")
	ErrNotified             = errors.New("job failed with notification")
	ErrCancelled            = errors.New("job cancelled")
)

func (o Outcome) sentinels() []error {
	switch o {
	case OutcomeStopped:
		return []error{ErrStopped}
	case OutcomeRetryBudgetExhausted:
		return []error{ErrRetryBudgetExhausted, ErrStopped}
	case OutcomeNotified:
		return []error{ErrNotified}
	case OutcomeUnrecognized:
		return []error{ErrUnrecognizedFailure}
	case OutcomeCancelled:
		return []error{ErrCancelled}
	default:
		return nil
	}
}

// FailureError is returned for every lineage that did not succeed. It carries
// the full report and matches the outcome's sentinel with errors.Is.
type FailureError struct {
	Outcome Outcome
	Report  *Report
	// Err is the underlying cause for secondary failures, if any.
	Err error
}

func (e *FailureError) Error() string {
	msg := fmt.Sprintf("job %s (lineage %s): %s", e.Report.Job, e.Report.LineageID, e.Outcome)
	if e.Report.Situation != "" {
		msg += " by situation " + e.Report.Situation
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FailureError) Unwrap() []error {
	errs := e.Outcome.sentinels()
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
