// internal/engine/supervisor.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/triage/internal/action"
	"github.com/xkilldash9x/triage/internal/infochannel"
	"github.com/xkilldash9x/triage/internal/jobspec"
	"github.com/xkilldash9x/triage/internal/situation"
	"github.com/xkilldash9x/triage/internal/store"
	"github.com/xkilldash9x/triage/internal/worker"
)

const (
	// DefaultRetryBudget is the number of fixed resubmissions a lineage may make.
	DefaultRetryBudget = 2
	// DefaultEvidenceTail is how many output lines an unrecognized failure keeps.
	DefaultEvidenceTail = 40
	// FeedChannelName names the LOG_FEED channel in audit records.
	FeedChannelName = "log-feed"

	recordTimeout = 30 * time.Second
)

// Supervisor runs jobs, diagnoses their failures against a situation library,
// and applies the matched corrective action until the job succeeds or a final
// decision is reached.
type Supervisor struct {
	library  situation.Source
	worker   worker.Worker
	recorder store.Recorder
	logger   *zap.Logger

	threshold     float64
	retryBudget   int
	retryInterval time.Duration
	concurrency   int
	workDir       string
	evidenceTail  int
	newID         func() string
}

// Option is a function that configures a Supervisor.
type Option func(*Supervisor)

// WithThreshold sets the minimum score for a diagnosis to match.
func WithThreshold(t float64) Option {
	return func(s *Supervisor) { s.threshold = t }
}

// WithRetryBudget sets the default number of fixed resubmissions per lineage.
func WithRetryBudget(n int) Option {
	return func(s *Supervisor) { s.retryBudget = n }
}

// WithRetryInterval sets the minimum spacing between attempts of a lineage.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.retryInterval = d }
}

// WithRecorder persists every attempt.
func WithRecorder(r store.Recorder) Option {
	return func(s *Supervisor) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLineageConcurrency bounds the lineages SuperviseAll runs at once.
func WithLineageConcurrency(n int) Option {
	return func(s *Supervisor) { s.concurrency = n }
}

// WithWorkDir sets the parent of the per-lineage work directories.
func WithWorkDir(dir string) Option {
	return func(s *Supervisor) { s.workDir = dir }
}

// WithEvidenceTail sets how many output lines an unrecognized failure keeps.
func WithEvidenceTail(n int) Option {
	return func(s *Supervisor) { s.evidenceTail = n }
}

// New creates a supervisor. The library is consulted once per diagnosis, so a
// reloading source takes effect between attempts.
func New(library situation.Source, w worker.Worker, logger *zap.Logger, opts ...Option) (*Supervisor, error) {
	if library == nil {
		return nil, fmt.Errorf("situation library cannot be nil")
	}
	if w == nil {
		return nil, fmt.Errorf("worker cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &Supervisor{
		library:      library,
		worker:       w,
		recorder:     store.Nop{},
		logger:       logger.With(zap.String("component", "supervisor")),
		threshold:    situation.DefaultThreshold,
		retryBudget:  DefaultRetryBudget,
		concurrency:  4,
		workDir:      ".",
		evidenceTail: DefaultEvidenceTail,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := situation.ValidateThreshold(s.threshold); err != nil {
		return nil, err
	}
	if s.retryBudget < 0 {
		return nil, fmt.Errorf("retry budget cannot be negative: %d", s.retryBudget)
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s, nil
}

// -- Lineage state --

// attempt is one entry of the lineage arena.
type attempt struct {
	ordinal int
	spec    *jobspec.Spec
	result  *worker.Result
}

type lineage struct {
	id       string
	job      *Job
	dir      string
	budget   int
	attempts []*attempt
	report   *Report
	logger   *zap.Logger
}

func (l *lineage) root() *attempt { return l.attempts[0] }

// specs lists every specification of the lineage, oldest first.
func (l *lineage) specs() []*jobspec.Spec {
	out := make([]*jobspec.Spec, len(l.attempts))
	for i, at := range l.attempts {
		out[i] = at.spec
	}
	return out
}

func (s *Supervisor) newLineage(job *Job) *lineage {
	id := s.newID()
	dir := job.WorkDir
	if dir == "" {
		dir = filepath.Join(s.workDir, job.Name+"-"+id)
	}
	budget := s.retryBudget
	if job.RetryBudget != nil {
		budget = *job.RetryBudget
	}
	return &lineage{
		id:     id,
		job:    job,
		dir:    dir,
		budget: budget,
		report: &Report{LineageID: id, Job: job.Name, StartedAt: time.Now()},
		logger: s.logger.With(zap.String("job", job.Name), zap.String("lineage_id", id)),
	}
}

// -- Supervision --

// Supervise runs a lineage to completion. The report is always returned once
// the job is valid; a non-nil error is a *FailureError for every outcome other
// than success.
func (s *Supervisor) Supervise(ctx context.Context, job *Job) (*Report, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	lin := s.newLineage(job)
	lin.logger.Info("Supervising job.", zap.Int("retry_budget", lin.budget), zap.String("work_dir", lin.dir))

	limit := rate.Inf
	if s.retryInterval > 0 {
		limit = rate.Every(s.retryInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	spec := job.rootSpec()
	for ordinal := 1; ; ordinal++ {
		if err := limiter.Wait(ctx); err != nil {
			return s.finish(lin, OutcomeCancelled, err)
		}

		at := &attempt{ordinal: ordinal, spec: spec}
		lin.attempts = append(lin.attempts, at)
		res, err := s.worker.Run(ctx, worker.Attempt{
			LineageID: lin.id,
			Job:       job.Name,
			Ordinal:   ordinal,
			Command:   job.Command,
			Spec:      spec,
			Env:       job.Env,
			WorkDir:   lin.dir,
		})
		if err != nil {
			ar := AttemptReport{Ordinal: ordinal, Decision: string(OutcomeError)}
			lin.report.Attempts = append(lin.report.Attempts, ar)
			s.record(lin, ar)
			return s.finish(lin, OutcomeError, fmt.Errorf("attempt %d could not run: %w", ordinal, err))
		}
		at.result = res

		next, outcome, err := s.step(ctx, lin, at)
		if outcome != "" || err != nil {
			if outcome == "" {
				outcome = OutcomeError
			}
			return s.finish(lin, outcome, err)
		}
		spec = next
	}
}

// step handles a finished attempt. It returns the next specification when the
// lineage continues, or the final outcome.
func (s *Supervisor) step(ctx context.Context, lin *lineage, at *attempt) (*jobspec.Spec, Outcome, error) {
	res := at.result
	ar := AttemptReport{
		Ordinal:    at.ordinal,
		Status:     res.Status,
		ExitCode:   res.ExitCode,
		InputPath:  res.InputPath,
		OutputPath: res.OutputPath,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	conclude := func(outcome Outcome) {
		ar.Decision = string(outcome)
		lin.report.Attempts = append(lin.report.Attempts, ar)
		s.record(lin, ar)
	}

	switch res.Status {
	case worker.StatusSucceeded:
		conclude(OutcomeSucceeded)
		return nil, OutcomeSucceeded, nil
	case worker.StatusCancelled:
		conclude(OutcomeCancelled)
		return nil, OutcomeCancelled, ctx.Err()
	case worker.StatusFailed:
	default:
		conclude(OutcomeError)
		return nil, OutcomeError, fmt.Errorf("worker reported unknown status %q", res.Status)
	}

	base, err := s.evidence(lin, at)
	if err != nil {
		conclude(OutcomeError)
		return nil, OutcomeError, err
	}
	diag, err := s.library.Current().Diagnose(ctx, base, s.threshold)
	if err != nil {
		if ctx.Err() != nil {
			conclude(OutcomeCancelled)
			return nil, OutcomeCancelled, ctx.Err()
		}
		conclude(OutcomeError)
		return nil, OutcomeError, fmt.Errorf("diagnosis of attempt %d failed: %w", at.ordinal, err)
	}
	ar.Diagnosis = diag

	if !diag.Matched {
		best, _ := diag.BestEvaluation()
		lin.logger.Warn("Failure not recognized.",
			zap.Int("attempt", at.ordinal),
			zap.String("best", best.Situation),
			zap.Float64("score", diag.Score),
		)
		lin.report.Evidence = s.rawEvidence(base, res)
		conclude(OutcomeUnrecognized)
		return nil, OutcomeUnrecognized, nil
	}

	sit := diag.Situation
	lin.report.Situation = sit.Name
	lin.logger.Info("Failure diagnosed.", zap.Int("attempt", at.ordinal), zap.String("situation", sit.Name))

	decisive, notes := decide(sit.Actions)
	for _, n := range notes {
		lin.report.Notifications = append(lin.report.Notifications, Notification{
			Attempt:   at.ordinal,
			Situation: sit.Name,
			Message:   n.Message,
		})
		lin.logger.Warn("Situation notification.", zap.String("situation", sit.Name), zap.String("message", n.Message))
	}
	if decisive == nil {
		ar.Action = string(action.Notify)
		conclude(OutcomeNotified)
		return nil, OutcomeNotified, nil
	}
	ar.Action = decisive.String()

	if decisive.Type == action.Stop {
		conclude(OutcomeStopped)
		return nil, OutcomeStopped, nil
	}

	if used := at.ordinal - 1; used >= lin.budget {
		lin.logger.Warn("Retry budget exhausted.", zap.Int("retries", used), zap.Int("budget", lin.budget))
		conclude(OutcomeRetryBudgetExhausted)
		return nil, OutcomeRetryBudgetExhausted, nil
	}

	if len(decisive.Archive) > 0 {
		ar.ArchiveDir = filepath.Join(lin.dir, fmt.Sprintf("attempt_%s_%d", lin.id, at.ordinal))
		archived, err := action.Archive(lin.dir, ar.ArchiveDir, decisive.Archive)
		if err != nil {
			conclude(OutcomeError)
			return nil, OutcomeError, fmt.Errorf("failed to archive attempt %d: %w", at.ordinal, err)
		}
		ar.Archived = &archived
	}
	next, err := decisive.NextSpec(at.spec, lin.root().spec)
	if err != nil {
		conclude(OutcomeError)
		return nil, OutcomeError, err
	}

	conclude(Outcome(DecisionRetry))
	lin.logger.Info("Resubmitting with fix.", zap.Int("next_attempt", at.ordinal+1), zap.String("action", ar.Action))
	return next, "", nil
}

// decide returns the first action that is not a notification, plus every
// notification declared before or after it.
func decide(actions []action.Action) (*action.Action, []action.Action) {
	var decisive *action.Action
	var notes []action.Action
	for i := range actions {
		a := actions[i]
		if a.Type == action.Notify {
			notes = append(notes, a)
			continue
		}
		if decisive == nil {
			decisive = &a
		}
	}
	return decisive, notes
}

// evidence builds the information base for a failed attempt.
func (s *Supervisor) evidence(lin *lineage, at *attempt) (*infochannel.Base, error) {
	res := at.result
	base := infochannel.NewBase(
		infochannel.NewFileSource(res.OutputPath, infochannel.TypeOutputFile),
		infochannel.NewTextSource(FeedChannelName, res.Feed, infochannel.TypeLogFeed),
		infochannel.NewEnvSource(res.Env),
		infochannel.NewJobSpecSource(lin.specs()...),
	)
	if res.InputPath != "" {
		base.Add(infochannel.NewFileSource(res.InputPath, infochannel.TypeInputFile))
	}

	dir := filepath.Dir(res.OutputPath)
	extra := []struct {
		patterns []string
		typ      infochannel.Type
	}{
		{lin.job.OutputFiles, infochannel.TypeOutputFile},
		{lin.job.InputFiles, infochannel.TypeInputFile},
	}
	for _, e := range extra {
		for _, pattern := range e.patterns {
			if !filepath.IsAbs(pattern) {
				pattern = filepath.Join(dir, pattern)
			}
			matches, err := filepath.Glob(pattern)
			if err != nil {
				return nil, fmt.Errorf("bad evidence pattern %q: %w", pattern, err)
			}
			if len(matches) == 0 {
				// Kept so the audit shows the declared file was missing.
				base.Add(infochannel.NewFileSource(pattern, e.typ))
			}
			for _, m := range matches {
				base.Add(infochannel.NewFileSource(m, e.typ))
			}
		}
	}
	return base, nil
}

// rawEvidence returns the tail of the captured output, or of the feed when
// the output file cannot be read.
func (s *Supervisor) rawEvidence(base *infochannel.Base, res *worker.Result) []string {
	lines := res.Feed
	for _, ch := range base.OfType(infochannel.TypeOutputFile) {
		if ch.Describe() != "file:"+res.OutputPath {
			continue
		}
		if read, err := base.Read(ch); err == nil {
			lines = read
		}
		break
	}
	if s.evidenceTail > 0 && len(lines) > s.evidenceTail {
		lines = lines[len(lines)-s.evidenceTail:]
	}
	return append([]string(nil), lines...)
}

// record persists an attempt. Storage failures are logged and do not change
// the lineage outcome.
func (s *Supervisor) record(lin *lineage, ar AttemptReport) {
	rec := store.AttemptRecord{
		LineageID:  lin.id,
		Job:        lin.job.Name,
		Ordinal:    ar.Ordinal,
		Status:     string(ar.Status),
		ExitCode:   ar.ExitCode,
		Action:     ar.Action,
		Outcome:    ar.Decision,
		StartedAt:  ar.StartedAt,
		FinishedAt: ar.FinishedAt,
	}
	if d := ar.Diagnosis; d != nil {
		rec.Situation = d.Name()
		rec.Score = d.Score
		rec.Evaluations = d.Evaluations
	}

	// The lineage context may already be cancelled; the audit row is still wanted.
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.recorder.RecordAttempt(ctx, rec); err != nil {
		lin.logger.Error("Failed to record attempt.", zap.Int("attempt", ar.Ordinal), zap.Error(err))
	}
}

func (s *Supervisor) finish(lin *lineage, outcome Outcome, cause error) (*Report, error) {
	r := lin.report
	r.Outcome = outcome
	r.FinishedAt = time.Now()
	if outcome == OutcomeCancelled && cause == nil {
		cause = context.Canceled
	}
	if cause != nil {
		r.Error = cause.Error()
	}

	fields := []zap.Field{
		zap.String("outcome", string(outcome)),
		zap.Int("attempts", len(r.Attempts)),
		zap.String("situation", r.Situation),
	}
	if outcome == OutcomeSucceeded {
		lin.logger.Info("Job succeeded.", fields...)
		return r, nil
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	lin.logger.Warn("Job did not succeed.", fields...)
	return r, &FailureError{Outcome: outcome, Report: r, Err: cause}
}

// SuperviseAll runs independent lineages concurrently. Reports are returned in
// job order; failed lineages are joined into the error and never cancel their
// siblings.
func (s *Supervisor) SuperviseAll(ctx context.Context, jobs []*Job) ([]*Report, error) {
	reports := make([]*Report, len(jobs))
	errs := make([]error, len(jobs))

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			reports[i], errs[i] = s.Supervise(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(errs...)
}
