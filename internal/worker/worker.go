// internal/worker/worker.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/triage/internal/infochannel"
	"github.com/xkilldash9x/triage/internal/jobspec"
)

// Environment variables exported to every attempt.
const (
	EnvInput   = "TRIAGE_INPUT"
	EnvAttempt = "TRIAGE_ATTEMPT"
	EnvLineage = "TRIAGE_LINEAGE"
)

// DefaultShell runs attempt commands when no shell is configured.
const DefaultShell = "/bin/sh"

// Status is the terminal state of one attempt.
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Attempt is one execution of a job in a lineage.
type Attempt struct {
	LineageID string
	Job       string
	// Ordinal counts attempts in the lineage from 1.
	Ordinal int
	Command string
	Spec    *jobspec.Spec
	Env     map[string]string
	WorkDir string
}

// InputName is the file the attempt's specification is written to.
func (a Attempt) InputName() string { return fmt.Sprintf("%s_%d.inp", a.Job, a.Ordinal) }

// LogName is the file the attempt's output is captured in.
func (a Attempt) LogName() string { return fmt.Sprintf("%s_%d.log", a.Job, a.Ordinal) }

// Result describes a finished attempt and where its evidence lives.
type Result struct {
	Status     Status
	ExitCode   int
	InputPath  string
	OutputPath string
	// Feed holds the complete lines tailed from the output while the process
	// ran.
	Feed []string
	// Env is the environment the process ran with, as NAME=VALUE entries.
	Env        []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Worker executes attempts. A non-nil error means the attempt could not be
// run at all; a process that ran and failed is reported through Result.
type Worker interface {
	Run(ctx context.Context, a Attempt) (*Result, error)
}

// ShellWorker runs an attempt's command through a shell in the attempt's
// work directory.
type ShellWorker struct {
	logger  *zap.Logger
	shell   string
	poll    bool
	baseEnv []string
}

// Option is a function that configures a ShellWorker.
type Option func(*ShellWorker)

// WithShell sets the shell binary. It is invoked as `<shell> -c <command>`.
func WithShell(path string) Option {
	return func(w *ShellWorker) {
		if path != "" {
			w.shell = path
		}
	}
}

// WithPolling makes the log feed poll the output file instead of relying on
// inotify.
func WithPolling(poll bool) Option {
	return func(w *ShellWorker) { w.poll = poll }
}

// WithBaseEnv replaces the inherited process environment.
func WithBaseEnv(env []string) Option {
	return func(w *ShellWorker) { w.baseEnv = append([]string{}, env...) }
}

// NewShellWorker initializes a worker that inherits the process environment.
func NewShellWorker(logger *zap.Logger, opts ...Option) *ShellWorker {
	w := &ShellWorker{
		logger:  logger.Named("shell-worker"),
		shell:   DefaultShell,
		poll:    true,
		baseEnv: os.Environ(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run writes the attempt input, executes the command and waits for it. The
// output file is tailed into the result feed until the process exits and the
// file is drained. Cancelling ctx kills the process.
func (w *ShellWorker) Run(ctx context.Context, a Attempt) (*Result, error) {
	if a.Command == "" {
		return nil, fmt.Errorf("attempt %s/%d has no command", a.Job, a.Ordinal)
	}
	dir, err := filepath.Abs(a.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work dir %q: %w", a.WorkDir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	res := &Result{
		InputPath:  filepath.Join(dir, a.InputName()),
		OutputPath: filepath.Join(dir, a.LogName()),
	}
	if err := writeInput(res.InputPath, a.Spec); err != nil {
		return nil, err
	}

	out, err := os.Create(res.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	logger := w.logger.With(
		zap.String("lineage_id", a.LineageID),
		zap.String("job", a.Job),
		zap.Int("attempt", a.Ordinal),
	)
	feed, err := startFeed(res.OutputPath, w.poll, logger)
	if err != nil {
		return nil, err
	}

	res.Env = w.environment(a, res.InputPath)
	cmd := exec.CommandContext(ctx, w.shell, "-c", a.Command)
	cmd.Dir = dir
	cmd.Env = res.Env
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = 5 * time.Second

	logger.Info("Starting attempt.", zap.String("command", a.Command), zap.String("dir", dir))
	res.StartedAt = time.Now()
	runErr := cmd.Run()
	res.FinishedAt = time.Now()
	res.Feed = feed.drain()

	switch {
	case ctx.Err() != nil:
		res.Status, res.ExitCode = StatusCancelled, -1
		logger.Warn("Attempt cancelled.", zap.Error(ctx.Err()))
	case runErr == nil:
		res.Status = StatusSucceeded
	default:
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("failed to run attempt %s/%d: %w", a.Job, a.Ordinal, runErr)
		}
		res.Status, res.ExitCode = StatusFailed, exitErr.ExitCode()
	}
	logger.Info("Attempt finished.",
		zap.String("status", string(res.Status)),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)),
		zap.Int("feed_lines", len(res.Feed)),
	)
	return res, nil
}

// environment layers the attempt variables over the base environment.
func (w *ShellWorker) environment(a Attempt, input string) []string {
	env := infochannel.EnvMap(w.baseEnv)
	for k, v := range a.Env {
		env[k] = v
	}
	env[EnvInput] = input
	env[EnvAttempt] = strconv.Itoa(a.Ordinal)
	env[EnvLineage] = a.LineageID
	return infochannel.SortedEnv(env)
}

func writeInput(path string, spec *jobspec.Spec) error {
	var b strings.Builder
	if spec != nil {
		for _, line := range jobspec.Lines(spec) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write input file: %w", err)
	}
	return nil
}
