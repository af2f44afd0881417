// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/triage/internal/config"
	"github.com/xkilldash9x/triage/internal/engine"
	"github.com/xkilldash9x/triage/internal/observability"
	"github.com/xkilldash9x/triage/internal/reporting"
	"github.com/xkilldash9x/triage/internal/situation"
	"github.com/xkilldash9x/triage/internal/store"
	"github.com/xkilldash9x/triage/internal/worker"
)

type runOptions struct {
	format string
	output string
}

// runComponents holds everything a supervised run owns.
type runComponents struct {
	Source     situation.Source
	Supervisor *engine.Supervisor
	watcher    *situation.Watcher
	closeStore func()
}

// Shutdown stops the library watcher and releases the store.
func (rc *runComponents) Shutdown() {
	if rc.watcher != nil {
		rc.watcher.Stop()
	}
	if rc.closeStore != nil {
		rc.closeStore()
	}
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run JOB.yaml...",
		Short: "Runs jobs under supervision, fixing recognized failures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runJobs(cmd.Context(), cfg, observability.GetLogger(), args, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format (text, json)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write reports to a file instead of stdout")
	cmd.Flags().Int("retry-budget", 0, "fixed resubmissions allowed per job")
	cmd.Flags().String("work-dir", "", "parent directory of the per-job work directories")
	cmd.Flags().Bool("watch", false, "reload the situation library when its files change")
	cmd.Flags().String("store", "", "attempt store: none, sqlite or postgres")
	addLibraryFlags(cmd)
	configFlag(cmd, "retry-budget", "supervisor.retry_budget")
	configFlag(cmd, "work-dir", "supervisor.work_dir")
	configFlag(cmd, "watch", "library.watch")
	configFlag(cmd, "store", "store.type")
	return cmd
}

func runJobs(ctx context.Context, cfg config.Interface, logger *zap.Logger, paths []string, opts runOptions, stdout io.Writer) error {
	format, err := reporting.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	jobs := make([]*engine.Job, 0, len(paths))
	for _, p := range paths {
		j, err := engine.LoadJob(p)
		if err != nil {
			return err
		}
		jobs = append(jobs, j)
	}

	rc, err := initializeRunComponents(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize run components: %w", err)
	}
	defer rc.Shutdown()

	logger.Info("Supervising jobs.", zap.Int("jobs", len(jobs)), zap.Int("situations", rc.Source.Current().Len()))
	reports, runErr := rc.Supervisor.SuperviseAll(ctx, jobs)

	w := stdout
	if opts.output != "" {
		f, err := reporting.Open(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	done := make([]*engine.Report, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			done = append(done, r)
		}
	}
	if err := reporting.Write(w, format, done...); err != nil {
		return err
	}
	return runErr
}

// initializeRunComponents wires the library, store, worker and supervisor
// from the configuration. On error everything already opened is released.
func initializeRunComponents(ctx context.Context, cfg config.Interface, logger *zap.Logger) (_ *runComponents, err error) {
	rc := &runComponents{}
	defer func() {
		if err != nil {
			rc.Shutdown()
		}
	}()

	libCfg := cfg.Library()
	if libCfg.Watch {
		rc.watcher, err = situation.NewWatcher(libCfg.Paths, logger,
			situation.WithDebounce(libCfg.Debounce),
			situation.WithLibraryOptions(libraryOptions(libCfg)...),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load situation library: %w", err)
		}
		if err := rc.watcher.Start(ctx); err != nil {
			return nil, err
		}
		rc.Source = rc.watcher
	} else {
		lib, err := situation.Load(libCfg.Paths, libraryOptions(libCfg)...)
		if err != nil {
			return nil, fmt.Errorf("failed to load situation library: %w", err)
		}
		rc.Source = lib
	}

	recorder, closeStore, err := store.Open(ctx, cfg.Store(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open attempt store: %w", err)
	}
	rc.closeStore = closeStore

	wcfg := cfg.Worker()
	w := worker.NewShellWorker(logger, worker.WithShell(wcfg.Shell), worker.WithPolling(wcfg.PollFeed))

	scfg := cfg.Supervisor()
	rc.Supervisor, err = engine.New(rc.Source, w, logger,
		engine.WithThreshold(libCfg.Threshold),
		engine.WithRetryBudget(scfg.RetryBudget),
		engine.WithRetryInterval(scfg.RetryInterval),
		engine.WithLineageConcurrency(scfg.LineageConcurrency),
		engine.WithWorkDir(scfg.WorkDir),
		engine.WithRecorder(recorder),
	)
	if err != nil {
		return nil, err
	}
	return rc, nil
}
