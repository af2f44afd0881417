// File: cmd/diagnose.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/triage/internal/config"
	"github.com/xkilldash9x/triage/internal/engine"
	"github.com/xkilldash9x/triage/internal/infochannel"
	"github.com/xkilldash9x/triage/internal/jobspec"
	"github.com/xkilldash9x/triage/internal/observability"
	"github.com/xkilldash9x/triage/internal/reporting"
	"github.com/xkilldash9x/triage/internal/situation"
)

// errNoDiagnosis is returned when a one-shot diagnosis recognizes nothing.
var errNoDiagnosis = fmt.Errorf("%w: no situation reached the threshold", engine.ErrUnrecognizedFailure)

// diagnoseOptions holds the evidence flags of the diagnose command.
type diagnoseOptions struct {
	outputFiles []string
	feedFile    string
	inputFiles  []string
	specFiles   []string
	envFile     string
	processEnv  bool
	format      string
	output      string
}

func newDiagnoseCmd() *cobra.Command {
	var opts diagnoseOptions
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Diagnoses one failed run from its captured evidence",
		Long: `Scores every situation of the library against the given evidence and
prints the audit of the decision. Job specifications are given oldest first;
the last one is the specification of the failed run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runDiagnose(cmd.Context(), cfg, observability.GetLogger(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVarP(&opts.outputFiles, "log", "l", nil, "program output file (repeatable)")
	cmd.Flags().StringVar(&opts.feedFile, "feed", "", "file holding the live log feed")
	cmd.Flags().StringSliceVar(&opts.inputFiles, "input", nil, "program input file (repeatable)")
	cmd.Flags().StringSliceVar(&opts.specFiles, "spec", nil, "job specification file, oldest first (repeatable)")
	cmd.Flags().StringVar(&opts.envFile, "env-file", "", "environment snapshot as NAME=VALUE lines")
	cmd.Flags().BoolVar(&opts.processEnv, "process-env", false, "use the current process environment")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format (text, json)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the result to a file instead of stdout")
	addLibraryFlags(cmd)
	_ = cmd.MarkFlagRequired("log")
	return cmd
}

// addLibraryFlags binds the library location and threshold flags.
func addLibraryFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("library", "L", nil, "situation library directory or record file (repeatable)")
	cmd.Flags().Float64("threshold", 0, "minimum score for a situation to match, in (0, 1]")
	configFlag(cmd, "library", "library.paths")
	configFlag(cmd, "threshold", "library.threshold")
}

func runDiagnose(ctx context.Context, cfg config.Interface, logger *zap.Logger, opts diagnoseOptions, stdout io.Writer) error {
	format, err := reporting.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	libCfg := cfg.Library()
	lib, err := situation.Load(libCfg.Paths, libraryOptions(libCfg)...)
	if err != nil {
		return fmt.Errorf("failed to load situation library: %w", err)
	}
	logger.Debug("Loaded situation library.", zap.Int("situations", lib.Len()), zap.Strings("paths", libCfg.Paths))

	base, err := evidenceBase(opts)
	if err != nil {
		return err
	}

	d, err := lib.Diagnose(ctx, base, libCfg.Threshold)
	if err != nil {
		return fmt.Errorf("diagnosis failed: %w", err)
	}

	w := stdout
	if opts.output != "" {
		f, err := reporting.Open(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := reporting.WriteDiagnosis(w, format, d); err != nil {
		return err
	}

	if !d.Matched {
		return errNoDiagnosis
	}
	logger.Info("Situation recognized.", zap.String("situation", d.Name()), zap.Float64("score", d.Score))
	return nil
}

// evidenceBase assembles the channels named by the flags.
func evidenceBase(opts diagnoseOptions) (*infochannel.Base, error) {
	if len(opts.outputFiles) == 0 {
		return nil, errors.New("at least one --log file is required")
	}
	base := infochannel.NewBase()
	for _, p := range opts.outputFiles {
		base.Add(infochannel.NewFileSource(p, infochannel.TypeOutputFile))
	}
	if opts.feedFile != "" {
		base.Add(infochannel.NewFileSource(opts.feedFile, infochannel.TypeLogFeed))
	}
	for _, p := range opts.inputFiles {
		base.Add(infochannel.NewFileSource(p, infochannel.TypeInputFile))
	}
	if opts.envFile != "" {
		base.Add(infochannel.NewFileSource(opts.envFile, infochannel.TypeEnvironment))
	}
	if opts.processEnv {
		base.Add(infochannel.ProcessEnv())
	}
	if len(opts.specFiles) > 0 {
		specs := make([]*jobspec.Spec, 0, len(opts.specFiles))
		for _, p := range opts.specFiles {
			s, err := jobspec.LoadFile(p)
			if err != nil {
				return nil, err
			}
			specs = append(specs, s)
		}
		base.Add(infochannel.NewJobSpecSource(specs...))
	}
	return base, nil
}
