// File: cmd/library.go
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/triage/internal/config"
	"github.com/xkilldash9x/triage/internal/situation"
)

func newLibraryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Inspects situation libraries",
	}

	validateCmd := &cobra.Command{
		Use:   "validate [PATH...]",
		Short: "Loads every record and reports the first malformed one",
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := loadLibraryFromArgs(cmd, args)
			if err != nil {
				return err
			}
			cmd.Printf("OK: %d situation(s)\n", lib.Len())
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list [PATH...]",
		Short: "Lists the situations of a library in declaration order",
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := loadLibraryFromArgs(cmd, args)
			if err != nil {
				return err
			}
			return writeLibrary(cmd.OutOrStdout(), lib)
		},
	}

	for _, c := range []*cobra.Command{validateCmd, listCmd} {
		addLibraryFlags(c)
		cmd.AddCommand(c)
	}
	return cmd
}

// loadLibraryFromArgs loads the positional paths, falling back to the
// configured library paths.
func loadLibraryFromArgs(cmd *cobra.Command, args []string) (*situation.Library, error) {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return nil, err
	}
	libCfg := cfg.Library()
	if len(args) > 0 {
		libCfg.Paths = args
	}
	return loadLibrary(libCfg)
}

func loadLibrary(libCfg config.LibraryConfig) (*situation.Library, error) {
	lib, err := situation.Load(libCfg.Paths, libraryOptions(libCfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load situation library: %w", err)
	}
	return lib, nil
}

func writeLibrary(w io.Writer, lib *situation.Library) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "SITUATION", "PAIRS", "ACTIONS", "SOURCE")
	for i, s := range lib.Situations() {
		actions := make([]string, len(s.Actions))
		for j, a := range s.Actions {
			actions[j] = a.String()
		}
		pairs := fmt.Sprint(len(s.Pairs))
		if s.Logic != "" {
			pairs += " (" + s.Logic + ")"
		}
		t.Row(fmt.Sprint(i), s.Name, pairs, strings.Join(actions, ", "), s.Source)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}
