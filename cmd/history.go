// File: cmd/history.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/triage/internal/config"
	"github.com/xkilldash9x/triage/internal/observability"
	"github.com/xkilldash9x/triage/internal/reporting"
	"github.com/xkilldash9x/triage/internal/store"
)

// errNoHistory is returned when the configured store keeps no records.
var errNoHistory = errors.New("the configured store keeps no attempt history; set store.type to sqlite or postgres")

func newHistoryCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "history LINEAGE_ID",
		Short: "Shows the recorded attempts of a lineage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runHistory(cmd.Context(), cfg, observability.GetLogger(), args[0], format, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json)")
	cmd.Flags().String("store", "", "attempt store: sqlite or postgres")
	configFlag(cmd, "store", "store.type")
	return cmd
}

func runHistory(ctx context.Context, cfg config.Interface, logger *zap.Logger, lineageID, format string, w io.Writer) error {
	f, err := reporting.ParseFormat(format)
	if err != nil {
		return err
	}
	recorder, closeStore, err := store.Open(ctx, cfg.Store(), logger)
	if err != nil {
		return fmt.Errorf("failed to open attempt store: %w", err)
	}
	defer closeStore()

	history, ok := recorder.(store.History)
	if !ok {
		return errNoHistory
	}
	records, err := history.AttemptsByLineage(ctx, lineageID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no attempts recorded for lineage %s", lineageID)
	}
	return writeHistory(w, f, records)
}

func writeHistory(w io.Writer, format reporting.Format, records []store.AttemptRecord) error {
	if format == reporting.FormatJSON {
		data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ATTEMPT", "STATUS", "EXIT", "SITUATION", "SCORE", "ACTION", "DECISION")
	for _, r := range records {
		t.Row(fmt.Sprint(r.Ordinal), r.Status, fmt.Sprint(r.ExitCode), r.Situation, fmt.Sprintf("%.2f", r.Score), r.Action, r.Outcome)
	}
	_, err := fmt.Fprintf(w, "Lineage %s (%s)\n%s\n", records[0].LineageID, records[0].Job, t.String())
	return err
}
