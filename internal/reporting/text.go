// internal/reporting/text.go
package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/xkilldash9x/triage/internal/engine"
	"github.com/xkilldash9x/triage/internal/situation"
)

// -- Styles --

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	goodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	evidenceBox  = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().MarginLeft(2)
)

func outcomeStyle(o engine.Outcome) lipgloss.Style {
	switch o {
	case engine.OutcomeSucceeded:
		return goodStyle
	case engine.OutcomeNotified, engine.OutcomeCancelled:
		return warnStyle
	default:
		return badStyle
	}
}

func field(label, value string) string {
	return labelStyle.Render(label+":") + " " + value
}

func renderReport(r *engine.Report) string {
	var b strings.Builder

	header := []string{
		titleStyle.Render("Job " + r.Job),
		field("lineage", r.LineageID),
		field("outcome", outcomeStyle(r.Outcome).Render(string(r.Outcome))),
	}
	if r.Situation != "" {
		header = append(header, field("situation", r.Situation))
	}
	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
		header = append(header, field("duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()))
	}
	b.WriteString(strings.Join(header, "  "))
	b.WriteString("\n")
	if r.Error != "" {
		b.WriteString(field("error", r.Error))
		b.WriteString("\n")
	}

	for _, a := range r.Attempts {
		b.WriteString("\n")
		b.WriteString(renderAttempt(a))
	}

	if len(r.Notifications) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Notifications"))
		b.WriteString("\n")
		for _, n := range r.Notifications {
			b.WriteString(sectionStyle.Render(fmt.Sprintf("[attempt %d] %s: %s", n.Attempt, n.Situation, n.Message)))
			b.WriteString("\n")
		}
	}

	if len(r.Evidence) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Unrecognized output (tail)"))
		b.WriteString("\n")
		b.WriteString(evidenceBox.Render(strings.Join(r.Evidence, "\n")))
		b.WriteString("\n")
	}
	return b.String()
}

func renderAttempt(a engine.AttemptReport) string {
	var b strings.Builder
	line := []string{
		titleStyle.Render(fmt.Sprintf("Attempt %d", a.Ordinal)),
		field("status", string(a.Status)),
		field("exit", fmt.Sprint(a.ExitCode)),
		field("decision", a.Decision),
	}
	if a.Action != "" {
		line = append(line, field("action", a.Action))
	}
	b.WriteString(strings.Join(line, "  "))
	b.WriteString("\n")

	if a.OutputPath != "" {
		b.WriteString(sectionStyle.Render(field("output", a.OutputPath)))
		b.WriteString("\n")
	}
	if a.ArchiveDir != "" && a.Archived != nil {
		n := len(a.Archived.Copied) + len(a.Archived.Moved)
		b.WriteString(sectionStyle.Render(field("archived", fmt.Sprintf("%d file(s) to %s, %d deleted", n, a.ArchiveDir, len(a.Archived.Deleted)))))
		b.WriteString("\n")
	}
	if a.Diagnosis != nil {
		b.WriteString(sectionStyle.Render(scoreTable(a.Diagnosis)))
		b.WriteString("\n")
	}
	return b.String()
}

func renderDiagnosis(d *situation.Diagnosis) string {
	var b strings.Builder
	if d.Matched {
		b.WriteString(field("diagnosis", goodStyle.Render(diagnosisName(d))))
	} else {
		b.WriteString(field("diagnosis", warnStyle.Render("no situation recognized")))
	}
	b.WriteString("  " + field("threshold", formatScore(d.Threshold)))
	b.WriteString("\n")
	if len(d.Evaluations) == 0 {
		return b.String()
	}

	b.WriteString(scoreTable(d))
	b.WriteString("\n")
	if best, ok := d.BestEvaluation(); ok && len(best.Pairs) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Pairs of " + best.Situation))
		b.WriteString("\n")
		b.WriteString(pairTable(best))
		b.WriteString("\n")
	}
	return b.String()
}

// scoreTable lists every situation's score, marking the selected one.
func scoreTable(d *situation.Diagnosis) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("", "SITUATION", "SCORE")
	for i, ev := range d.Evaluations {
		mark := ""
		if i == d.Best {
			mark = "*"
			if d.Matched {
				mark = "✓"
			}
		}
		t.Row(mark, ev.Situation, formatScore(ev.Score))
	}
	return t.String()
}

func pairTable(ev situation.Evaluation) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "CONDITION", "SCORE", "EVIDENCE")
	for i, p := range ev.Pairs {
		evidence := p.Evidence
		if evidence == "" {
			evidence = "-"
		}
		t.Row(fmt.Sprint(i), p.Condition, formatScore(p.Score), evidence)
	}
	return t.String()
}

func formatScore(s float64) string {
	return fmt.Sprintf("%.2f", s)
}
