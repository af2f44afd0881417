// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/triage/internal/engine"
	"github.com/xkilldash9x/triage/internal/situation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Format selects how reports are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat converts a flag value into a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// Open returns the destination for reports. An empty path or "stdout" writes
// to standard output, which Close leaves open.
func Open(outputPath string) (io.WriteCloser, error) {
	if outputPath == "" || outputPath == "stdout" {
		return &nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
	}
	return f, nil
}

// Write renders the reports of one or more lineages. JSON output is a single
// document: an object for one report, an array otherwise.
func Write(w io.Writer, format Format, reports ...*engine.Report) error {
	switch format {
	case FormatJSON:
		var v interface{} = reports
		if len(reports) == 1 {
			v = reports[0]
		}
		return writeJSON(w, v)
	case FormatText, "":
		for i, r := range reports {
			if i > 0 {
				if _, err := io.WriteString(w, "\n"); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, renderReport(r)); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteDiagnosis renders a single diagnosis made outside a supervised run.
func WriteDiagnosis(w io.Writer, format Format, d *situation.Diagnosis) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, diagnosisDoc{Situation: diagnosisName(d), Diagnosis: d})
	case FormatText, "":
		if _, err := io.WriteString(w, renderDiagnosis(d)); err != nil {
			return fmt.Errorf("failed to write diagnosis: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// diagnosisDoc adds the matched name, which the diagnosis does not serialize.
type diagnosisDoc struct {
	Situation string `json:"situation,omitempty"`
	*situation.Diagnosis
}

// diagnosisName is the matched situation's name, falling back to the best
// evaluation for diagnoses decoded from storage.
func diagnosisName(d *situation.Diagnosis) string {
	if name := d.Name(); name != "" || !d.Matched {
		return name
	}
	best, _ := d.BestEvaluation()
	return best.Situation
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
