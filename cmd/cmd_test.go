// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/triage/internal/engine"
)

const scfRecord = `
name: scf-not-converged
description: SCF iterations exhausted
conditions:
  - OUTPUT_FILE MATCHES SCF did not converge
  - JOB_SPEC NOMATCHDIR Dir:scf|Key:maxiter VALUE 200
actions:
  - type: RETRY_WITH_FIX
    edits:
      - op: set_keyword
        address: Dir:scf
        keyword: {name: maxiter, value: "200"}
    archive:
      - {mode: copy, pattern: "*.log"}
`

const stopRecord = `
name: out-of-memory
conditions:
  - OUTPUT_FILE MATCHES ^Killed$
actions:
  - type: NOTIFY
    message: raise the memory limit
  - type: STOP
`

const specYAML = `
name: h2o
directives:
  - name: scf
    keywords:
      - {name: maxiter, value: "50"}
`

// executeCommand runs a fresh command tree and captures everything it prints.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// fixture lays out a library, a config file and a scratch area.
type fixture struct {
	dir     string
	library string
	config  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{dir: dir, library: filepath.Join(dir, "situations")}
	writeFile(t, filepath.Join(f.library, "scf.yaml"), scfRecord)
	writeFile(t, filepath.Join(f.library, "memory", "oom.yaml"), stopRecord)
	f.config = writeFile(t, filepath.Join(dir, "triage.yaml"), `
logger:
  level: error
library:
  paths: ["`+f.library+`"]
supervisor:
  work_dir: "`+filepath.Join(dir, "work")+`"
worker:
  poll_feed: true
store:
  type: sqlite
  sqlite_path: "`+filepath.Join(dir, "triage.db")+`"
`)
	return f
}

func TestRootCmd_Version(t *testing.T) {
	t.Parallel()
	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "triage version "+Version)
}

func TestRootCmd_BadConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := writeFile(t, filepath.Join(dir, "bad.yaml"), "library:\n  threshold: 2\n")

	_, err := executeCommand(t, "--config", cfg, "library", "validate", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold must be in (0, 1]")
}

func TestRunCmd_RequiresJobs(t *testing.T) {
	t.Parallel()
	_, err := executeCommand(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestDiagnoseCmd(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	log := writeFile(t, filepath.Join(f.dir, "run.log"), "iteration 50\nSCF did not converge\n")
	spec := writeFile(t, filepath.Join(f.dir, "h2o.yaml"), specYAML)

	t.Run("matched with the job specification", func(t *testing.T) {
		t.Parallel()
		out, err := executeCommand(t, "--config", f.config, "diagnose", "-l", log, "--spec", spec, "-f", "json")
		require.NoError(t, err)

		var doc map[string]interface{}
		require.NoError(t, jsoniter.Unmarshal([]byte(out), &doc))
		assert.Equal(t, "scf-not-converged", doc["situation"])
		assert.Equal(t, true, doc["matched"])
	})

	t.Run("half the evidence is no diagnosis", func(t *testing.T) {
		t.Parallel()
		out, err := executeCommand(t, "--config", f.config, "diagnose", "-l", log)
		assert.ErrorIs(t, err, engine.ErrUnrecognizedFailure)
		assert.Contains(t, out, "no situation recognized")
		assert.Contains(t, out, "0.50")
	})

	t.Run("threshold flag overrides the config", func(t *testing.T) {
		t.Parallel()
		out, err := executeCommand(t, "--config", f.config, "diagnose", "-l", log, "--threshold", "0.5")
		require.NoError(t, err)
		assert.Contains(t, out, "scf-not-converged")
	})

	t.Run("log is required", func(t *testing.T) {
		t.Parallel()
		_, err := executeCommand(t, "--config", f.config, "diagnose")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `required flag(s) "log" not set`)
	})
}

func TestLibraryCmd(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	out, err := executeCommand(t, "--config", f.config, "library", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "OK: 2 situation(s)")

	out, err = executeCommand(t, "--config", f.config, "library", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "scf-not-converged")
	assert.Contains(t, out, "RETRY_WITH_FIX(FOCUS_JOB) with 1 edit(s)")
	assert.Less(t, strings.Index(out, "out-of-memory"), strings.Index(out, "scf-not-converged"), "memory/oom.yaml sorts first")

	broken := filepath.Join(f.dir, "broken")
	writeFile(t, filepath.Join(broken, "bad.yaml"), "name: bad\nconditions: [\"OUTPUT_FILE SOMETIMES x\"]\nactions: [{type: STOP}]\n")
	_, err = executeCommand(t, "--config", f.config, "library", "validate", broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yaml")
}

func TestRunAndHistoryCmd(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	spec := writeFile(t, filepath.Join(f.dir, "jobs", "h2o.spec.yaml"), specYAML)
	job := writeFile(t, filepath.Join(f.dir, "jobs", "h2o.yaml"), `
name: h2o
command: |
  grep -q 'maxiter = 200' "$TRIAGE_INPUT" || { echo 'SCF did not converge'; exit 1; }
  echo converged
spec_file: `+filepath.Base(spec)+`
`)

	out, err := executeCommand(t, "--config", f.config, "run", job, "-f", "json")
	require.NoError(t, err, out)

	var report engine.Report
	require.NoError(t, jsoniter.Unmarshal([]byte(out), &report))
	assert.Equal(t, engine.OutcomeSucceeded, report.Outcome)
	require.Len(t, report.Attempts, 2)
	assert.Equal(t, engine.DecisionRetry, report.Attempts[0].Decision)
	require.NotNil(t, report.Attempts[0].Archived)
	assert.Equal(t, []string{"h2o_1.log"}, report.Attempts[0].Archived.Copied)

	out, err = executeCommand(t, "--config", f.config, "history", report.LineageID, "-f", "json")
	require.NoError(t, err, out)
	var records []map[string]interface{}
	require.NoError(t, jsoniter.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "scf-not-converged", records[0]["situation"])
	assert.Equal(t, "SUCCEEDED", records[1]["outcome"])

	out, err = executeCommand(t, "--config", f.config, "history", report.LineageID)
	require.NoError(t, err)
	assert.Contains(t, out, "Lineage "+report.LineageID+" (h2o)")

	_, err = executeCommand(t, "--config", f.config, "history", "no-such-lineage")
	assert.Error(t, err)

	_, err = executeCommand(t, "--config", f.config, "history", report.LineageID, "--store", "none")
	assert.ErrorIs(t, err, errNoHistory)
}

func TestRunCmd_Outcomes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	unknown := writeFile(t, filepath.Join(f.dir, "jobs", "unknown.yaml"), "name: unknown\ncommand: echo 'segmentation fault'; exit 2\n")
	oom := writeFile(t, filepath.Join(f.dir, "jobs", "oom.yaml"), "name: oom\ncommand: echo Killed; exit 137\n")
	ok := writeFile(t, filepath.Join(f.dir, "jobs", "ok.yaml"), "name: ok\ncommand: \"true\"\n")

	out, err := executeCommand(t, "--config", f.config, "run", unknown, oom, ok, "--store", "none")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUnrecognizedFailure)
	assert.ErrorIs(t, err, engine.ErrStopped)

	assert.Contains(t, out, "UNRECOGNIZED_FAILURE")
	assert.Contains(t, out, "segmentation fault")
	assert.Contains(t, out, "raise the memory limit")
	assert.Contains(t, out, "Job ok")
}
