// internal/situation/loader_test.go
package situation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/triage/internal/action"
	"github.com/xkilldash9x/triage/internal/jobspec"
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
      - {mode: move, pattern: "*.chk"}
`

func writeRecord(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func simpleRecord(name, pattern string) string {
	return "name: " + name + "\nconditions:\n  - OUTPUT_FILE MATCHES " + pattern + "\nactions:\n  - type: STOP\n"
}

func TestParseRecord(t *testing.T) {
	t.Parallel()

	rec, err := ParseRecord([]byte(scfRecord))
	require.NoError(t, err)
	assert.Equal(t, "scf-not-converged", rec.Name)
	require.Len(t, rec.Conditions, 2)
	require.Len(t, rec.Actions, 1)
	a := rec.Actions[0]
	assert.Equal(t, action.RetryWithFix, a.Type)
	require.Len(t, a.Edits, 1)
	assert.Equal(t, jobspec.OpSetKeyword, a.Edits[0].Op)
	assert.Equal(t, "Dir:scf", a.Edits[0].Address.String())
	assert.Equal(t, action.ArchiveMove, a.Archive[0].Mode)

	s, err := rec.Situation("scf.yaml")
	require.NoError(t, err)
	assert.Equal(t, "scf.yaml", s.Source)
	assert.Equal(t, "SCF iterations exhausted", s.Description)
	assert.Len(t, s.Pairs, 2)
}

func TestParseRecordRejectsMalformed(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
	}{
		{"Missing name", "conditions: []\nactions: [{type: STOP}]\n"},
		{"Missing actions", "name: x\nconditions: []\n"},
		{"Empty actions", "name: x\nconditions: []\nactions: []\n"},
		{"Unknown field", "name: x\nconditions: []\nactions: [{type: STOP}]\nseverity: high\n"},
		{"Unknown edit op", "name: x\nconditions: []\nactions: [{type: RETRY, edits: [{op: rename}]}]\n"},
		{"Archive without pattern", "name: x\nconditions: []\nactions: [{type: RETRY, archive: [{mode: copy}]}]\n"},
		{"Condition is not a string", "name: x\nconditions: [{a: 1}]\nactions: [{type: STOP}]\n"},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseRecord([]byte(tc.body))
			assert.ErrorIs(t, err, ErrMalformedSituation)
		})
	}

	_, err := ParseRecord([]byte("name: [unclosed"))
	assert.Error(t, err)
}

func TestRecordSituationErrors(t *testing.T) {
	t.Parallel()

	rec, err := ParseRecord([]byte("name: x\nconditions: [OUTPUT_FILE FROBNICATE y]\nactions: [{type: STOP}]\n"))
	require.NoError(t, err, "condition grammar is checked after the schema")
	_, err = rec.Situation("")
	assert.ErrorIs(t, err, ErrMalformedSituation)

	rec, err = ParseRecord([]byte("name: x\nconditions: []\nactions: [{type: STOP, edits: [{op: remove_data, address: 'Dir:a|Dat:b'}]}]\n"))
	require.NoError(t, err)
	_, err = rec.Situation("")
	assert.ErrorIs(t, err, ErrMalformedSituation, "STOP cannot carry edits")
}

func TestDiscoverAndLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	writeRecord(t, dir, "b.yaml", simpleRecord("b", "beta"))
	writeRecord(t, dir, "a.yml", simpleRecord("a", "alpha"))
	writeRecord(t, dir, "nested/c.json", `{"name": "c", "conditions": ["LOG_FEED MATCHES gamma"], "actions": [{"type": "NOTIFY"}]}`)
	writeRecord(t, dir, "notes.txt", "not a record")
	writeRecord(t, dir, ".hidden/d.yaml", simpleRecord("d", "delta"))
	writeRecord(t, dir, ".e.yaml", simpleRecord("e", "epsilon"))
	single := writeRecord(t, t.TempDir(), "z.yaml", simpleRecord("z", "zeta"))

	paths, err := Discover(dir, single)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "c.json"),
		single,
	}, paths)

	lib, err := Load([]string{dir, single})
	require.NoError(t, err)
	var names []string
	for _, s := range lib.Situations() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"a", "b", "c", "z"}, names)

	_, err = Discover(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLoadRejectsDuplicatesAcrossFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeRecord(t, dir, "one.yaml", simpleRecord("same", "x"))
	writeRecord(t, dir, "two.yaml", simpleRecord("same", "y"))

	_, err := Load([]string{dir})
	assert.ErrorIs(t, err, ErrMalformedSituation)
	assert.Contains(t, err.Error(), "two.yaml")
}

func TestLoadReportsFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	bad := writeRecord(t, dir, "bad.yaml", "name: bad\nconditions: []\n")

	_, err := Load([]string{dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad)
}
