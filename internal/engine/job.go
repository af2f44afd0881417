// internal/engine/job.go
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/triage/internal/jobspec"
)

// ErrInvalidJob is returned for job definitions that cannot be supervised.
var ErrInvalidJob = errors.New("invalid job definition")

// Job is the definition of one lineage: what to run, with which
// specification, and how many fixes it may try.
type Job struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
	// RetryBudget overrides the supervisor default when set.
	RetryBudget *int              `yaml:"retry_budget,omitempty"`
	WorkDir     string            `yaml:"work_dir,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	Spec        *jobspec.Spec     `yaml:"spec,omitempty"`
	// SpecFile is read into Spec when the job is loaded from disk.
	SpecFile string `yaml:"spec_file,omitempty"`
	// OutputFiles and InputFiles are extra evidence, as glob patterns
	// relative to the work directory.
	OutputFiles []string `yaml:"output_files,omitempty"`
	InputFiles  []string `yaml:"input_files,omitempty"`
}

// Validate checks that the job can be run.
func (j *Job) Validate() error {
	if j == nil {
		return fmt.Errorf("%w: nil job", ErrInvalidJob)
	}
	if j.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidJob)
	}
	if strings.ContainsAny(j.Name, `/\`) || j.Name == "." || j.Name == ".." {
		return fmt.Errorf("%w: name %q is not a valid file name", ErrInvalidJob, j.Name)
	}
	if strings.TrimSpace(j.Command) == "" {
		return fmt.Errorf("%w: %s: missing command", ErrInvalidJob, j.Name)
	}
	if j.RetryBudget != nil && *j.RetryBudget < 0 {
		return fmt.Errorf("%w: %s: negative retry budget", ErrInvalidJob, j.Name)
	}
	if j.Spec != nil {
		if err := j.Spec.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidJob, j.Name, err)
		}
	}
	return nil
}

// ParseJob decodes a YAML job definition.
func ParseJob(data []byte) (*Job, error) {
	var j Job
	if err := yaml.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to decode job definition: %w", err)
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return &j, nil
}

// LoadJob reads a job definition. A relative spec_file or work_dir is taken
// relative to the definition's directory.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", path, err)
	}
	j, err := ParseJob(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if j.WorkDir != "" && !filepath.IsAbs(j.WorkDir) {
		j.WorkDir = filepath.Join(dir, j.WorkDir)
	}
	if j.SpecFile != "" {
		if j.Spec != nil {
			return nil, fmt.Errorf("%s: %w: spec and spec_file are exclusive", path, ErrInvalidJob)
		}
		specPath := j.SpecFile
		if !filepath.IsAbs(specPath) {
			specPath = filepath.Join(dir, specPath)
		}
		if j.Spec, err = jobspec.LoadFile(specPath); err != nil {
			return nil, err
		}
	}
	return j, nil
}

// rootSpec is the specification of the lineage's first attempt.
func (j *Job) rootSpec() *jobspec.Spec {
	if j.Spec == nil {
		return &jobspec.Spec{Name: j.Name}
	}
	return j.Spec.Clone()
}
