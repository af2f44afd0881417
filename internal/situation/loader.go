// internal/situation/loader.go
package situation

import (
	"bytes"
	_ "embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/xkilldash9x/triage/internal/action"
	"github.com/xkilldash9x/triage/internal/circumstance"
	"gopkg.in/yaml.v3"
)

//go:embed situation.schema.json
var recordSchemaJSON []byte

const recordSchemaURL = "triage://situation.schema.json"

var (
	recordSchemaOnce sync.Once
	recordSchema     *jsonschema.Schema
	recordSchemaErr  error
)

// Record is the at-rest form of a situation, one per file.
type Record struct {
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	Conditions  []string        `yaml:"conditions" json:"conditions"`
	Logic       string          `yaml:"logic,omitempty" json:"logic,omitempty"`
	Actions     []action.Action `yaml:"actions" json:"actions"`
}

// Situation converts the record into a validated situation. Each condition
// line becomes one pair bound to the line's channel type.
func (r Record) Situation(source string) (*Situation, error) {
	pairs := make([]Pair, 0, len(r.Conditions))
	for i, line := range r.Conditions {
		c, err := circumstance.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: condition %d: %v", ErrMalformedSituation, r.Name, i, err)
		}
		pairs = append(pairs, Pair{Circumstance: c, Channel: c.ChannelType()})
	}
	return New(r.Name, pairs, r.Actions,
		WithDescription(r.Description),
		WithLogic(r.Logic),
		WithSource(source),
	)
}

func compiledRecordSchema() (*jsonschema.Schema, error) {
	recordSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(recordSchemaURL, bytes.NewReader(recordSchemaJSON)); err != nil {
			recordSchemaErr = fmt.Errorf("failed to add record schema: %w", err)
			return
		}
		recordSchema, recordSchemaErr = compiler.Compile(recordSchemaURL)
	})
	return recordSchema, recordSchemaErr
}

// ParseRecord decodes and schema-validates one YAML or JSON record.
func ParseRecord(data []byte) (Record, error) {
	var rec Record

	// Validate the generic document first so schema errors name the field.
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return rec, fmt.Errorf("failed to parse record: %w", err)
	}
	// Round-trip through JSON so numbers and maps take the shapes the
	// validator expects.
	jsonData, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(doc)
	if err != nil {
		return rec, fmt.Errorf("failed to convert record: %w", err)
	}
	var generic interface{}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(jsonData, &generic); err != nil {
		return rec, fmt.Errorf("failed to convert record: %w", err)
	}

	schema, err := compiledRecordSchema()
	if err != nil {
		return rec, err
	}
	if err := schema.Validate(generic); err != nil {
		return rec, fmt.Errorf("%w: %v", ErrMalformedSituation, err)
	}

	if err := yaml.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}

// LoadFile reads one record file into a situation.
func LoadFile(path string) (*Situation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read situation %s: %w", path, err)
	}
	rec, err := ParseRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s, err := rec.Situation(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// isRecordFile reports whether a path carries a record extension.
func isRecordFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

// Discover lists record files under each root, recursively. A root may also
// be a single file. Paths under one root are sorted; roots keep their order.
// Hidden files and directories are skipped.
func Discover(roots ...string) ([]string, error) {
	var out []string
	for _, root := range roots {
		expanded, err := homedir.Expand(root)
		if err != nil {
			return nil, fmt.Errorf("failed to expand %s: %w", root, err)
		}
		info, err := os.Stat(expanded)
		if err != nil {
			return nil, fmt.Errorf("situation library %s: %w", root, err)
		}
		if !info.IsDir() {
			out = append(out, expanded)
			continue
		}

		var found []string
		err = filepath.WalkDir(expanded, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != expanded && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() && isRecordFile(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk situation library %s: %w", root, err)
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

// Load builds a library from every record found under roots. The first
// malformed record aborts loading.
func Load(roots []string, opts ...LibraryOption) (*Library, error) {
	paths, err := Discover(roots...)
	if err != nil {
		return nil, err
	}
	situations := make([]*Situation, 0, len(paths))
	for _, p := range paths {
		s, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		situations = append(situations, s)
	}
	return NewLibrary(situations, opts...)
}
